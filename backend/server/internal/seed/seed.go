// Package seed loads agencies and their contacts from a YAML file into the directory.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/govdir/govdir/backend/server/internal/database"
	"github.com/govdir/govdir/shared"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type contactEntry struct {
	Id         string `yaml:"id"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
	CreatedAt  string `yaml:"created_at"`
}

type agencyEntry struct {
	Id         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	State      string            `yaml:"state"`
	StateCode  string            `yaml:"state_code"`
	Type       shared.AgencyType `yaml:"type"`
	Population int               `yaml:"population"`
	Website    string            `yaml:"website"`
	County     string            `yaml:"county"`
	CreatedAt  string            `yaml:"created_at"`
	Contacts   []contactEntry    `yaml:"contacts"`
}

type file struct {
	Agencies []agencyEntry `yaml:"agencies"`
}

// Directory is the parsed content of a seed file.
type Directory struct {
	Agencies []*shared.Agency
	Contacts []*shared.Contact
}

// Parse reads a seed file. Entries without an id get one derived from their content, so
// loading the same file twice updates rows instead of duplicating them. Entries without a
// created_at are stamped with now.
func Parse(r io.Reader, now time.Time) (*Directory, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode seed file: %w", err)
	}

	dir := &Directory{}
	for i, a := range f.Agencies {
		agency, err := toAgency(a, now)
		if err != nil {
			return nil, fmt.Errorf("agency #%d: %w", i+1, err)
		}
		dir.Agencies = append(dir.Agencies, agency)
		for j, c := range a.Contacts {
			contact, err := toContact(agency.Id, c, now)
			if err != nil {
				return nil, fmt.Errorf("agency %#v contact #%d: %w", agency.Name, j+1, err)
			}
			dir.Contacts = append(dir.Contacts, contact)
		}
	}

	dir.Agencies = lo.UniqBy(dir.Agencies, func(a *shared.Agency) string { return a.Id })
	dir.Contacts = lo.UniqBy(dir.Contacts, func(c *shared.Contact) string { return c.Id })
	return dir, nil
}

func derivedId(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("govdir:"+strings.Join(parts, ":"))).String()
}

func parseCreatedAt(s string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return now, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %#v: %w", s, err)
	}
	return t, nil
}

func toAgency(a agencyEntry, now time.Time) (*shared.Agency, error) {
	if strings.TrimSpace(a.Name) == "" {
		return nil, errors.New("name is required")
	}
	switch a.Type {
	case shared.AgencyTypeCity, shared.AgencyTypeCounty:
	default:
		return nil, fmt.Errorf("type must be %#v or %#v, got %#v", shared.AgencyTypeCity, shared.AgencyTypeCounty, a.Type)
	}
	createdAt, err := parseCreatedAt(a.CreatedAt, now)
	if err != nil {
		return nil, err
	}
	id := a.Id
	if id == "" {
		id = derivedId("agency", a.State, a.Name)
	}
	return &shared.Agency{
		Id:         id,
		Name:       a.Name,
		State:      a.State,
		StateCode:  a.StateCode,
		Type:       a.Type,
		Population: a.Population,
		Website:    a.Website,
		County:     a.County,
		CreatedAt:  createdAt,
	}, nil
}

func toContact(agencyId string, c contactEntry, now time.Time) (*shared.Contact, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, errors.New("name is required")
	}
	createdAt, err := parseCreatedAt(c.CreatedAt, now)
	if err != nil {
		return nil, err
	}
	id := c.Id
	if id == "" {
		id = derivedId("contact", agencyId, c.Name, c.Email)
	}
	return &shared.Contact{
		Id:         id,
		AgencyId:   agencyId,
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		Role:       c.Role,
		Department: c.Department,
		CreatedAt:  createdAt,
	}, nil
}

// LoadFile parses the seed file at path and upserts its content in one transaction.
func LoadFile(ctx context.Context, db *database.DB, path string, now time.Time) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	dir, err := Parse(f, now)
	if err != nil {
		return nil, err
	}
	if err := db.UpsertDirectory(ctx, dir.Agencies, dir.Contacts); err != nil {
		return nil, fmt.Errorf("db.UpsertDirectory: %w", err)
	}
	return dir, nil
}
