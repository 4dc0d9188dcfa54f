package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/govdir/govdir/shared"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likePattern matches s literally anywhere in a column. Queries using it must declare
// ESCAPE '\'.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func (db *DB) ListAgencies(ctx context.Context, filter shared.AgencyFilter) ([]*shared.Agency, int64, error) {
	q := db.WithContext(ctx).Model(&shared.Agency{})
	if filter.Search != "" {
		p := likePattern(filter.Search)
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(county) LIKE ? ESCAPE '\'`, p, p)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	page := filter.Page.Normalize()
	var agencies []*shared.Agency
	tx := q.Order("name ASC").Order("id ASC").Offset(page.Offset()).Limit(page.Limit).Find(&agencies)
	if tx.Error != nil {
		return nil, 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	return agencies, total, nil
}

// AgencyByID returns nil when there is no agency with the given ID.
func (db *DB) AgencyByID(ctx context.Context, id string) (*shared.Agency, error) {
	var agency shared.Agency
	err := db.WithContext(ctx).Where("id = ?", id).First(&agency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.AgencyByID: %w", err)
	}
	return &agency, nil
}

// ContactsForUser lists contacts as seen by userID: email and phone are only present for
// contacts that user has unlocked.
func (db *DB) ContactsForUser(ctx context.Context, userID string, filter shared.ContactFilter) ([]shared.ContactView, int64, error) {
	q := db.WithContext(ctx).Model(&shared.Contact{})
	if filter.AgencyId != "" {
		q = q.Where("agency_id = ?", filter.AgencyId)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(role) LIKE ? ESCAPE '\' OR LOWER(department) LIKE ? ESCAPE '\'`, p, p, p)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	page := filter.Page.Normalize()
	var contacts []shared.Contact
	tx := q.Order("name ASC").Order("id ASC").Offset(page.Offset()).Limit(page.Limit).Find(&contacts)
	if tx.Error != nil {
		return nil, 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	unlocks, err := db.UnlocksForContacts(ctx, userID, lo.Map(contacts, func(c shared.Contact, _ int) string { return c.Id }))
	if err != nil {
		return nil, 0, err
	}
	views := lo.Map(contacts, func(c shared.Contact, _ int) shared.ContactView {
		if at, ok := unlocks[c.Id]; ok {
			return shared.NewContactView(c, &at)
		}
		return shared.NewContactView(c, nil)
	})
	return views, total, nil
}

// UpsertDirectory inserts or replaces agencies and contacts in a single transaction.
func (db *DB) UpsertDirectory(ctx context.Context, agencies []*shared.Agency, contacts []*shared.Contact) error {
	return db.transaction(ctx, func(tx *gorm.DB) error {
		if len(agencies) > 0 {
			r := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(agencies, 500)
			if r.Error != nil {
				return fmt.Errorf("upsert agencies: %w", r.Error)
			}
		}
		if len(contacts) > 0 {
			r := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(contacts, 500)
			if r.Error != nil {
				return fmt.Errorf("upsert contacts: %w", r.Error)
			}
		}
		return nil
	})
}

// ProfileForUser returns nil when the user has never saved a profile.
func (db *DB) ProfileForUser(ctx context.Context, userID string) (*shared.UserProfile, error) {
	var profiles []*shared.UserProfile
	tx := db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&profiles)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return profiles[0], nil
}

func (db *DB) UpsertProfile(ctx context.Context, userID string, update shared.ProfileUpdate) (*shared.UserProfile, error) {
	profile := shared.UserProfile{
		UserId:    userID,
		FirstName: update.FirstName,
		LastName:  update.LastName,
		ImageUrl:  update.ImageUrl,
		Bio:       update.Bio,
		Phone:     update.Phone,
	}
	tx := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "image_url", "bio", "phone", "updated_at"}),
	}).Create(&profile)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	return db.ProfileForUser(ctx, userID)
}
