// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govdir/govdir/backend/server/internal/database"
	"github.com/govdir/govdir/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh in-memory sqlite database with all tables created. Each call gets
// its own database so tests can run independently.
func Open(t testing.TB) *database.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.Must(uuid.NewRandom()).String())
	// A single connection keeps the in-memory database alive and serializes writers the
	// way sqlite expects.
	return open(t, dsn, 1)
}

// OpenFile returns a WAL-mode sqlite database in a temp dir that is shared by numConns
// connections, so concurrent callers really run on separate connections.
func OpenFile(t testing.TB, numConns int) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "govdir.db")
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_txlock=immediate"
	return open(t, dsn, numConns)
}

func open(t testing.TB, dsn string, numConns int) *database.DB {
	t.Helper()
	db, err := database.OpenSQLite(dsn, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to connect to the DB: %v", err)
	}
	if err := db.SetMaxOpenConns(numConns); err != nil {
		t.Fatalf("failed to configure the DB: %v", err)
	}
	if err := db.AddDatabaseTables(); err != nil {
		t.Fatalf("failed to add database tables: %v", err)
	}
	if err := db.CreateIndices(); err != nil {
		t.Fatalf("failed to create indices: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// SeedContacts creates one agency holding the given contact IDs.
func SeedContacts(t testing.TB, db *database.DB, contactIDs ...string) *shared.Agency {
	t.Helper()
	agency := &shared.Agency{
		Id:        uuid.Must(uuid.NewRandom()).String(),
		Name:      "Springfield",
		State:     "Illinois",
		StateCode: "IL",
		Type:      shared.AgencyTypeCity,
		County:    "Sangamon",
		CreatedAt: time.Now(),
	}
	contacts := make([]*shared.Contact, 0, len(contactIDs))
	for i, id := range contactIDs {
		contacts = append(contacts, &shared.Contact{
			Id:         id,
			AgencyId:   agency.Id,
			Name:       fmt.Sprintf("Contact %02d", i),
			Email:      fmt.Sprintf("contact%02d@springfield.gov", i),
			Phone:      fmt.Sprintf("555-01%02d", i),
			Role:       "Clerk",
			Department: "Records",
			CreatedAt:  time.Now(),
		})
	}
	if err := db.UpsertDirectory(context.Background(), []*shared.Agency{agency}, contacts); err != nil {
		t.Fatalf("failed to seed contacts: %v", err)
	}
	return agency
}
