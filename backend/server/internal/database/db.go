package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/govdir/govdir/shared"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	sqltrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/database/sql"
	gormtrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gorm.io/gorm.v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const serviceName = "govdir-api"

type DB struct {
	*gorm.DB
}

func OpenSQLite(dsn string, config *gorm.Config) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("gorm.Open: %w", err)
	}

	return &DB{db}, nil
}

// OpenPostgres opens a traced connection. driverName selects the database/sql driver and
// must be "pgx" or "postgres" (lib/pq).
func OpenPostgres(dsn, driverName string, config *gorm.Config) (*DB, error) {
	var drv driver.Driver
	switch driverName {
	case "", "pgx":
		driverName = "pgx"
		drv = &stdlib.Driver{}
	case "postgres":
		drv = &pq.Driver{}
	default:
		return nil, fmt.Errorf("unsupported postgres driver %#v", driverName)
	}
	sqltrace.Register(driverName, drv, sqltrace.WithServiceName(serviceName))
	sqlDb, err := sqltrace.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqltrace.Open: %w", err)
	}
	db, err := gormtrace.Open(postgres.New(postgres.Config{Conn: sqlDb}), config)
	if err != nil {
		return nil, fmt.Errorf("gormtrace.Open: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) AddDatabaseTables() error {
	models := []any{
		&shared.UserQuota{},
		&shared.UnlockRecord{},
		&shared.Agency{},
		&shared.Contact{},
		&shared.UserProfile{},
	}

	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("db.AutoMigrate: %w", err)
		}
	}

	return nil
}

func (db *DB) CreateIndices() error {
	// Note: on a large prod DB, run these by hand with CREATE INDEX CONCURRENTLY first so
	// that startup doesn't block on them.
	indices := []struct {
		name    string
		table   string
		columns []string
	}{
		{"unlock_user_time_idx", "unlock_records", []string{"user_id", "unlocked_at"}},
		{"contact_agency_name_idx", "contacts", []string{"agency_id", "name"}},
		{"agency_state_type_idx", "agencies", []string{"state", "type"}},
	}
	for _, index := range indices {
		sql := ""
		if db.Name() == "sqlite" {
			sql = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", index.name, index.table, strings.Join(index.columns, ","))
		} else {
			sql = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING btree(%s)", index.name, index.table, strings.Join(index.columns, ","))
		}
		r := db.Exec(sql)
		if r.Error != nil {
			return fmt.Errorf("failed to execute index creation sql=%#v: %w", index, r.Error)
		}
	}
	return nil
}

func (db *DB) Close() error {
	rawDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("db.DB.DB: %w", err)
	}

	if err := rawDB.Close(); err != nil {
		return fmt.Errorf("rawDB.Close: %w", err)
	}

	return nil
}

func (db *DB) Ping() error {
	rawDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("db.DB.DB: %w", err)
	}

	if err := rawDB.Ping(); err != nil {
		return fmt.Errorf("rawDB.Ping: %w", err)
	}

	return nil
}

func (db *DB) SetMaxOpenConns(n int) error {
	rawDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	rawDB.SetMaxOpenConns(n)

	return nil
}

func (db *DB) Stats() (sql.DBStats, error) {
	rawDB, err := db.DB.DB()
	if err != nil {
		return sql.DBStats{}, fmt.Errorf("db.DB.DB: %w", err)
	}

	return rawDB.Stats(), nil
}

func (db *DB) CountAgencies(ctx context.Context) (int64, error) {
	var n int64
	tx := db.WithContext(ctx).Model(&shared.Agency{}).Count(&n)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return n, nil
}

func (db *DB) CountContacts(ctx context.Context) (int64, error) {
	var n int64
	tx := db.WithContext(ctx).Model(&shared.Contact{}).Count(&n)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}

	return n, nil
}
