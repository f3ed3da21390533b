// Package sqlite provides a SQLite-backed fact store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/keepsake/pkg/storage/sqldriver"
)

// SQLiteDriver implements storage.Driver using SQLite via the shared SQL driver.
type SQLiteDriver struct {
	*sqldriver.Driver
}

// NewSQLiteDriver creates a new SQLite-backed fact store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(ctx context.Context, dbPath string) (*SQLiteDriver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	drv := &sqldriver.Driver{
		DB:      db,
		Dialect: dialect.SQLite,
	}

	if err := drv.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDriver{Driver: drv}, nil
}
