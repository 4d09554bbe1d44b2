package store

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

// migrations[i] moves an index database from version i to i+1. Versions are
// tracked with PRAGMA user_version.
var migrations = []string{
	`CREATE TABLE passages (
		seq        INTEGER PRIMARY KEY,
		content    TEXT    NOT NULL,
		source     TEXT    NOT NULL DEFAULT '',
		page       INTEGER NOT NULL DEFAULT 0,
		start_char INTEGER NOT NULL,
		end_char   INTEGER NOT NULL,
		embedding  BLOB    NOT NULL
	);
	CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
}

// initSchema applies pending migrations, each in its own transaction.
func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		log.Debug("Migrating index schema", "from", v, "to", v+1)
		if err := migrate(db, v+1, migrations[v]); err != nil {
			return fmt.Errorf("failed to migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

func migrate(db *sql.DB, to int, ddl string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(ddl); err != nil {
		return err
	}
	// PRAGMA takes no bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", to)); err != nil {
		return err
	}
	return tx.Commit()
}
