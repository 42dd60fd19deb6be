// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventlog

import "database/sql"

// migrations are applied in order, tracked by a schema_migrations table,
// the same shape golang-migrate/migrate gives a project, hand-rolled
// here rather than pulling in a second cgo-free SQLite migration driver
// to run a single schema (see DESIGN.md).
const bootstrapSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		confidence TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		w INTEGER NOT NULL,
		h INTEGER NOT NULL,
		area INTEGER NOT NULL,
		hover_duration_ms INTEGER NOT NULL,
		laser_fired BOOLEAN NOT NULL,
		clip_file TEXT,
		synced BOOLEAN NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_synced ON events(synced);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp_synced ON events(timestamp, synced);
	CREATE INDEX IF NOT EXISTS idx_events_clip_file ON events(clip_file);`,
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(bootstrapSQL); err != nil {
		return err
	}
	var applied int
	row := db.QueryRow("SELECT COUNT(*) FROM schema_migrations")
	if err := row.Scan(&applied); err != nil {
		return err
	}
	for v := applied; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations(version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
