// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package eventlog implements the durable local event store: a single
// SQLite database (modernc.org/sqlite, pure Go, no cgo) opened in WAL
// mode, guarded by one exclusive lock the way
// banshee-data-velocity.report's lidar storage layer guards its store,
// with retention pruning folded into the same critical section as the
// triggering write.
package eventlog

import (
	"database/sql"
	"sync"
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	_ "modernc.org/sqlite"
)

// MaxPerQuery bounds get_events/get_unsynced result sizes.
const MaxPerQuery = 500

// timestampLayout formats event timestamps with a fixed nine-digit
// fractional width, unlike time.RFC3339Nano which trims trailing
// fractional zeros. Variable-width fractions break lexicographic
// ORDER BY/range comparisons against the stored TEXT column: "...00.1Z"
// would otherwise sort after "...00.12Z" even though it is earlier.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event is one row of the events table. Once inserted, only Synced and
// ClipFile (cleared to "") are ever modified.
type Event struct {
	ID              int64
	Timestamp       time.Time
	Confidence      string
	X, Y, W, H      int
	Area            int
	HoverDurationMs int
	LaserFired      bool
	ClipFile        string
	Synced          bool
}

// Status summarizes the store for the /status endpoint and heartbeats.
type Status struct {
	TotalRows int64
	FreeMB    int64
	TotalMB   int64
	DBSizeMB  int64
	Warning   bool
}

// Store owns the *sql.DB handle and the one exclusive lock covering it.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	minFreeMB int
	pruneDays int
	freeSpace func() (freeMB, totalMB int64, err error)
}

// Open opens (and, if needed, creates and migrates) the database at
// path, applying WAL pragmas. freeSpace reports free/total space on the
// event store's filesystem; pass a platform-specific implementation
// (statfs on Linux) or a fake in tests.
func Open(path string, minFreeMB, pruneDays int, freeSpace func() (int64, int64, error)) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindCorruption, "eventlog.Open", err)
	}
	db.SetMaxOpenConns(1) // one writer; WAL still allows concurrent readers, but this process has one.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apiscommon.Wrap(apiscommon.KindCorruption, "eventlog.Open", err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, apiscommon.Wrap(apiscommon.KindCorruption, "eventlog.Open", err)
	}
	if freeSpace == nil {
		freeSpace = func() (int64, int64, error) { return 1 << 20, 1 << 20, nil }
	}
	return &Store{db: db, path: path, minFreeMB: minFreeMB, pruneDays: pruneDays, freeSpace: freeSpace}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
