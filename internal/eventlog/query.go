// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventlog

import (
	"database/sql"
	"os"
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// GetEvents returns up to limit rows newest-first, optionally bounded by
// since/until (either may be nil for unbounded). limit must be > 0 and
// <= MaxPerQuery; all bounds are bound as prepared-statement parameters,
// never interpolated into the query text.
func (s *Store) GetEvents(since, until *time.Time, limit int) ([]Event, error) {
	if limit <= 0 || limit > MaxPerQuery {
		return nil, apiscommon.Wrap(apiscommon.KindInvalidInput, "eventlog.GetEvents", errInvalidLimit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sinceStr := "0000-01-01T00:00:00Z"
	if since != nil {
		sinceStr = since.UTC().Format(timestampLayout)
	}
	untilStr := "9999-12-31T23:59:59Z"
	if until != nil {
		untilStr = until.UTC().Format(timestampLayout)
	}
	rows, err := s.db.Query(
		`SELECT id, timestamp, confidence, x, y, w, h, area, hover_duration_ms, laser_fired, clip_file, synced
		 FROM events WHERE timestamp >= ? AND timestamp <= ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		sinceStr, untilStr, limit,
	)
	if err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.GetEvents", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetUnsynced returns up to limit rows with synced=false, newest-first.
func (s *Store) GetUnsynced(limit int) ([]Event, error) {
	if limit <= 0 || limit > MaxPerQuery {
		return nil, apiscommon.Wrap(apiscommon.KindInvalidInput, "eventlog.GetUnsynced", errInvalidLimit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, timestamp, confidence, x, y, w, h, area, hover_duration_ms, laser_fired, clip_file, synced
		 FROM events WHERE synced = 0 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.GetUnsynced", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkSynced sets synced=true for id.
func (s *Store) MarkSynced(id int64) error {
	n, err := s.MarkSyncedBatch([]int64{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return apiscommon.Wrap(apiscommon.KindInvalidInput, "eventlog.MarkSynced", errNoSuchEvent)
	}
	return nil
}

// MarkSyncedBatch sets synced=true for every id in ids and returns the
// count actually updated. A nil or empty ids is not an error: it
// returns (0, nil) by design, distinguishing "nothing to do" from a
// failure.
func (s *Store) MarkSyncedBatch(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.MarkSyncedBatch", err)
	}
	stmt, err := tx.Prepare(`UPDATE events SET synced = 1 WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.MarkSyncedBatch", err)
	}
	defer stmt.Close()

	var total int64
	for _, id := range ids {
		res, err := stmt.Exec(id)
		if err != nil {
			tx.Rollback()
			return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.MarkSyncedBatch", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.MarkSyncedBatch", err)
	}
	return int(total), nil
}

// ClearClipReference sets clip_file to NULL for every row referencing
// path, used when ClipUploader deletes the underlying file.
func (s *Store) ClearClipReference(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE events SET clip_file = NULL WHERE clip_file = ?`, path)
	if err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.ClearClipReference", err)
	}
	return nil
}

// GetStatus reports row count and storage headroom. Warning is true iff
// free space is below the configured watermark.
func (s *Store) GetStatus() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&total); err != nil {
		return Status{}, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.GetStatus", err)
	}
	freeMB, totalMB, err := s.freeSpace()
	if err != nil {
		return Status{}, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.GetStatus", err)
	}
	var dbSizeMB int64
	if fi, err := os.Stat(s.path); err == nil {
		dbSizeMB = fi.Size() / (1 << 20)
	}
	return Status{
		TotalRows: total,
		FreeMB:    freeMB,
		TotalMB:   totalMB,
		DBSizeMB:  dbSizeMB,
		Warning:   freeMB < int64(s.minFreeMB),
	}, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		var clip sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Confidence, &e.X, &e.Y, &e.W, &e.H, &e.Area,
			&e.HoverDurationMs, &e.LaserFired, &clip, &e.Synced); err != nil {
			return nil, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.scanEvents", err)
		}
		t, err := time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, apiscommon.Wrap(apiscommon.KindCorruption, "eventlog.scanEvents", err)
		}
		e.Timestamp = t
		e.ClipFile = clip.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.scanEvents", err)
	}
	return out, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	errInvalidLimit = sentinelErr("limit must be in (0, MaxPerQuery]")
	errNoSuchEvent  = sentinelErr("no such event id")
)
