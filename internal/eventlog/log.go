// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventlog

import (
	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// Log inserts event and returns its assigned, strictly increasing id. If
// free space is below the configured watermark, prune runs inside the
// same lock acquisition before Log returns, so no second caller can race
// a prune against this one.
func (s *Store) Log(event Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO events (timestamp, confidence, x, y, w, h, area, hover_duration_ms, laser_fired, clip_file, synced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		event.Timestamp.UTC().Format(timestampLayout),
		event.Confidence, event.X, event.Y, event.W, event.H, event.Area,
		event.HoverDurationMs, event.LaserFired, nullableString(event.ClipFile),
	)
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.Log", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apiscommon.Wrap(apiscommon.KindIOTransient, "eventlog.Log", err)
	}

	freeMB, _, err := s.freeSpace()
	if err == nil && freeMB < int64(s.minFreeMB) {
		if _, perr := s.pruneLocked(s.pruneDays); perr != nil {
			return id, apiscommon.Wrap(apiscommon.KindResourceExhausted, "eventlog.Log", perr)
		}
	}
	return id, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
