// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventlog

import "time"

// Prune deletes synced rows older than pruneDays and returns the number
// of rows removed. It acquires the store's exclusive lock itself, so it
// is safe to call directly (e.g. from a scheduled housekeeping task) in
// addition to the automatic prune folded into Log.
func (s *Store) Prune(pruneDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(pruneDays)
}

// pruneLocked assumes s.mu is already held.
func (s *Store) pruneLocked(pruneDays int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(pruneDays) * 24 * time.Hour).Format(timestampLayout)
	res, err := s.db.Exec(`DELETE FROM events WHERE synced = 1 AND timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
