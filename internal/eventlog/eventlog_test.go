// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ample() (int64, int64, error) { return 1 << 20, 1 << 20, nil }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path, 10, 30, ample)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ev(confidence string, ts time.Time) Event {
	return Event{Timestamp: ts, Confidence: confidence, X: 1, Y: 2, W: 3, H: 4, Area: 12}
}

func TestLog_IDsAreStrictlyIncreasing(t *testing.T) {
	s := openTestStore(t)
	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.Log(ev("HIGH", time.Now()))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestLog_IDsSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path, 10, 30, ample)
	require.NoError(t, err)
	id1, err := s.Log(ev("HIGH", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path, 10, 30, ample)
	require.NoError(t, err)
	defer s2.Close()
	id2, err := s2.Log(ev("HIGH", time.Now()))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
}

func TestGetEvents_RespectsBoundsAndOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		_, err := s.Log(ev("HIGH", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	rows, err := s.GetEvents(nil, nil, 50)
	require.NoError(t, err)
	require.Len(t, rows, 50)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i].ID < rows[i-1].ID, "expected strictly descending ids")
	}
}

func TestGetEvents_InvalidLimitRejected(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetEvents(nil, nil, 0)
	assert.Error(t, err)
	_, err = s.GetEvents(nil, nil, MaxPerQuery+1)
	assert.Error(t, err)
}

func TestMarkSyncedBatch_EmptyIsZeroNotError(t *testing.T) {
	s := openTestStore(t)
	n, err := s.MarkSyncedBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPrune_RemovesOnlyOldSyncedRows(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	oldSynced, err := s.Log(ev("HIGH", now.Add(-40*24*time.Hour)))
	require.NoError(t, err)
	require.NoError(t, s.MarkSynced(oldSynced))

	oldUnsynced, err := s.Log(ev("HIGH", now.Add(-40*24*time.Hour)))
	require.NoError(t, err)

	recentSynced, err := s.Log(ev("HIGH", now))
	require.NoError(t, err)
	require.NoError(t, s.MarkSynced(recentSynced))

	n, err := s.Prune(30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := s.GetEvents(nil, nil, MaxPerQuery)
	require.NoError(t, err)
	ids := map[int64]bool{}
	for _, r := range rows {
		ids[r.ID] = true
	}
	assert.False(t, ids[oldSynced])
	assert.True(t, ids[oldUnsynced])
	assert.True(t, ids[recentSynced])
}

func TestClearClipReference_NullsAllMatchingRows(t *testing.T) {
	s := openTestStore(t)
	e := ev("HIGH", time.Now())
	e.ClipFile = "/clips/1.mp4"
	id, err := s.Log(e)
	require.NoError(t, err)

	require.NoError(t, s.ClearClipReference("/clips/1.mp4"))
	rows, err := s.GetEvents(nil, nil, MaxPerQuery)
	require.NoError(t, err)
	for _, r := range rows {
		if r.ID == id {
			assert.Empty(t, r.ClipFile)
		}
	}
}

func TestGetStatus_WarningWhenBelowWatermark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	low := func() (int64, int64, error) { return 5, 100, nil }
	s, err := Open(path, 10, 30, low)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.GetStatus()
	require.NoError(t, err)
	assert.True(t, st.Warning)
}

func TestGetStatus_DBSizeMBReflectsFileOnDisk(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 200; i++ {
		_, err := s.Log(ev("HIGH", time.Now()))
		require.NoError(t, err)
	}
	st, err := s.GetStatus()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.DBSizeMB, int64(0))
}

func TestGetEvents_SubSecondOrderingIsStable(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 100_000_000, time.UTC)
	_, err := s.Log(ev("HIGH", base))
	require.NoError(t, err)
	_, err = s.Log(ev("HIGH", base.Add(20*time.Millisecond)))
	require.NoError(t, err)

	rows, err := s.GetEvents(nil, nil, MaxPerQuery)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Timestamp.After(rows[1].Timestamp), "newest-first order must hold for sub-second timestamps of differing fractional width")
}
