// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tracker

import (
	"math"
	"testing"

	"github.com/hivewarden/apis-edge-sub017/internal/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func region(cx, cy float64) motion.Region {
	return motion.Region{X: int(cx), Y: int(cy), W: 4, H: 4, Area: 16, CX: cx, CY: cy}
}

func TestUpdate_AssignsStableIDAcrossFrames(t *testing.T) {
	tr := New(Config{MaxMatchDistance: 5, MaxLostFrames: 2, HistoryCapacity: 16})
	out1 := tr.Update([]motion.Region{region(10, 10)}, 0)
	require.Len(t, out1, 1)
	id := out1[0].TrackID

	out2 := tr.Update([]motion.Region{region(11, 10)}, 100)
	require.Len(t, out2, 1)
	assert.Equal(t, id, out2[0].TrackID)
}

func TestUpdate_RetiresAfterMaxLostFrames(t *testing.T) {
	tr := New(Config{MaxMatchDistance: 5, MaxLostFrames: 2, HistoryCapacity: 16})
	tr.Update([]motion.Region{region(10, 10)}, 0)
	tr.Update(nil, 100)
	live := tr.Update(nil, 200)
	require.Len(t, live, 1)
	live = tr.Update(nil, 300)
	assert.Empty(t, live)
}

func TestUpdate_FarRegionStartsNewTrack(t *testing.T) {
	tr := New(Config{MaxMatchDistance: 5, MaxLostFrames: 2, HistoryCapacity: 16})
	out1 := tr.Update([]motion.Region{region(10, 10)}, 0)
	out2 := tr.Update([]motion.Region{region(100, 100)}, 100)
	require.Len(t, out2, 2)
	assert.NotEqual(t, out1[0].TrackID, 0)
}

func TestAgeMS_WrapSafeAcrossRollover(t *testing.T) {
	const start = math.MaxUint32 - 500
	tr := New(Config{MaxMatchDistance: 5, MaxLostFrames: 30, HistoryCapacity: 64})

	tMS := uint32(start)
	frameInterval := uint32(111) // ~9Hz, matching the teacher sensor's native rate
	var last []TrackedRegion
	for i := 0; i < 15; i++ {
		last = tr.Update([]motion.Region{region(10, 10)}, tMS)
		tMS += frameInterval
	}
	require.Len(t, last, 1)
	wantElapsed := 14 * frameInterval
	gotElapsed := last[0].AgeMS(tMS - frameInterval)
	delta := math.Abs(float64(gotElapsed) - float64(wantElapsed))
	assert.LessOrEqual(t, delta, float64(wantElapsed)/10, "age should be within 10%% of real elapsed time across uint32 rollover")
}
