// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package classifier

import (
	"testing"

	"github.com/hivewarden/apis-edge-sub017/internal/motion"
	"github.com/hivewarden/apis-edge-sub017/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfg() Config {
	return Config{
		MinSizePx:       4,
		HornetMinSizePx: 15,
		HornetMaxSizePx: 45,
		HoverRadiusPx:   6,
		HoverTimeMs:     800,
	}
}

func TestClassify_TooSmallIsLow(t *testing.T) {
	trk := tracker.New(tracker.Config{MaxMatchDistance: 50, MaxLostFrames: 5, HistoryCapacity: 16})
	live := trk.Update([]motion.Region{{X: 0, Y: 0, W: 2, H: 2, Area: 4, CX: 1, CY: 1}}, 0)

	c := New(cfg())
	dets := c.Classify(live, 0)
	require.Len(t, dets, 1)
	assert.Equal(t, TooSmall, dets[0].Size)
	assert.Equal(t, Low, dets[0].Confidence)
}

func TestClassify_SingleFrameHornetSizedIsMedium(t *testing.T) {
	trk := tracker.New(tracker.Config{MaxMatchDistance: 50, MaxLostFrames: 5, HistoryCapacity: 16})
	live := trk.Update([]motion.Region{{X: 0, Y: 0, W: 20, H: 20, Area: 400, CX: 10, CY: 10}}, 0)

	c := New(cfg())
	dets := c.Classify(live, 0)
	require.Len(t, dets, 1)
	assert.Equal(t, Hornet, dets[0].Size)
	assert.Equal(t, Medium, dets[0].Confidence)
	assert.False(t, dets[0].IsHovering)
}

func TestClassify_StationaryHornetSizedBecomesHigh(t *testing.T) {
	trk := tracker.New(tracker.Config{MaxMatchDistance: 50, MaxLostFrames: 5, HistoryCapacity: 64})
	c := New(cfg())

	var live []tracker.TrackedRegion
	tMS := uint32(0)
	for i := 0; i < 10; i++ {
		live = trk.Update([]motion.Region{{X: 0, Y: 0, W: 20, H: 20, Area: 400, CX: 10, CY: 10}}, tMS)
		tMS += 100
	}
	dets := c.Classify(live, tMS-100)
	require.Len(t, dets, 1)
	assert.Equal(t, Hornet, dets[0].Size)
	assert.True(t, dets[0].IsHovering)
	assert.Equal(t, High, dets[0].Confidence)
}

func TestClassify_TooLargeIsLow(t *testing.T) {
	trk := tracker.New(tracker.Config{MaxMatchDistance: 50, MaxLostFrames: 5, HistoryCapacity: 16})
	live := trk.Update([]motion.Region{{X: 0, Y: 0, W: 60, H: 60, Area: 3600, CX: 30, CY: 30}}, 0)

	c := New(cfg())
	dets := c.Classify(live, 0)
	require.Len(t, dets, 1)
	assert.Equal(t, TooLarge, dets[0].Size)
	assert.Equal(t, Low, dets[0].Confidence)
}
