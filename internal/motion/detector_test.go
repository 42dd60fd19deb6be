// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, v uint8) Frame {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = v
	}
	return Frame{Width: w, Height: h, Pix: pix}
}

func withSquare(f Frame, x, y, size int, v uint8) Frame {
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			f.Pix[(y+dy)*f.Width+(x+dx)] = v
		}
	}
	return f
}

func TestDetect_StableBackgroundProducesNoRegions(t *testing.T) {
	d := New(Config{LearningRate: 0.1, Threshold: 20, MinArea: 1, MinSizePx: 1, MaxSizePx: 100, MinAspectRatio: 0.1, MaxAspectRatio: 10})
	f := solidFrame(40, 30, 100)
	// Seed the background model, then feed identical frames.
	for i := 0; i < 5; i++ {
		d.Detect(f, time.Now())
	}
	regions := d.Detect(f, time.Now())
	assert.Empty(t, regions)
}

func TestDetect_FindsBrightSquare(t *testing.T) {
	d := New(Config{LearningRate: 0.5, Threshold: 20, MinArea: 1, MinSizePx: 1, MaxSizePx: 100, MinAspectRatio: 0.1, MaxAspectRatio: 10})
	f := solidFrame(40, 30, 100)
	for i := 0; i < 3; i++ {
		d.Detect(f, time.Now())
	}
	lit := withSquare(solidFrame(40, 30, 100), 10, 10, 6, 220)
	regions := d.Detect(lit, time.Now())
	require.Len(t, regions, 1)
	assert.InDelta(t, 12.5, regions[0].CX, 1.0)
	assert.InDelta(t, 12.5, regions[0].CY, 1.0)
}

func TestDetect_CapsAtMaxRegionsPreferringLarger(t *testing.T) {
	d := New(Config{LearningRate: 1.0, Threshold: 5, MinArea: 1, MinSizePx: 1, MaxSizePx: 200, MinAspectRatio: 0.01, MaxAspectRatio: 100})
	f := solidFrame(200, 200, 50)
	d.Detect(f, time.Now())

	// 40 separate squares, all large enough to survive the 3x3 opening:
	// 14 of 5x5 (area 25) and 26 of 3x3 (area 9).
	lit := solidFrame(200, 200, 50)
	for i := 0; i < 40; i++ {
		size := 3
		if i%3 == 0 {
			size = 5
		}
		lit = withSquare(lit, (i%20)*10+1, (i/20)*10+1, size, 200)
	}
	regions := d.Detect(lit, time.Now())
	require.Len(t, regions, MaxRegionsPerFrame)
	large := 0
	for _, r := range regions {
		if r.Area == 25 {
			large++
		}
	}
	assert.Equal(t, 14, large, "every larger region is kept when the cap applies")
}
