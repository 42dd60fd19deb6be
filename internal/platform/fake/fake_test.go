// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSource_ProducesStableDimensions(t *testing.T) {
	src := NewFrameSource(80, 60, 1)
	defer src.Close()

	f, err := src.NextFrame()
	require.NoError(t, err)
	assert.Equal(t, 80, f.Width)
	assert.Equal(t, 60, f.Height)
	assert.Len(t, f.Pix, 80*60)
	assert.Equal(t, 1, src.Stats().GoodFrames)
}

func TestFrameSource_BlobsDrift(t *testing.T) {
	src := NewFrameSource(80, 60, 2)
	defer src.Close()

	first, err := src.NextFrame()
	require.NoError(t, err)
	second, err := src.NextFrame()
	require.NoError(t, err)
	assert.NotEqual(t, first.Pix, second.Pix)
}

func TestActuator_FireLaserClampsToSafetyMax(t *testing.T) {
	a := NewActuator(500 * time.Millisecond)
	require.NoError(t, a.FireLaser(2*time.Second))

	_, fired, _ := a.Calls()
	require.Len(t, fired, 1)
	assert.Equal(t, 500*time.Millisecond, fired[0])
}

func TestActuator_RecordsAimAndSafeCalls(t *testing.T) {
	a := NewActuator(time.Second)
	require.NoError(t, a.SetAim(10, -5))
	require.NoError(t, a.Safe())
	require.NoError(t, a.Close())

	aims, _, safeCalls := a.Calls()
	require.Len(t, aims, 1)
	assert.Equal(t, 10, aims[0].PanDeg)
	assert.Equal(t, -5, aims[0].TiltDeg)
	assert.Equal(t, 2, safeCalls)
}
