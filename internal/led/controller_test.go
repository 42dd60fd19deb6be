// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package led

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetState_PriorityOrder(t *testing.T) {
	c := New()
	require.NoError(t, c.SetState(StateArmed, true))
	require.NoError(t, c.SetState(StateOffline, true))
	require.NoError(t, c.SetState(StateError, true))

	assert.Equal(t, StateError, c.GetState())

	require.NoError(t, c.SetState(StateError, false))
	assert.Equal(t, StateOffline, c.GetState())

	require.NoError(t, c.SetState(StateOffline, false))
	assert.Equal(t, StateArmed, c.GetState())
}

func TestGetState_NoActiveStatesIsOff(t *testing.T) {
	c := New()
	assert.Equal(t, StateOff, c.GetState())
}

func TestFlashDetection_AsymmetricVisibility(t *testing.T) {
	c := New()
	require.NoError(t, c.SetState(StateArmed, true))
	c.FlashDetection()

	assert.Equal(t, StateDetection, c.GetState())
	assert.False(t, c.IsStateActive(StateDetection), "DETECTION is never reported active even while its flash is visible")

	time.Sleep(detectionFlashDuration + 50*time.Millisecond)
	assert.Equal(t, StateArmed, c.GetState())
}

func TestGetState_ErrorOutranksDetectionFlash(t *testing.T) {
	c := New()
	require.NoError(t, c.SetState(StateArmed, true))
	require.NoError(t, c.SetState(StateError, true))
	c.FlashDetection()

	assert.Equal(t, StateError, c.GetState(), "ERROR must stay visible through a live detection flash")

	time.Sleep(detectionFlashDuration + 50*time.Millisecond)
	assert.Equal(t, StateError, c.GetState())

	require.NoError(t, c.SetState(StateError, false))
	c.FlashDetection()
	assert.Equal(t, StateDetection, c.GetState(), "detection flash is visible again once ERROR clears")
}

func TestSetState_DetectionIsRejected(t *testing.T) {
	c := New()
	err := c.SetState(StateDetection, true)
	require.Error(t, err)
}

func TestIsStateActive_ReflectsSetState(t *testing.T) {
	c := New()
	assert.False(t, c.IsStateActive(StateBoot))
	require.NoError(t, c.SetState(StateBoot, true))
	assert.True(t, c.IsStateActive(StateBoot))
	require.NoError(t, c.SetState(StateBoot, false))
	assert.False(t, c.IsStateActive(StateBoot))
}
