// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewarden/apis-edge-sub017/internal/classifier"
	"github.com/hivewarden/apis-edge-sub017/internal/clipqueue"
	"github.com/hivewarden/apis-edge-sub017/internal/config"
	"github.com/hivewarden/apis-edge-sub017/internal/eventlog"
	"github.com/hivewarden/apis-edge-sub017/internal/led"
	"github.com/hivewarden/apis-edge-sub017/internal/motion"
	platformfake "github.com/hivewarden/apis-edge-sub017/internal/platform/fake"
	"github.com/hivewarden/apis-edge-sub017/internal/tracker"
)

func openTestCfg(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	require.NoError(t, store.SetArmed(true))
	return store
}

func ample() (int64, int64, error) { return 10000, 20000, nil }

func highConfidenceDetection() classifier.Detection {
	return classifier.Detection{
		TrackedRegion: tracker.TrackedRegion{
			Region:       motion.Region{X: 10, Y: 10, W: 20, H: 20, Area: 400, CX: 20, CY: 20},
			TrackID:      1,
			CreatedAtMS:  0,
			LastSeenAtMS: 1000,
		},
		Size:       classifier.Hornet,
		Confidence: classifier.High,
		IsHovering: true,
		TrackAgeMS: 1000,
	}
}

func newTestPipeline(t *testing.T, armed bool) (*Pipeline, *eventlog.Store, *platformfake.Actuator) {
	t.Helper()
	cfg := openTestCfg(t)
	require.NoError(t, cfg.SetArmed(armed))
	events, err := eventlog.Open(filepath.Join(t.TempDir(), "events.db"), 10, 30, ample)
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	queue := clipqueue.New("")
	ctrl := led.New()
	actuator := platformfake.NewActuator(2 * time.Second)
	frames := platformfake.NewFrameSource(80, 60, 3)

	p := New(cfg, frames, actuator, events, queue, ctrl, t.TempDir())
	return p, events, actuator
}

func TestHandleDetection_ArmedHighConfidenceFiresLaserAndLogsEvent(t *testing.T) {
	p, events, actuator := newTestPipeline(t, true)
	p.handleDetection(highConfidenceDetection())

	evs, err := events.GetEvents(nil, nil, eventlog.MaxPerQuery)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].LaserFired)
	assert.Equal(t, "HIGH", evs[0].Confidence)
	assert.NotEmpty(t, evs[0].ClipFile)

	aims, fired, _ := actuator.Calls()
	assert.Len(t, aims, 1)
	assert.Len(t, fired, 1)
}

func TestHandleDetection_DisarmedNeverFiresLaserButStillLogs(t *testing.T) {
	p, events, actuator := newTestPipeline(t, false)
	p.handleDetection(highConfidenceDetection())

	evs, err := events.GetEvents(nil, nil, eventlog.MaxPerQuery)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.False(t, evs[0].LaserFired)

	_, fired, _ := actuator.Calls()
	assert.Empty(t, fired)
}

func TestHandleDetection_MediumConfidenceIsIgnored(t *testing.T) {
	p, events, actuator := newTestPipeline(t, true)
	det := highConfidenceDetection()
	det.Confidence = classifier.Medium
	p.handleDetection(det)

	evs, err := events.GetEvents(nil, nil, eventlog.MaxPerQuery)
	require.NoError(t, err)
	assert.Empty(t, evs)

	aims, fired, _ := actuator.Calls()
	assert.Empty(t, aims)
	assert.Empty(t, fired)
}
