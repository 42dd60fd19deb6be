// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fake provides hardware-free platform.FrameSource and
// platform.Actuator implementations for dev builds and tests, playing
// the same role lepton.MakeFakeLepton's synthetic noise generator plays
// for the teacher's package.
package fake

import (
	"math/rand"
	"sync"
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/motion"
	"github.com/hivewarden/apis-edge-sub017/internal/platform"
)

type blob struct {
	intensity float64
	x, y      float64
}

// FrameSource renders two drifting bright blobs over a dim background, so
// the detection pipeline has something to chase without real hardware.
type FrameSource struct {
	mu     sync.Mutex
	rand   *rand.Rand
	width  int
	height int
	blobs  []blob
	stats  platform.FrameStats
	closed bool
}

// NewFrameSource builds a FrameSource at the given pixel dimensions.
// seed makes the motion reproducible across test runs.
func NewFrameSource(width, height int, seed int64) *FrameSource {
	r := rand.New(rand.NewSource(seed))
	blobs := make([]blob, 2)
	for i := range blobs {
		blobs[i].intensity = 40 + r.Float64()*40
		blobs[i].x = r.Float64() * float64(width)
		blobs[i].y = r.Float64() * float64(height)
	}
	return &FrameSource{rand: r, width: width, height: height, blobs: blobs}
}

// NextFrame advances the blobs one step and renders them into a fresh
// frame.
func (f *FrameSource) NextFrame() (*motion.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.blobs {
		f.blobs[i].x += f.rand.NormFloat64() * 1.5
		f.blobs[i].y += f.rand.NormFloat64() * 1.5
	}
	frame := &motion.Frame{Width: f.width, Height: f.height, Pix: make([]uint8, f.width*f.height)}
	for y := 0; y < f.height; y++ {
		base := y * f.width
		fy := float64(y)
		for x := 0; x < f.width; x++ {
			fx := float64(x)
			value := 20.0
			for _, b := range f.blobs {
				dist := (b.x-fx)*(b.x-fx) + (b.y-fy)*(b.y-fy) + 1
				value += b.intensity / dist
			}
			if value > 255 {
				value = 255
			}
			frame.Pix[base+x] = uint8(value)
		}
	}
	f.stats.GoodFrames++
	return frame, nil
}

// Stats returns the running counters.
func (f *FrameSource) Stats() platform.FrameStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Close marks the source closed; further calls still succeed since
// there is no real resource to release.
func (f *FrameSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// AimCall records a single SetAim invocation.
type AimCall struct {
	PanDeg, TiltDeg int
}

// Actuator records every command it receives instead of driving real
// hardware.
type Actuator struct {
	mu        sync.Mutex
	aims      []AimCall
	fired     []time.Duration
	safeCalls int
	safetyMax time.Duration
}

// NewActuator builds an Actuator enforcing the given safety cap on
// FireLaser, mirroring the real ServoLaserActuator's clamp.
func NewActuator(safetyMax time.Duration) *Actuator {
	return &Actuator{safetyMax: safetyMax}
}

func (a *Actuator) SetAim(panDeg, tiltDeg int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aims = append(a.aims, AimCall{panDeg, tiltDeg})
	return nil
}

func (a *Actuator) FireLaser(duration time.Duration) error {
	if duration > a.safetyMax {
		duration = a.safetyMax
	}
	a.mu.Lock()
	a.fired = append(a.fired, duration)
	a.mu.Unlock()
	return nil
}

func (a *Actuator) Safe() error {
	a.mu.Lock()
	a.safeCalls++
	a.mu.Unlock()
	return nil
}

func (a *Actuator) Close() error {
	return a.Safe()
}

// Calls returns everything recorded so far, for test assertions.
func (a *Actuator) Calls() (aims []AimCall, fired []time.Duration, safeCalls int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AimCall(nil), a.aims...), append([]time.Duration(nil), a.fired...), a.safeCalls
}
