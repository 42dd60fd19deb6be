// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package platform is the abstraction seam between the detection
// pipeline and the hardware it runs on: a camera frame source and a
// servo/laser actuator. Per spec, the camera and actuator themselves are
// external collaborators (interface only); this package defines that
// interface plus the periph.io-backed production wiring, grounded on the
// lifecycle lepton.Lepton/lepton.New hold over a gpio.PinOut and SPI/I2C
// bus for the process's duration.
package platform

import (
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/motion"
)

// FrameStats mirrors the counters lepton.Stats exposes, generalized from
// one sensor's transfer-failure bookkeeping to any frame source.
type FrameStats struct {
	GoodFrames    int
	DroppedFrames int
	ReadErrors    int
}

// FrameSource produces luminance frames for the detection pipeline. The
// returned Frame is valid until the next call to NextFrame.
type FrameSource interface {
	NextFrame() (*motion.Frame, error)
	Stats() FrameStats
	Close() error
}

// Actuator aims and fires the deterrent hardware. SetAim and FireLaser
// both block until the command is physically applied or the safety
// timeout elapses.
type Actuator interface {
	// SetAim points the servo at the given pan/tilt, in degrees from
	// center, clamped by the caller to the configured range.
	SetAim(panDeg, tiltDeg int) error
	// FireLaser energizes the laser for duration, never longer than the
	// configured safety timeout regardless of the requested duration.
	FireLaser(duration time.Duration) error
	// Safe immediately de-energizes the laser and centers the servo.
	Safe() error
	Close() error
}
