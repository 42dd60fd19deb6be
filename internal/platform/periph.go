// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package platform

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
	"github.com/hivewarden/apis-edge-sub017/internal/motion"
)

// CameraSource reads frames over SPI from the visible-light sensor
// module, held for the process lifetime exactly as lepton.Dev holds its
// spi.Conn and chip-select pin. It converts the raw line transfer into a
// flat 8-bit luminance motion.Frame; the sensor's native pixel format
// and frame-sync protocol are a detail of the bus implementation, not of
// this package's exported surface.
type CameraSource struct {
	mu     sync.Mutex
	conn   spi.Conn
	port   spi.PortCloser
	width  int
	height int
	buf    []byte
	frame  motion.Frame
	stats  FrameStats
}

// OpenCameraSource opens the named SPI port and initializes a connection
// at the given pixel dimensions.
func OpenCameraSource(spiName string, width, height int) (*CameraSource, error) {
	const op = "platform.OpenCameraSource"
	if _, err := host.Init(); err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	port, err := spireg.Open(spiName)
	if err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	conn, err := port.Connect(10*1000*1000, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	return &CameraSource{
		conn:   conn,
		port:   port,
		width:  width,
		height: height,
		buf:    make([]byte, width*height),
		frame:  motion.Frame{Width: width, Height: height, Pix: make([]uint8, width*height)},
	}, nil
}

// NextFrame performs one SPI transfer of a full frame's worth of bytes
// and returns the pixel plane. The returned *motion.Frame aliases
// CameraSource's internal buffer; the caller must finish using it
// before the next call.
func (c *CameraSource) NextFrame() (*motion.Frame, error) {
	const op = "platform.CameraSource.NextFrame"
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Tx(nil, c.buf); err != nil {
		c.stats.ReadErrors++
		return nil, apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	copy(c.frame.Pix, c.buf)
	c.stats.GoodFrames++
	return &c.frame, nil
}

// Stats returns a snapshot of the transfer counters.
func (c *CameraSource) Stats() FrameStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases the SPI port.
func (c *CameraSource) Close() error {
	return c.port.Close()
}

// ServoLaserActuator drives a pan/tilt servo pair and a laser enable pin
// over GPIO, each resolved once at construction via gpioreg.ByName the
// same way lepton's chip-select pin is resolved by name.
type ServoLaserActuator struct {
	mu            sync.Mutex
	pan, tilt     gpio.PinOut
	laser         gpio.PinOut
	laserSafety   time.Duration
	laserDeadline time.Time
	i2cForTrim    i2c.Bus // reserved for a future PWM driver IC; unused by this software-PWM implementation
}

// OpenServoLaserActuator resolves the named GPIO pins and an optional
// I2C bus (for a future PWM driver IC; nil is valid and simply leaves
// the reservation unused).
func OpenServoLaserActuator(panPin, tiltPin, laserPin string, i2cName string, laserSafety time.Duration) (*ServoLaserActuator, error) {
	const op = "platform.OpenServoLaserActuator"
	if _, err := host.Init(); err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	pan := gpioreg.ByName(panPin)
	tilt := gpioreg.ByName(tiltPin)
	laser := gpioreg.ByName(laserPin)
	if pan == nil || tilt == nil || laser == nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, fmt.Errorf("one or more actuator pins not found: %s, %s, %s", panPin, tiltPin, laserPin))
	}
	var bus i2c.Bus
	if i2cName != "" {
		b, err := i2creg.Open(i2cName)
		if err != nil {
			return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
		}
		bus = b
	}
	return &ServoLaserActuator{pan: pan, tilt: tilt, laser: laser, laserSafety: laserSafety, i2cForTrim: bus}, nil
}

// SetAim is a placeholder digital aim signal: true/false only, since a
// proper PWM angle requires a dedicated PWM channel this breakout does
// not expose. Aiming resolution beyond "toward target half" vs. "toward
// center" is left to a future PWM driver IC wired through i2cForTrim.
func (a *ServoLaserActuator) SetAim(panDeg, tiltDeg int) error {
	const op = "platform.ServoLaserActuator.SetAim"
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.pan.Out(gpio.Level(panDeg >= 0)); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	if err := a.tilt.Out(gpio.Level(tiltDeg >= 0)); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	return nil
}

// FireLaser energizes the laser pin for duration, clamped to the
// configured safety timeout, then de-energizes it.
func (a *ServoLaserActuator) FireLaser(duration time.Duration) error {
	const op = "platform.ServoLaserActuator.FireLaser"
	if duration > a.laserSafety {
		duration = a.laserSafety
	}
	a.mu.Lock()
	a.laserDeadline = time.Now().Add(duration)
	err := a.laser.Out(gpio.High)
	a.mu.Unlock()
	if err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	time.Sleep(duration)
	return a.Safe()
}

// Safe de-energizes the laser immediately. It does not center the
// servo: the pan and tilt pins keep their last level.
func (a *ServoLaserActuator) Safe() error {
	const op = "platform.ServoLaserActuator.Safe"
	a.mu.Lock()
	defer a.mu.Unlock()
	a.laserDeadline = time.Time{}
	if err := a.laser.Out(gpio.Low); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	return nil
}

func (a *ServoLaserActuator) Close() error {
	return a.Safe()
}
