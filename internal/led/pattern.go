// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package led

import (
	"log"
	"time"
)

// PatternTick is how often the pattern thread re-renders the LED.
const PatternTick = 100 * time.Millisecond

// breathingPeriod is the period of the BOOT breathing-blue ramp.
const breathingPeriod = 2 * time.Second

// Driver is the output seam: a single RGB-capable indicator. Production
// wires this to GPIO pins (see gpio.go); tests and headless dev builds
// use a recording fake (see led/fake).
type Driver interface {
	SetColor(r, g, b bool) error
}

// Pattern drives a Controller's rendered output to a Driver on a fixed
// tick, joining within a bounded grace period on Stop — mirroring the
// teacher's WebServer goroutine that selects on interrupt.Channel, but
// with its own local stop channel since Pattern is owned and stopped by
// its caller rather than the process-wide interrupt signal directly.
type Pattern struct {
	ctrl   *Controller
	driver Driver
	stop   chan struct{}
	done   chan struct{}
}

// NewPattern returns a Pattern rendering ctrl's state to driver.
func NewPattern(ctrl *Controller, driver Driver) *Pattern {
	return &Pattern{ctrl: ctrl, driver: driver, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the render loop in a goroutine until Stop is called.
func (p *Pattern) Start() {
	go p.run()
}

// Stop signals the render loop to exit and waits for it, within a
// bounded grace period; if it does not exit in time, a warning is
// logged and Stop returns anyway so shutdown can proceed.
func (p *Pattern) Stop() {
	close(p.stop)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		log.Printf("led: pattern thread did not join within grace period")
	}
}

func (p *Pattern) run() {
	defer close(p.done)
	ticker := time.NewTicker(PatternTick)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			r, g, b := colorFor(p.ctrl.GetState(), now.Sub(start))
			if err := p.driver.SetColor(r, g, b); err != nil {
				log.Printf("led: SetColor: %v", err)
			}
		}
	}
}

// colorFor renders state's pattern at elapsed time since the pattern
// thread started into an (r, g, b) on/off triple. BOOT's breathing
// ramp and the 1Hz/4s blinks are software PWM approximations driven off
// elapsed time, since the status LED's GPIO pins are plain digital
// outputs with no hardware PWM channel wired.
func colorFor(state State, elapsed time.Duration) (r, g, b bool) {
	switch state {
	case StateArmed:
		return false, true, false // solid green
	case StateDisarmed:
		return true, true, false // solid yellow (red+green)
	case StateBoot:
		on := breathingOn(elapsed)
		return false, false, on // blue
	case StateError:
		on := blinkPhase(elapsed, time.Second)
		return on, false, false // 1Hz red blink
	case StateOffline:
		on := blinkPhase(elapsed, 4*time.Second)
		return on, on, false // orange blink every 4s (red+green)
	case StateDetection:
		return true, true, true // white flash
	default:
		return false, false, false
	}
}

// blinkPhase reports whether elapsed falls in the "on" half of a square
// wave with the given period.
func blinkPhase(elapsed, period time.Duration) bool {
	phase := elapsed % period
	return phase < period/2
}

// breathingOn approximates a triangular brightness ramp with a duty-
// cycled digital output: the fraction of each PatternTick the pin is
// held high rises and falls linearly over breathingPeriod.
func breathingOn(elapsed time.Duration) bool {
	phase := elapsed % breathingPeriod
	half := breathingPeriod / 2
	var fraction float64
	if phase < half {
		fraction = float64(phase) / float64(half)
	} else {
		fraction = 1 - float64(phase-half)/float64(half)
	}
	tickPhase := elapsed % PatternTick
	return float64(tickPhase) < fraction*float64(PatternTick)
}
