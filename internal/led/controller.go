// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package led implements LedController: the single status LED's active-
// state bitmask, priority resolution, and the 100ms pattern-rendering
// thread, grounded on the teacher's habit of holding one gpio.PinOut for
// the process lifetime (lepton.Dev's chip-select pin in
// lepton/lepton.go) and the gpiotest fakes lepton_test.go uses for
// hardware-free testing.
package led

import (
	"fmt"
	"sync"
	"time"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// State is one of the LED's named states. Off is the zero value and is
// never set via SetState; it is simply what GetState reports when
// nothing else is active.
type State int

const (
	StateOff State = iota
	StateBoot
	StateDisarmed
	StateArmed
	StateOffline
	StateError
	StateDetection
)

func (s State) String() string {
	switch s {
	case StateBoot:
		return "BOOT"
	case StateDisarmed:
		return "DISARMED"
	case StateArmed:
		return "ARMED"
	case StateOffline:
		return "OFFLINE"
	case StateError:
		return "ERROR"
	case StateDetection:
		return "DETECTION"
	default:
		return "OFF"
	}
}

// bit returns the bitmask position for a toggleable state. StateOff and
// StateDetection have no bit: Off is the absence of every bit, and
// Detection is driven entirely by the flash deadline, per the spec's
// documented asymmetry (is_state_active(DETECTION) is always false).
func (s State) bit() (uint8, bool) {
	switch s {
	case StateBoot:
		return 1 << 0, true
	case StateDisarmed:
		return 1 << 1, true
	case StateArmed:
		return 1 << 2, true
	case StateOffline:
		return 1 << 3, true
	case StateError:
		return 1 << 4, true
	default:
		return 0, false
	}
}

// priorityOrder lists every toggleable state from highest to lowest
// display priority. DETECTION is not listed here: GetState checks it
// separately, after StateError and before the rest of this list.
var priorityOrder = []State{StateError, StateOffline, StateArmed, StateDisarmed, StateBoot}

// detectionFlashDuration is how long flash_detection's overlay stays
// visible via GetState.
const detectionFlashDuration = 200 * time.Millisecond

// Controller owns the active-state bitmask and the detection-flash
// deadline, guarded by one exclusive lock per the concurrency model:
// flash_detection sets a deadline and releases immediately.
type Controller struct {
	mu                sync.Mutex
	active            uint8
	detectionDeadline time.Time
}

// New returns a Controller with no active states.
func New() *Controller {
	return &Controller{}
}

// SetState activates or deactivates a toggleable state. StateDetection
// must be driven through FlashDetection, not SetState; StateOff is
// never itself a target.
func (c *Controller) SetState(s State, active bool) error {
	bit, ok := s.bit()
	if !ok {
		return apiscommon.Wrap(apiscommon.KindInvalidInput, "led.SetState", fmt.Errorf("state %s is not directly settable", s))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if active {
		c.active |= bit
	} else {
		c.active &^= bit
	}
	return nil
}

// IsStateActive reports whether s is currently in the active bitmask.
// Per the spec's documented asymmetry, StateDetection always returns
// false here even while its flash is visible via GetState.
func (c *Controller) IsStateActive(s State) bool {
	bit, ok := s.bit()
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active&bit != 0
}

// FlashDetection starts (or restarts) the 200ms detection overlay.
func (c *Controller) FlashDetection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detectionDeadline = time.Now().Add(detectionFlashDuration)
}

// GetState returns the pattern that should currently be displayed.
// StateError outranks everything, including a live detection flash: an
// error condition must stay visible rather than being masked for 200ms
// every time a detection comes in. Below ERROR, the detection overlay
// wins if its deadline has not passed, then the remaining priority order,
// then StateOff.
func (c *Controller) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	errBit, _ := StateError.bit()
	if c.active&errBit != 0 {
		return StateError
	}
	if time.Now().Before(c.detectionDeadline) {
		return StateDetection
	}
	for _, s := range priorityOrder {
		if s == StateError {
			continue
		}
		bit, _ := s.bit()
		if c.active&bit != 0 {
			return s
		}
	}
	return StateOff
}

// State reports the current display state as a string, satisfying
// httpserver's narrow view into the LED for /status responses.
func (c *Controller) State() string {
	return c.GetState().String()
}
