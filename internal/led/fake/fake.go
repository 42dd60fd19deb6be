// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fake provides a recording led.Driver for dev builds and tests
// that have no real GPIO pins to drive, the same role
// periph.io/x/periph/conn/gpio/gpiotest.Pin plays for the teacher's
// lepton package tests.
package fake

import "sync"

// Driver records every SetColor call and exposes the last one, so a
// test can assert on what the pattern thread rendered without real
// hardware.
type Driver struct {
	mu      sync.Mutex
	calls   int
	r, g, b bool
}

// SetColor records the call.
func (d *Driver) SetColor(r, g, b bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.r, d.g, d.b = r, g, b
	return nil
}

// Last returns the most recently set color and the total call count.
func (d *Driver) Last() (r, g, b bool, calls int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.r, d.g, d.b, d.calls
}
