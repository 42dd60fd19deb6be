// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package led

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/hivewarden/apis-edge-sub017/internal/apiscommon"
)

// gpioDriver drives three digital output pins as an RGB indicator,
// acquired once at construction and held for the process lifetime the
// same way lepton.Dev holds its chip-select gpio.PinOut.
type gpioDriver struct {
	r, g, b gpio.PinOut
}

// NewGPIODriver initializes periph.io's host drivers and resolves the
// three named pins by name via gpioreg, exactly the lookup lepton.New
// performs for its chip-select line.
func NewGPIODriver(rPin, gPin, bPin string) (Driver, error) {
	const op = "led.NewGPIODriver"
	if _, err := host.Init(); err != nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, err)
	}
	r := gpioreg.ByName(rPin)
	g := gpioreg.ByName(gPin)
	b := gpioreg.ByName(bPin)
	if r == nil || g == nil || b == nil {
		return nil, apiscommon.Wrap(apiscommon.KindIOPermanent, op, fmt.Errorf("one or more LED pins not found: %s, %s, %s", rPin, gPin, bPin))
	}
	return &gpioDriver{r: r, g: g, b: b}, nil
}

func (d *gpioDriver) SetColor(r, g, b bool) error {
	const op = "led.gpioDriver.SetColor"
	if err := d.r.Out(gpio.Level(r)); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	if err := d.g.Out(gpio.Level(g)); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	if err := d.b.Out(gpio.Level(b)); err != nil {
		return apiscommon.Wrap(apiscommon.KindIOTransient, op, err)
	}
	return nil
}
