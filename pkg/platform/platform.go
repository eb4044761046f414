// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package platform

import (
	"sync"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/wiring/pkg/bus"
	"github.com/binkynet/wiring/pkg/soc"
)

// Platform binds a board's logical pin numbering to a SoC.
// All pin arguments are logical pin numbers.
type Platform struct {
	name   string
	log    zerolog.Logger
	soc    soc.SoC
	pinMap []int
	irqMap []int

	gpioClaims *bus.Claims[int]
	pwmClaims  *bus.Claims[int]
	busMutex   sync.Mutex
	i2cBuses   map[string]*bus.I2CBus
	spiPorts   *bus.SPIPorts
	uarts      *bus.UARTs
}

func newPlatform(name string, pinMap, irqMap []int, pwmMap map[int]int, cfg Config, log zerolog.Logger, create func(opts soc.Options, log zerolog.Logger) soc.SoC) *Platform {
	p := &Platform{
		name:   name,
		log:    log.With().Str("platform", name).Logger(),
		pinMap: pinMap,
		irqMap: irqMap,

		gpioClaims: bus.NewClaims[int]("gpio pin"),
		pwmClaims:  bus.NewClaims[int]("pwm pin"),
		i2cBuses:   make(map[string]*bus.I2CBus),
	}
	p.spiPorts = bus.NewSPIPorts(p.log)
	p.uarts = bus.NewUARTs(p.log)
	opts := cfg.SoC
	opts.ValidGPIO = p.ValidGPIO
	if opts.PWMMap == nil {
		opts.PWMMap = pwmMap
	}
	p.soc = create(opts, p.log)
	p.soc.SetMap(pinMap)
	p.soc.SetIRQ(irqMap)
	return p
}

// Name of the board
func (p *Platform) Name() string { return p.name }

// SoC returns the chip of the board.
func (p *Platform) SoC() soc.SoC { return p.soc }

// ValidGPIO returns true when the given logical pin exists on the board.
func (p *Platform) ValidGPIO(pin int) bool {
	return pin >= 0 && pin < len(p.pinMap) && p.pinMap[pin] >= 0
}

// Pins returns all valid logical pins.
func (p *Platform) Pins() []int {
	return lo.Filter(lo.Range(len(p.pinMap)), func(pin int, _ int) bool {
		return p.ValidGPIO(pin)
	})
}

// Setup acquires the hardware resources of the chip.
func (p *Platform) Setup() error {
	if err := p.soc.Setup(); err != nil {
		return err
	}
	p.log.Info().Msg("Platform setup")
	return nil
}

func (p *Platform) PinName(pin int) (string, error)        { return p.soc.PinName(pin) }
func (p *Platform) Pin(pin int) (soc.PinInfo, error)       { return p.soc.Pin(pin) }
func (p *Platform) PinMode(pin int, mode soc.Mode) error   { return p.soc.PinMode(pin, mode) }
func (p *Platform) DigitalRead(pin int) (soc.Value, error) { return p.soc.DigitalRead(pin) }
func (p *Platform) ISR(pin int, edge soc.Edge) error       { return p.soc.ISR(pin, edge) }
func (p *Platform) SelectableFd(pin int) (int, error)      { return p.soc.SelectableFd(pin) }
func (p *Platform) LastGCError() error                     { return p.soc.LastGCError() }

func (p *Platform) DigitalWrite(pin int, value soc.Value) error {
	return p.soc.DigitalWrite(pin, value)
}

func (p *Platform) WaitForInterrupt(pin int, timeout time.Duration) (soc.Value, error) {
	return p.soc.WaitForInterrupt(pin, timeout)
}

// ClaimPin gives the caller exclusive use of the given pin.
// Call the returned function to give it back.
func (p *Platform) ClaimPin(pin int) (func(), error) {
	if !p.ValidGPIO(pin) {
		return nil, errors.Wrapf(soc.InvalidPinError, "pin %d on %s", pin, p.name)
	}
	return p.gpioClaims.Claim(pin)
}

// ClaimPWM gives the caller exclusive use of the pwm channel of the given pin.
func (p *Platform) ClaimPWM(pin int) (func(), error) {
	if !p.ValidGPIO(pin) {
		return nil, errors.Wrapf(soc.InvalidPinError, "pin %d on %s", pin, p.name)
	}
	return p.pwmClaims.Claim(pin)
}

// I2CBus returns the bus of the given adapter (e.g. /dev/i2c-1).
func (p *Platform) I2CBus(location string) *bus.I2CBus {
	p.busMutex.Lock()
	defer p.busMutex.Unlock()
	b, found := p.i2cBuses[location]
	if !found {
		b = bus.NewI2CBus(location, p.log)
		p.i2cBuses[location] = b
	}
	return b
}

// OpenI2C claims the device with given address on the given adapter.
func (p *Platform) OpenI2C(location string, address uint8) (*bus.I2C, error) {
	return p.I2CBus(location).Open(address)
}

// OpenSPI claims and connects an SPI channel.
func (p *Platform) OpenSPI(cfg bus.SPIConfig) (*bus.SPI, error) {
	return p.spiPorts.Open(cfg)
}

// OpenUART claims and opens a serial device.
func (p *Platform) OpenUART(cfg bus.UARTConfig) (*bus.UART, error) {
	return p.uarts.Open(cfg)
}

// closeBuses closes all i2c buses.
func (p *Platform) closeBuses() error {
	p.busMutex.Lock()
	defer p.busMutex.Unlock()
	var ae aerr.AggregateError
	for location, b := range p.i2cBuses {
		if err := b.Close(); err != nil {
			ae.Add(errors.Wrapf(err, "i2c bus %s", location))
		}
	}
	clear(p.i2cBuses)
	return ae.AsError()
}

// GC releases all hardware resources.
func (p *Platform) GC() {
	if err := p.closeBuses(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to close i2c buses")
	}
	p.soc.GC()
	if err := p.soc.LastGCError(); err != nil {
		p.log.Warn().Err(err).Msg("Platform GC incomplete")
		return
	}
	p.log.Info().Msg("Platform released")
}

func (p *Platform) pwm(pin int) (soc.PWM, error) {
	if x, ok := p.soc.(soc.PWM); ok {
		return x, nil
	}
	return nil, errors.Wrapf(soc.NotPWMPinError, "%s has no pwm support (pin %d)", p.name, pin)
}

func (p *Platform) SetPWMPeriod(pin int, period time.Duration) error {
	x, err := p.pwm(pin)
	if err != nil {
		return err
	}
	return x.SetPWMPeriod(pin, period)
}

func (p *Platform) SetPWMDuty(pin int, duty time.Duration) error {
	x, err := p.pwm(pin)
	if err != nil {
		return err
	}
	return x.SetPWMDuty(pin, duty)
}

func (p *Platform) SetPWMPolarity(pin int, polarity soc.Polarity) error {
	x, err := p.pwm(pin)
	if err != nil {
		return err
	}
	return x.SetPWMPolarity(pin, polarity)
}

func (p *Platform) EnablePWM(pin int, enable bool) error {
	x, err := p.pwm(pin)
	if err != nil {
		return err
	}
	return x.EnablePWM(pin, enable)
}
