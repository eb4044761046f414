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

package soc

import (
	"os"
	"strconv"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// InputPin is the interface satisfied by GPIO input pins.
type InputPin interface {
	Read() (bool, error)
}

// OutputPin is the interface satisfied by GPIO output pins.
type OutputPin interface {
	Write(bool) error
}

// PinDriver opens gpio lines for digital I/O on the sysfs chip.
type PinDriver interface {
	// Input initializes a GPIO input pin with the given kernel gpio number.
	Input(num int, activeLow bool) (InputPin, error)
	// Output initializes a GPIO output pin with the given kernel gpio number
	// and initial logical value.
	Output(num int, activeLow bool, initialValue bool) (OutputPin, error)
}

// ecc1Driver drives pins through github.com/ecc1/gpio, which always uses
// DefaultGPIORoot.
type ecc1Driver struct{}

func (ecc1Driver) Input(num int, activeLow bool) (p InputPin, err error) {
	defer recoverMissingPin(num, &err)
	pin, err := gpio.Input(num, activeLow)
	if err != nil {
		return nil, err
	}
	if pin == nil {
		return nil, errors.Errorf("gpio %d has no value file", num)
	}
	return pin, nil
}

func (ecc1Driver) Output(num int, activeLow bool, initialValue bool) (p OutputPin, err error) {
	defer recoverMissingPin(num, &err)
	pin, err := gpio.Output(num, activeLow, initialValue)
	if err != nil {
		return nil, err
	}
	if pin == nil {
		return nil, errors.Errorf("gpio %d has no value file", num)
	}
	return pin, nil
}

// recoverMissingPin turns the nil dereference of ecc1/gpio on a gpio
// without value file into an error.
func recoverMissingPin(num int, err *error) {
	if r := recover(); r != nil {
		*err = errors.Errorf("gpio %d has no value file: %v", num, r)
	}
}

type sysfsPinState struct {
	pinState
	input  InputPin
	output OutputPin
}

// sysfsChip implements SoC on top of the kernel sysfs GPIO class only.
// It serves boards without a register description, addressing pins by
// their kernel GPIO number.
type sysfsChip struct {
	resolver
	log       zerolog.Logger
	root      string
	rootErr   error
	driver    PinDriver
	sysfs     *sysfsGPIO
	states    []sysfsPinState
	setup     bool
	pinMap    []int
	irqMap    []int
	lastGCErr error
}

var _ SoC = &sysfsChip{}

// SysfsLayout creates a layout with one entry per kernel GPIO number.
// Negative numbers become unavailable entries.
func SysfsLayout(nums []int) Layout {
	result := make(Layout, 0, len(nums))
	for _, num := range nums {
		if num < 0 {
			result = append(result, Unavailable("-"))
			continue
		}
		name := "gpio" + strconv.Itoa(num)
		result = append(result, Available(PinDescriptor{Name: name, Num: num}))
	}
	return result
}

// NewSysfsChip creates a SoC for the given layout that performs all
// I/O through sysfs.
// Digital I/O only works on DefaultGPIORoot, so Setup fails with
// GPIORootError when opts.GPIORoot names another directory.
func NewSysfsChip(layout Layout, opts Options, log zerolog.Logger) SoC {
	c := newSysfsChip(layout, DefaultGPIORoot, ecc1Driver{}, opts.ValidGPIO, log)
	if opts.GPIORoot != "" && opts.GPIORoot != DefaultGPIORoot {
		c.rootErr = errors.Wrapf(GPIORootError, "%s, expected %s", opts.GPIORoot, DefaultGPIORoot)
	}
	return c
}

func newSysfsChip(layout Layout, root string, driver PinDriver, validGPIO func(int) bool, log zerolog.Logger) *sysfsChip {
	log = log.With().Str("component", "soc").Str("chip", "sysfs").Logger()
	return &sysfsChip{
		resolver: resolver{
			brand:      "Linux",
			chip:       "sysfs",
			layout:     layout,
			groupCount: 1,
			validGPIO:  validGPIO,
		},
		log:    log,
		root:   root,
		driver: driver,
		sysfs:  newSysfsGPIO(root, log),
		states: make([]sysfsPinState, len(layout)),
	}
}

func (c *sysfsChip) Brand() string { return c.brand }
func (c *sysfsChip) Chip() string  { return c.chip }

// Setup verifies that the sysfs GPIO class is present.
func (c *sysfsChip) Setup() error {
	if c.rootErr != nil {
		return c.rootErr
	}
	if _, err := os.Stat(c.root); err != nil {
		return errors.Wrapf(DeviceOpenError, "%s: %v", c.root, err)
	}
	c.setup = true
	return nil
}

func (c *sysfsChip) SetMap(pinMap []int) { c.pinMap = pinMap }
func (c *sysfsChip) SetIRQ(irqMap []int) { c.irqMap = irqMap }

func (c *sysfsChip) resolvePin(pin int, m []int) (int, *PinDescriptor, error) {
	index, pd, err := c.resolve(pin, m)
	if err != nil {
		return 0, nil, err
	}
	if !c.setup {
		return 0, nil, errors.Wrapf(NotSetupError, "%s %s", c.brand, c.chip)
	}
	return index, pd, nil
}

func (c *sysfsChip) PinName(pin int) (string, error) {
	return c.name(pin, c.pinMap)
}

func (c *sysfsChip) Pin(pin int) (PinInfo, error) {
	index, pd, err := c.resolve(pin, c.pinMap)
	if err != nil {
		return PinInfo{}, err
	}
	return PinInfo{PinDescriptor: *pd, Mode: c.states[index].mode}, nil
}

// disarm releases the interrupt resources of a pin, logging failures.
func (c *sysfsChip) disarm(pin int, pd *PinDescriptor, st *sysfsPinState) {
	if err := c.sysfs.disarm(pd.Num, st.value); err != nil {
		c.log.Warn().Err(err).Int("pin", pin).Msg("Failed to disarm interrupt")
	}
	st.value = nil
	st.mode = ModeNotSet
}

func (c *sysfsChip) PinMode(pin int, mode Mode) error {
	index, pd, err := c.resolvePin(pin, c.pinMap)
	if err != nil {
		return err
	}
	if mode != ModeInput && mode != ModeOutput {
		return errors.Wrapf(InvalidModeError, "%s for pin %d", mode, pin)
	}
	st := &c.states[index]
	if st.mode == ModeInterrupt {
		c.disarm(pin, pd, st)
	}
	switch mode {
	case ModeInput:
		p, err := c.driver.Input(pd.Num, false)
		if err != nil {
			return errors.Wrapf(DirectionError, "gpio %d: %v", pd.Num, err)
		}
		st.input, st.output = p, nil
	case ModeOutput:
		p, err := c.driver.Output(pd.Num, false, false)
		if err != nil {
			return errors.Wrapf(DirectionError, "gpio %d: %v", pd.Num, err)
		}
		st.input, st.output = nil, p
	}
	st.mode = mode
	registerOpsTotal.WithLabelValues("pin_mode").Inc()
	return nil
}

func (c *sysfsChip) DigitalWrite(pin int, value Value) error {
	index, pd, err := c.resolvePin(pin, c.pinMap)
	if err != nil {
		return err
	}
	st := &c.states[index]
	if err := checkMode(pin, st.mode, ModeOutput); err != nil {
		return err
	}
	if value != Low && value != High {
		return errors.Wrapf(InvalidValueError, "%d for pin %d", uint8(value), pin)
	}
	if err := st.output.Write(value == High); err != nil {
		return errors.Wrapf(err, "write gpio %d", pd.Num)
	}
	registerOpsTotal.WithLabelValues("write").Inc()
	return nil
}

func (c *sysfsChip) DigitalRead(pin int) (Value, error) {
	index, pd, err := c.resolvePin(pin, c.pinMap)
	if err != nil {
		return Low, err
	}
	st := &c.states[index]
	if err := checkMode(pin, st.mode, ModeInput); err != nil {
		return Low, err
	}
	on, err := st.input.Read()
	if err != nil {
		return Low, errors.Wrapf(err, "read gpio %d", pd.Num)
	}
	registerOpsTotal.WithLabelValues("read").Inc()
	if on {
		return High, nil
	}
	return Low, nil
}

func (c *sysfsChip) ISR(pin int, edge Edge) error {
	index, pd, err := c.resolvePin(pin, c.irqMap)
	if err != nil {
		return err
	}
	if err := edge.Validate(); err != nil {
		return err
	}
	st := &c.states[index]
	value, err := c.sysfs.arm(pd.Num, edge)
	if err != nil {
		if st.mode == ModeInterrupt {
			c.disarm(pin, pd, st)
		}
		return err
	}
	if st.value != nil {
		if err := st.value.Close(); err != nil {
			c.log.Warn().Err(err).Int("pin", pin).Msg("Failed to close previous gpio value")
		}
	}
	st.input, st.output = nil, nil
	st.value = value
	st.mode = ModeInterrupt
	return nil
}

func (c *sysfsChip) WaitForInterrupt(pin int, timeout time.Duration) (Value, error) {
	index, _, err := c.resolvePin(pin, c.irqMap)
	if err != nil {
		return Low, err
	}
	st := &c.states[index]
	if err := checkMode(pin, st.mode, ModeInterrupt); err != nil {
		return Low, err
	}
	v, err := wait(st.value, timeout)
	if err != nil {
		if IsTimeout(err) {
			interruptTimeoutsTotal.Inc()
		}
		return Low, err
	}
	interruptsTotal.Inc()
	return v, nil
}

func (c *sysfsChip) SelectableFd(pin int) (int, error) {
	index, _, err := c.resolvePin(pin, c.irqMap)
	if err != nil {
		return -1, err
	}
	st := &c.states[index]
	if err := checkMode(pin, st.mode, ModeInterrupt); err != nil {
		return -1, err
	}
	return int(st.value.Fd()), nil
}

// GC reverts outputs to inputs and unexports every gpio it touched.
func (c *sysfsChip) GC() {
	var ae aerr.AggregateError
	for _, index := range referencedIndexes(len(c.layout), c.pinMap, c.irqMap) {
		entry := c.layout[index]
		if !entry.IsAvailable() {
			continue
		}
		st := &c.states[index]
		num := entry.Pin.Num
		switch st.mode {
		case ModeOutput:
			if _, err := c.driver.Input(num, false); err != nil {
				ae.Add(errors.Wrapf(err, "revert gpio %d to input", num))
			}
			fallthrough
		case ModeInput:
			if c.sysfs.isExported(num) {
				ae.Add(c.sysfs.unexport(num))
			}
		case ModeInterrupt:
			ae.Add(c.sysfs.disarm(num, st.value))
		}
		*st = sysfsPinState{}
	}
	c.setup = false
	c.lastGCErr = ae.AsError()
	if c.lastGCErr != nil {
		gcErrorsTotal.Inc()
		c.log.Warn().Err(c.lastGCErr).Msg("GC completed with errors")
	}
}

func (c *sysfsChip) LastGCError() error {
	return c.lastGCErr
}
