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
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ChipInfo describes the register layout of a memory mapped chip.
type ChipInfo struct {
	Brand string
	Chip  string
	// Size of a single mapped page
	PageSize int
	// Physical base address of every GPIO group
	GroupBases []int64
	// Physical base address of the pin multiplexer block
	PinmuxBase int64
	// Sub-offset of the output data register, added to Data.Offset
	DataRegister uintptr
	// Sub-offset of the external port (input) register, added to Data.Offset
	ExtPortRegister uintptr
	// Pin layout table
	Layout Layout
	// PWMChannel converts a chip PWM number into a sysfs channel.
	// Nil when the chip has no PWM support.
	PWMChannel func(pwm int) (PWMChannel, error)
}

type pinState struct {
	mode  Mode
	value *os.File
}

// registerChip implements SoC with memory mapped registers for digital
// I/O and sysfs for interrupts and PWM.
type registerChip struct {
	resolver
	info      *ChipInfo
	log       zerolog.Logger
	pwmMap    map[int]int
	mapper    *registerMapper
	sysfs     *sysfsGPIO
	pwm       *sysfsPWM
	states    []pinState
	pinMap    []int
	irqMap    []int
	lastGCErr error
}

var (
	_ SoC = &registerChip{}
	_ PWM = &registerChip{}
)

// NewRegisterChip creates a memory mapped SoC for the given chip.
func NewRegisterChip(info *ChipInfo, opts Options, log zerolog.Logger) SoC {
	devicePath := opts.MemDevice
	if devicePath == "" {
		devicePath = DefaultMemDevice
	}
	log = log.With().Str("component", "soc").Str("chip", info.Brand+" "+info.Chip).Logger()
	return &registerChip{
		resolver: resolver{
			brand:      info.Brand,
			chip:       info.Chip,
			layout:     info.Layout,
			groupCount: len(info.GroupBases),
			validGPIO:  opts.ValidGPIO,
		},
		info:   info,
		log:    log,
		pwmMap: opts.PWMMap,
		mapper: newRegisterMapper(info, devicePath, log),
		sysfs:  newSysfsGPIO(opts.GPIORoot, log),
		pwm:    newSysfsPWM(opts.PWMRoot, log),
		states: make([]pinState, len(info.Layout)),
	}
}

func (c *registerChip) Brand() string { return c.info.Brand }
func (c *registerChip) Chip() string  { return c.info.Chip }

// Setup opens the memory device and maps all register pages.
func (c *registerChip) Setup() error {
	if err := c.mapper.setup(); err != nil {
		c.log.Error().Err(err).Msg("Setup failed")
		return err
	}
	return nil
}

func (c *registerChip) SetMap(pinMap []int) { c.pinMap = pinMap }
func (c *registerChip) SetIRQ(irqMap []int) { c.irqMap = irqMap }

// resolvePin resolves a pin and requires the chip to be setup.
func (c *registerChip) resolvePin(pin int, m []int) (int, *PinDescriptor, error) {
	index, pd, err := c.resolve(pin, m)
	if err != nil {
		return 0, nil, err
	}
	if !c.mapper.ready() {
		return 0, nil, errors.Wrapf(NotSetupError, "%s %s", c.info.Brand, c.info.Chip)
	}
	return index, pd, nil
}

func (c *registerChip) PinName(pin int) (string, error) {
	return c.name(pin, c.pinMap)
}

func (c *registerChip) Pin(pin int) (PinInfo, error) {
	index, pd, err := c.resolve(pin, c.pinMap)
	if err != nil {
		return PinInfo{}, err
	}
	return PinInfo{PinDescriptor: *pd, Mode: c.states[index].mode}, nil
}

// PinMode routes the pad to its GPIO function and sets its direction.
func (c *registerChip) PinMode(pin int, mode Mode) error {
	index, pd, err := c.resolvePin(pin, c.pinMap)
	if err != nil {
		return err
	}
	if mode != ModeInput && mode != ModeOutput {
		return errors.Wrapf(InvalidModeError, "%s for pin %d", mode, pin)
	}
	st := &c.states[index]
	if st.mode == ModeInterrupt {
		if err := c.disarm(pd, st); err != nil {
			c.log.Warn().Err(err).Int("pin", pin).Msg("Failed to disarm interrupt before mode change")
		}
	}
	if err := c.setDirection(pd, mode); err != nil {
		return err
	}
	st.mode = mode
	registerOpsTotal.WithLabelValues("pin_mode").Inc()
	return nil
}

// setDirection writes the pinmux register and the direction bit.
func (c *registerChip) setDirection(pd *PinDescriptor, mode Mode) error {
	muxReg, err := c.mapper.pinmuxRegister(pd.Pinmux.Offset)
	if err != nil {
		return err
	}
	dirReg, err := c.mapper.groupRegister(pd.Group, pd.Direction.Offset)
	if err != nil {
		return err
	}
	*muxReg = pd.Pinmux.Value
	setBit(dirReg, pd.Direction.Bit, mode == ModeOutput)
	return nil
}

// DigitalWrite sets or clears the data bit of an output pin.
func (c *registerChip) DigitalWrite(pin int, value Value) error {
	index, pd, err := c.resolvePin(pin, c.pinMap)
	if err != nil {
		return err
	}
	if err := checkMode(pin, c.states[index].mode, ModeOutput); err != nil {
		return err
	}
	if value != Low && value != High {
		return errors.Wrapf(InvalidValueError, "%d for pin %d", uint8(value), pin)
	}
	reg, err := c.mapper.groupRegister(pd.Group, pd.Data.Offset+c.info.DataRegister)
	if err != nil {
		return err
	}
	setBit(reg, pd.Data.Bit, value == High)
	registerOpsTotal.WithLabelValues("write").Inc()
	return nil
}

// DigitalRead reads the external port bit of an input pin.
func (c *registerChip) DigitalRead(pin int) (Value, error) {
	index, pd, err := c.resolvePin(pin, c.pinMap)
	if err != nil {
		return Low, err
	}
	if err := checkMode(pin, c.states[index].mode, ModeInput); err != nil {
		return Low, err
	}
	reg, err := c.mapper.groupRegister(pd.Group, pd.Data.Offset+c.info.ExtPortRegister)
	if err != nil {
		return Low, err
	}
	registerOpsTotal.WithLabelValues("read").Inc()
	return Value(getBit(reg, pd.Data.Bit)), nil
}

// ISR exports the pin through sysfs and arms edge interrupts.
func (c *registerChip) ISR(pin int, edge Edge) error {
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
			// The previous edge setup is no longer known to be intact
			if derr := c.disarm(pd, st); derr != nil {
				c.log.Warn().Err(derr).Int("pin", pin).Msg("Failed to disarm interrupt after failed re-arm")
			}
		}
		return err
	}
	c.replaceValue(pin, st, value)
	st.mode = ModeInterrupt
	return nil
}

// replaceValue installs a newly opened value file, closing the previous one.
func (c *registerChip) replaceValue(pin int, st *pinState, value *os.File) {
	if st.value != nil {
		if err := st.value.Close(); err != nil {
			c.log.Warn().Err(err).Int("pin", pin).Msg("Failed to close previous gpio value")
		}
	}
	st.value = value
}

// WaitForInterrupt blocks on the value file of an armed pin.
func (c *registerChip) WaitForInterrupt(pin int, timeout time.Duration) (Value, error) {
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

// SelectableFd returns the value file descriptor of an armed pin.
func (c *registerChip) SelectableFd(pin int) (int, error) {
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

// disarm releases the sysfs resources of an interrupt pin.
func (c *registerChip) disarm(pd *PinDescriptor, st *pinState) error {
	err := c.sysfs.disarm(pd.Num, st.value)
	st.value = nil
	st.mode = ModeNotSet
	return err
}

// GC reverts outputs to inputs, disarms interrupts, releases PWM
// channels and unmaps all register pages.
func (c *registerChip) GC() {
	var ae aerr.AggregateError
	for _, index := range referencedIndexes(len(c.info.Layout), c.pinMap, c.irqMap) {
		entry := c.info.Layout[index]
		if !entry.IsAvailable() {
			continue
		}
		st := &c.states[index]
		switch st.mode {
		case ModeOutput:
			if err := c.setDirection(entry.Pin, ModeInput); err != nil {
				ae.Add(errors.Wrapf(err, "revert %s to input", entry.Name))
			}
		case ModeInterrupt:
			if err := c.disarm(entry.Pin, st); err != nil {
				ae.Add(err)
			}
		}
		if st.value != nil {
			if err := st.value.Close(); err != nil {
				ae.Add(errors.Wrapf(err, "close value of %s", entry.Name))
			}
			st.value = nil
		}
		st.mode = ModeNotSet
	}
	if err := c.pwm.close(); err != nil {
		ae.Add(err)
	}
	if err := c.mapper.unmap(); err != nil {
		ae.Add(err)
	}
	c.lastGCErr = ae.AsError()
	if c.lastGCErr != nil {
		gcErrorsTotal.Inc()
		c.log.Warn().Err(c.lastGCErr).Msg("GC completed with errors")
	}
}

func (c *registerChip) LastGCError() error {
	return c.lastGCErr
}

// pwmChannel returns the sysfs PWM channel of a logical pin.
func (c *registerChip) pwmChannel(pin int) (PWMChannel, error) {
	pwm, found := c.pwmMap[pin]
	if !found || c.info.PWMChannel == nil {
		return PWMChannel{}, errors.Wrapf(NotPWMPinError, "pin %d", pin)
	}
	return c.info.PWMChannel(pwm)
}

func (c *registerChip) SetPWMPeriod(pin int, period time.Duration) error {
	ch, err := c.pwmChannel(pin)
	if err != nil {
		return err
	}
	return c.pwm.setPeriod(ch, period)
}

func (c *registerChip) SetPWMDuty(pin int, duty time.Duration) error {
	ch, err := c.pwmChannel(pin)
	if err != nil {
		return err
	}
	return c.pwm.setDuty(ch, duty)
}

func (c *registerChip) SetPWMPolarity(pin int, polarity Polarity) error {
	ch, err := c.pwmChannel(pin)
	if err != nil {
		return err
	}
	return c.pwm.setPolarity(ch, polarity)
}

func (c *registerChip) EnablePWM(pin int, enable bool) error {
	ch, err := c.pwmChannel(pin)
	if err != nil {
		return err
	}
	return c.pwm.enable(ch, enable)
}
