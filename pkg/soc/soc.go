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

// Package soc performs GPIO access for a single system-on-chip, either
// through memory mapped registers or through the kernel sysfs interface.
//
// A SoC is not safe for concurrent use. A single process (and by
// convention a single goroutine) owns the mapped registers and the
// exported GPIOs of a SoC between Setup and GC.
package soc

import (
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// SoC is the operation set of a single chip.
// All pin arguments are logical (wiring) pin numbers, resolved through
// the map given to SetMap (digital I/O) or SetIRQ (interrupts).
type SoC interface {
	// Brand of the chip vendor
	Brand() string
	// Chip name
	Chip() string

	// Setup acquires the hardware resources of the chip.
	Setup() error
	// SetMap sets the logical pin to layout index map used for digital I/O.
	SetMap(pinMap []int)
	// SetIRQ sets the logical pin to layout index map used for interrupts.
	SetIRQ(irqMap []int)

	// PinName returns the pad name of the given pin.
	PinName(pin int) (string, error)
	// Pin returns the descriptor and current mode of the given pin.
	Pin(pin int) (PinInfo, error)

	// PinMode switches the given pin to input or output.
	PinMode(pin int, mode Mode) error
	// DigitalWrite sets the level of an output pin.
	DigitalWrite(pin int, value Value) error
	// DigitalRead returns the level of an input pin.
	DigitalRead(pin int) (Value, error)

	// ISR arms edge interrupts on the given pin.
	ISR(pin int, edge Edge) error
	// WaitForInterrupt blocks until an edge occurs on an armed pin or the
	// timeout expires (TimeoutError). A negative timeout blocks
	// indefinitely. Closing the descriptor returned by SelectableFd
	// from another goroutine is the only way to abort such a wait.
	WaitForInterrupt(pin int, timeout time.Duration) (Value, error)
	// SelectableFd returns the file descriptor of the value file of an
	// armed pin, for use in external poll loops.
	SelectableFd(pin int) (int, error)

	// GC releases every hardware resource held by the chip.
	// Output pins are reverted to input (their original pinmux function
	// is not restored), interrupt pins are disarmed.
	// GC never fails; it is a no-op when nothing was acquired.
	GC()
	// LastGCError returns the failures recorded by the last GC, if any.
	LastGCError() error
}

// PinInfo describes a pin and its current mode.
type PinInfo struct {
	PinDescriptor
	Mode Mode
}

// Options for constructing a SoC.
type Options struct {
	// Path of the physical memory device (defaults to /dev/mem)
	MemDevice string
	// Root of the sysfs GPIO class (defaults to /sys/class/gpio)
	GPIORoot string
	// Root of the sysfs PWM class (defaults to /sys/class/pwm)
	PWMRoot string
	// ValidGPIO is the board policy for logical pin numbers.
	// When nil, every pin that has a map entry is considered valid.
	ValidGPIO func(pin int) bool
	// PWMMap maps logical pins to chip PWM numbers.
	PWMMap map[int]int
}

const (
	// DefaultMemDevice is the physical memory device.
	DefaultMemDevice = "/dev/mem"
)

// resolver performs the static part of pin resolution, shared by all
// chip variants.
type resolver struct {
	brand      string
	chip       string
	layout     Layout
	groupCount int
	validGPIO  func(pin int) bool
}

// resolve turns a logical pin into a layout index and pin descriptor.
func (r resolver) resolve(pin int, m []int) (int, *PinDescriptor, error) {
	if m == nil {
		return 0, nil, errors.Wrapf(UnmappedPinError, "%s %s", r.brand, r.chip)
	}
	if r.validGPIO != nil && !r.validGPIO(pin) {
		return 0, nil, errors.Wrapf(InvalidPinError, "%s %s pin %d rejected by board", r.brand, r.chip, pin)
	}
	if pin < 0 || pin >= len(m) {
		return 0, nil, errors.Wrapf(InvalidPinError, "%s %s pin %d outside map of %d pins", r.brand, r.chip, pin, len(m))
	}
	index := m[pin]
	if index < 0 || index >= len(r.layout) {
		return 0, nil, errors.Wrapf(InvalidPinError, "%s %s pin %d is not mapped", r.brand, r.chip, pin)
	}
	entry := r.layout[index]
	if !entry.IsAvailable() {
		return 0, nil, errors.Wrapf(UnsupportedPinError, "%s %s pin %d (%s)", r.brand, r.chip, pin, entry.Name)
	}
	if g := entry.Pin.Group; g < 0 || g >= r.groupCount {
		return 0, nil, errors.Wrapf(InvalidGroupError, "%s %s pin %d group %d, expected 0..%d", r.brand, r.chip, pin, g, r.groupCount-1)
	}
	return index, entry.Pin, nil
}

// name returns the pad name of a logical pin, including unavailable pads.
func (r resolver) name(pin int, m []int) (string, error) {
	if m == nil {
		return "", errors.Wrapf(UnmappedPinError, "%s %s", r.brand, r.chip)
	}
	if pin < 0 || pin >= len(m) || m[pin] < 0 || m[pin] >= len(r.layout) {
		return "", errors.Wrapf(InvalidPinError, "%s %s pin %d", r.brand, r.chip, pin)
	}
	return r.layout[m[pin]].Name, nil
}

// referencedIndexes returns the unique layout indexes referenced by the
// given maps, in order of first appearance.
func referencedIndexes(layoutSize int, maps ...[]int) []int {
	return lo.Uniq(lo.Filter(lo.Flatten(maps), func(index int, _ int) bool {
		return index >= 0 && index < layoutSize
	}))
}

func checkMode(pin int, actual, expected Mode) error {
	if actual != expected {
		return errors.Wrapf(WrongModeError, "pin %d is in %s mode, expected %s", pin, actual, expected)
	}
	return nil
}
