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
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultPWMRoot is the kernel sysfs PWM class directory.
	DefaultPWMRoot = "/sys/class/pwm"
)

// Polarity of a PWM output.
type Polarity uint8

const (
	PolarityNormal Polarity = iota
	PolarityInversed
)

func (p Polarity) String() string {
	switch p {
	case PolarityNormal:
		return "normal"
	case PolarityInversed:
		return "inversed"
	default:
		return fmt.Sprintf("polarity(%d)", uint8(p))
	}
}

// PWM is implemented by chips that expose hardware PWM through sysfs.
// Pins are logical (wiring) pin numbers.
type PWM interface {
	// SetPWMPeriod sets the length of a single PWM cycle.
	SetPWMPeriod(pin int, period time.Duration) error
	// SetPWMDuty sets the active part of a PWM cycle.
	SetPWMDuty(pin int, duty time.Duration) error
	// SetPWMPolarity sets the polarity of the PWM output.
	SetPWMPolarity(pin int, polarity Polarity) error
	// EnablePWM turns the PWM output on or off.
	EnablePWM(pin int, enable bool) error
}

// PWMChannel identifies a single line of a pwmchip.
type PWMChannel struct {
	Chip  int
	Index int
}

// sysfsPWM writes PWM attributes through the kernel sysfs PWM class.
type sysfsPWM struct {
	log      zerolog.Logger
	root     string
	exported map[PWMChannel]struct{}
}

func newSysfsPWM(root string, log zerolog.Logger) *sysfsPWM {
	if root == "" {
		root = DefaultPWMRoot
	}
	return &sysfsPWM{
		log:      log,
		root:     root,
		exported: make(map[PWMChannel]struct{}),
	}
}

func (p *sysfsPWM) chipDir(ch PWMChannel) string {
	return filepath.Join(p.root, "pwmchip"+strconv.Itoa(ch.Chip))
}

func (p *sysfsPWM) lineFile(ch PWMChannel, name string) string {
	return filepath.Join(p.chipDir(ch), "pwm"+strconv.Itoa(ch.Index), name)
}

// ensureExported exports the channel when its directory does not exist yet.
func (p *sysfsPWM) ensureExported(ch PWMChannel) error {
	if pathExists(filepath.Join(p.chipDir(ch), "pwm"+strconv.Itoa(ch.Index))) {
		p.exported[ch] = struct{}{}
		return nil
	}
	if err := writeString(filepath.Join(p.chipDir(ch), "export"), strconv.Itoa(ch.Index)); err != nil {
		return errors.Wrapf(PWMExportError, "pwmchip%d/pwm%d: %v", ch.Chip, ch.Index, err)
	}
	p.exported[ch] = struct{}{}
	return nil
}

func (p *sysfsPWM) write(ch PWMChannel, name, value string) error {
	if err := p.ensureExported(ch); err != nil {
		return err
	}
	if err := writeString(p.lineFile(ch, name), value); err != nil {
		return errors.Wrapf(PWMWriteError, "pwmchip%d/pwm%d/%s: %v", ch.Chip, ch.Index, name, err)
	}
	return nil
}

func (p *sysfsPWM) setPeriod(ch PWMChannel, period time.Duration) error {
	return p.write(ch, "period", strconv.FormatInt(period.Nanoseconds(), 10))
}

func (p *sysfsPWM) setDuty(ch PWMChannel, duty time.Duration) error {
	return p.write(ch, "duty_cycle", strconv.FormatInt(duty.Nanoseconds(), 10))
}

func (p *sysfsPWM) setPolarity(ch PWMChannel, polarity Polarity) error {
	switch polarity {
	case PolarityNormal, PolarityInversed:
		return p.write(ch, "polarity", polarity.String())
	default:
		return errors.Wrapf(InvalidPolarityError, "%d", uint8(polarity))
	}
}

func (p *sysfsPWM) enable(ch PWMChannel, enable bool) error {
	value := "0"
	if enable {
		value = "1"
	}
	return p.write(ch, "enable", value)
}

// close disables and unexports every channel exported through this
// controller.
func (p *sysfsPWM) close() error {
	var ae aerr.AggregateError
	for ch := range p.exported {
		if err := writeString(p.lineFile(ch, "enable"), "0"); err != nil {
			ae.Add(errors.Wrapf(err, "disable pwmchip%d/pwm%d", ch.Chip, ch.Index))
		}
		if err := writeString(filepath.Join(p.chipDir(ch), "unexport"), strconv.Itoa(ch.Index)); err != nil {
			ae.Add(errors.Wrapf(err, "unexport pwmchip%d/pwm%d", ch.Chip, ch.Index))
		}
		delete(p.exported, ch)
	}
	return ae.AsError()
}
