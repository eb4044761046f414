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
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// fakeLine is a gpio line of fakeDriver.
type fakeLine struct {
	output bool
	value  bool
}

func (l *fakeLine) Read() (bool, error) { return l.value, nil }

func (l *fakeLine) Write(v bool) error {
	l.value = v
	return nil
}

// fakeDriver simulates digital I/O, exporting lines in a temporary
// gpio root.
type fakeDriver struct {
	root  string
	lines map[int]*fakeLine
	fail  bool
}

func newFakeDriver(root string) *fakeDriver {
	return &fakeDriver{root: root, lines: make(map[int]*fakeLine)}
}

func (d *fakeDriver) line(num int) (*fakeLine, error) {
	if d.fail {
		return nil, errors.Errorf("gpio %d is busy", num)
	}
	if err := os.MkdirAll(filepath.Join(d.root, "gpio"+strconv.Itoa(num)), 0755); err != nil {
		return nil, err
	}
	l, found := d.lines[num]
	if !found {
		l = &fakeLine{}
		d.lines[num] = l
	}
	return l, nil
}

func (d *fakeDriver) Input(num int, activeLow bool) (InputPin, error) {
	l, err := d.line(num)
	if err != nil {
		return nil, err
	}
	l.output = false
	return l, nil
}

func (d *fakeDriver) Output(num int, activeLow bool, initialValue bool) (OutputPin, error) {
	l, err := d.line(num)
	if err != nil {
		return nil, err
	}
	l.output, l.value = true, initialValue
	return l, nil
}

// sysfsChip creates a sysfs chip for gpio 17, an unavailable pin and
// gpio 27, that has been setup with the identity map.
func (e *testEnv) sysfsChip(t *testing.T) (*sysfsChip, *fakeDriver) {
	t.Helper()
	driver := newFakeDriver(e.gpioRoot)
	c := newSysfsChip(SysfsLayout([]int{17, -1, 27}), e.gpioRoot, driver, nil, zerolog.Nop())
	if err := c.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	m := []int{0, 1, 2}
	c.SetMap(m)
	c.SetIRQ(m)
	t.Cleanup(c.GC)
	return c, driver
}

func TestSysfsLayout(t *testing.T) {
	layout := SysfsLayout([]int{17, -1, 27})
	if len(layout) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(layout))
	}
	if !layout[0].IsAvailable() || layout[0].Pin.Num != 17 || layout[0].Name != "gpio17" {
		t.Errorf("Unexpected entry 0: %+v", layout[0])
	}
	if layout[1].IsAvailable() {
		t.Error("Expected entry 1 to be unavailable")
	}
	if layout[2].Pin.Num != 27 {
		t.Errorf("Expected entry 2 to be gpio27, got %+v", layout[2])
	}
}

func TestSysfsChipSetup(t *testing.T) {
	c := newSysfsChip(SysfsLayout([]int{17}), filepath.Join(t.TempDir(), "missing"), newFakeDriver(""), nil, zerolog.Nop())
	if err := c.Setup(); !IsDeviceOpen(err) {
		t.Errorf("Expected DeviceOpenError, got %v", err)
	}
	c.SetMap([]int{0})
	c.SetIRQ([]int{0})
	if err := c.ISR(0, EdgeBoth); !IsNotSetup(err) {
		t.Errorf("Expected NotSetupError, got %v", err)
	}
	if err := c.PinMode(0, ModeInput); !IsNotSetup(err) {
		t.Errorf("Expected NotSetupError, got %v", err)
	}
	c.GC()
	if err := c.LastGCError(); err != nil {
		t.Errorf("Expected no GC error, got %v", err)
	}
}

func TestSysfsChipGPIORoot(t *testing.T) {
	c := NewSysfsChip(SysfsLayout([]int{17}), Options{GPIORoot: t.TempDir()}, zerolog.Nop())
	if err := c.Setup(); !IsGPIORoot(err) {
		t.Errorf("Expected GPIORootError, got %v", err)
	}
	c.SetMap([]int{0})
	if err := c.PinMode(0, ModeInput); !IsNotSetup(err) {
		t.Errorf("Expected NotSetupError, got %v", err)
	}
}

func TestSysfsChipDigitalIO(t *testing.T) {
	env := newTestEnv(t)
	c, driver := env.sysfsChip(t)

	if err := c.PinMode(0, ModeOutput); err != nil {
		t.Fatalf("PinMode failed: %v", err)
	}
	if l := driver.lines[17]; l == nil || !l.output || l.value {
		t.Fatalf("Expected gpio17 to be a low output, got %+v", l)
	}
	if err := c.DigitalWrite(0, High); err != nil {
		t.Errorf("DigitalWrite failed: %v", err)
	}
	if !driver.lines[17].value {
		t.Error("Expected gpio17 to be high")
	}
	if err := c.DigitalWrite(0, Value(5)); !IsInvalidValue(err) {
		t.Errorf("Expected InvalidValueError, got %v", err)
	}
	if _, err := c.DigitalRead(0); !IsWrongMode(err) {
		t.Errorf("Expected WrongModeError, got %v", err)
	}

	if err := c.PinMode(2, ModeInput); err != nil {
		t.Fatalf("PinMode failed: %v", err)
	}
	driver.lines[27].value = true
	if v, err := c.DigitalRead(2); err != nil || v != High {
		t.Errorf("Expected high, got %s (%v)", v, err)
	}
	if err := c.DigitalWrite(2, Low); !IsWrongMode(err) {
		t.Errorf("Expected WrongModeError, got %v", err)
	}
	if err := c.PinMode(2, ModeInterrupt); !IsInvalidMode(err) {
		t.Errorf("Expected InvalidModeError, got %v", err)
	}
	if err := c.PinMode(1, ModeInput); !IsUnsupportedPin(err) {
		t.Errorf("Expected UnsupportedPinError, got %v", err)
	}

	driver.fail = true
	if err := c.PinMode(2, ModeOutput); !IsDirection(err) {
		t.Errorf("Expected DirectionError, got %v", err)
	}
}

func TestSysfsChipGCRevertsOutput(t *testing.T) {
	env := newTestEnv(t)
	c, driver := env.sysfsChip(t)

	if err := c.PinMode(0, ModeOutput); err != nil {
		t.Fatalf("PinMode failed: %v", err)
	}
	if err := c.PinMode(2, ModeInput); err != nil {
		t.Fatalf("PinMode failed: %v", err)
	}
	c.GC()
	if err := c.LastGCError(); err != nil {
		t.Errorf("Expected no GC error, got %v", err)
	}
	if driver.lines[17].output {
		t.Error("Expected gpio17 reverted to input")
	}
	// Both lines are unexported, gpio27 last
	if v := env.readFile(t, filepath.Join(env.gpioRoot, "unexport")); v != "27" {
		t.Errorf("Expected unexport of 27, got '%s'", v)
	}
	if info, err := c.Pin(0); err != nil || info.Mode != ModeNotSet {
		t.Errorf("Expected mode not-set, got %+v (%v)", info, err)
	}
}

func TestSysfsChipInterrupt(t *testing.T) {
	env := newTestEnv(t)
	env.addGPIO(t, 27)
	c, _ := env.sysfsChip(t)

	if err := c.ISR(1, EdgeBoth); !IsUnsupportedPin(err) {
		t.Errorf("Expected UnsupportedPinError, got %v", err)
	}
	if err := c.ISR(2, EdgeRising); err != nil {
		t.Fatalf("ISR failed: %v", err)
	}
	if _, err := c.WaitForInterrupt(2, 10*time.Millisecond); !IsTimeout(err) {
		t.Errorf("Expected TimeoutError, got %v", err)
	}
	if _, err := c.DigitalRead(2); !IsWrongMode(err) {
		t.Errorf("Expected WrongModeError, got %v", err)
	}
	if name, err := c.PinName(2); err != nil || name != "gpio27" {
		t.Errorf("Expected gpio27, got %s (%v)", name, err)
	}

	c.GC()
	if err := c.LastGCError(); err != nil {
		t.Errorf("Expected no GC error, got %v", err)
	}
	if v := env.readFile(t, filepath.Join(env.gpioRoot, "unexport")); v != "27" {
		t.Errorf("Expected unexport of 27, got '%s'", v)
	}
	if err := c.ISR(2, EdgeRising); !IsNotSetup(err) {
		t.Errorf("Expected NotSetupError, got %v", err)
	}
}

func TestSysfsChipFailedRearm(t *testing.T) {
	env := newTestEnv(t)
	dir := env.addGPIO(t, 27)
	c, _ := env.sysfsChip(t)

	if err := c.ISR(2, EdgeRising); err != nil {
		t.Fatalf("ISR failed: %v", err)
	}
	if err := c.ISR(2, Edge("sideways")); !IsInvalidEdgeMode(err) {
		t.Fatalf("Expected InvalidEdgeModeError, got %v", err)
	}
	if fd, err := c.SelectableFd(2); err != nil || fd < 0 {
		t.Errorf("Expected armed pin to keep its fd, got %d (%v)", fd, err)
	}

	edge := filepath.Join(dir, "edge")
	if err := os.Remove(edge); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := os.Mkdir(edge, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := c.ISR(2, EdgeFalling); !IsEdgeMode(err) {
		t.Fatalf("Expected EdgeModeError, got %v", err)
	}
	if _, err := c.SelectableFd(2); !IsWrongMode(err) {
		t.Errorf("Expected WrongModeError, got %v", err)
	}
	if _, err := c.WaitForInterrupt(2, time.Millisecond); !IsWrongMode(err) {
		t.Errorf("Expected WrongModeError, got %v", err)
	}
}
