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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/binkynet/wiring/pkg/bus"
	"github.com/binkynet/wiring/pkg/soc"
)

func TestNames(t *testing.T) {
	if diff := cmp.Diff([]string{"milkv_duo256m", "sysfs"}, Names()); diff != "" {
		t.Errorf("Unexpected names (-want +got):\n%s", diff)
	}
	for _, name := range []string{"milkv_duo256m", "Duo256M", " DUO256M "} {
		if c, err := Canonical(name); err != nil || c != "milkv_duo256m" {
			t.Errorf("Canonical(%q): expected milkv_duo256m, got %s (%v)", name, c, err)
		}
	}
	if _, err := New(Config{Name: "raspberrypi9"}, zerolog.Nop()); !IsUnknownPlatform(err) {
		t.Errorf("Expected UnknownPlatformError, got %v", err)
	}
}

func TestSysfsMap(t *testing.T) {
	p, err := New(Config{Name: "sysfs", GPIOMap: []int{17, -1, 27}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.ValidGPIO(1) || p.ValidGPIO(3) || p.ValidGPIO(-1) {
		t.Error("Expected pins 1, 3 and -1 to be invalid")
	}
	if !p.ValidGPIO(0) || !p.ValidGPIO(2) {
		t.Error("Expected pins 0 and 2 to be valid")
	}
	if diff := cmp.Diff([]int{0, 2}, p.Pins()); diff != "" {
		t.Errorf("Unexpected pins (-want +got):\n%s", diff)
	}
	n0, err := p.PinName(0)
	if err != nil {
		t.Fatalf("PinName failed: %v", err)
	}
	n2, err := p.PinName(2)
	if err != nil {
		t.Fatalf("PinName failed: %v", err)
	}
	if n0 != "gpio17" || n2 != "gpio27" {
		t.Errorf("Expected gpio17 and gpio27, got %s and %s", n0, n2)
	}
	if err := p.PinMode(1, soc.ModeOutput); !soc.IsInvalidPin(err) {
		t.Errorf("Expected InvalidPinError, got %v", err)
	}
	if err := p.EnablePWM(0, true); !soc.IsNotPWMPin(err) {
		t.Errorf("Expected NotPWMPinError, got %v", err)
	}
}

func TestInvalidSysfsMap(t *testing.T) {
	for _, m := range [][]int{nil, {-2}, {3, 4, 3}} {
		if _, err := New(Config{Name: "sysfs", GPIOMap: m}, zerolog.Nop()); !IsInvalidMap(err) {
			t.Errorf("Map %v: expected InvalidMapError, got %v", m, err)
		}
	}
}

func TestMilkVDuo256M(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Name: "duo256m",
		SoC: soc.Options{
			MemDevice: filepath.Join(dir, "nomem"),
			GPIORoot:  filepath.Join(dir, "gpio"),
			PWMRoot:   filepath.Join(dir, "pwm"),
		},
	}
	p, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.Name() != "milkv_duo256m" || p.SoC().Chip() != "SG2002" {
		t.Errorf("Unexpected platform %s / %s", p.Name(), p.SoC().Chip())
	}
	if len(p.Pins()) != 23 || p.ValidGPIO(23) {
		t.Errorf("Expected GP0-GP22, got %v", p.Pins())
	}
	if name, err := p.PinName(0); err != nil || name != "XGPIOA_28" {
		t.Errorf("Expected XGPIOA_28, got %s (%v)", name, err)
	}
	if name, err := p.PinName(22); err != nil || name != "PWR_GPIO_4" {
		t.Errorf("Expected PWR_GPIO_4, got %s (%v)", name, err)
	}
	if err := p.Setup(); !soc.IsDeviceOpen(err) {
		t.Errorf("Expected DeviceOpenError, got %v", err)
	}
	if err := p.PinMode(0, soc.ModeOutput); !soc.IsNotSetup(err) {
		t.Errorf("Expected NotSetupError, got %v", err)
	}

	// GP2 is routed to pwm7, line 3 of pwmchip4
	line := filepath.Join(dir, "pwm", "pwmchip4", "pwm3")
	if err := os.MkdirAll(line, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(line, "period"), nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := p.SetPWMPeriod(2, time.Millisecond); err != nil {
		t.Errorf("SetPWMPeriod failed: %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(line, "period")); string(data) != "1000000" {
		t.Errorf("Expected period 1000000, got '%s'", data)
	}
	if err := p.SetPWMDuty(0, time.Millisecond); !soc.IsNotPWMPin(err) {
		t.Errorf("Expected NotPWMPinError, got %v", err)
	}
	p.GC()
	if err := p.LastGCError(); err == nil {
		t.Error("Expected GC error for missing pwm enable attribute")
	}
}

func TestClaims(t *testing.T) {
	p, err := New(Config{Name: "sysfs", GPIOMap: []int{17, -1, 27}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	release, err := p.ClaimPin(0)
	if err != nil {
		t.Fatalf("ClaimPin failed: %v", err)
	}
	if _, err := p.ClaimPin(0); !bus.IsInUse(err) {
		t.Errorf("Expected InUseError, got %v", err)
	}
	if _, err := p.ClaimPin(1); !soc.IsInvalidPin(err) {
		t.Errorf("Expected InvalidPinError, got %v", err)
	}
	if _, err := p.ClaimPWM(0); err != nil {
		t.Errorf("ClaimPWM failed: %v", err)
	}
	release()
	if _, err := p.ClaimPin(0); err != nil {
		t.Errorf("ClaimPin after release failed: %v", err)
	}

	location := filepath.Join(t.TempDir(), "i2c-1")
	d, err := p.OpenI2C(location, 0x20)
	if err != nil {
		t.Fatalf("OpenI2C failed: %v", err)
	}
	if _, err := p.OpenI2C(location, 0x20); !bus.IsInUse(err) {
		t.Errorf("Expected InUseError, got %v", err)
	}
	if p.I2CBus(location) != p.I2CBus(location) {
		t.Error("Expected a single bus per adapter")
	}
	d.Close()

	if _, err := p.OpenUART(bus.UARTConfig{Device: "/dev/ttyS9", BaudRate: 9601, DataBits: 8, StopBits: 1}); !bus.IsInvalidUARTConfig(err) {
		t.Errorf("Expected InvalidUARTConfigError, got %v", err)
	}

	p.GC()
	if len(p.i2cBuses) != 0 {
		t.Errorf("Expected all i2c buses to be closed, got %d", len(p.i2cBuses))
	}
}
