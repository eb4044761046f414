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
	"strings"
	"testing"
)

func TestSG2002Layout(t *testing.T) {
	if len(SG2002Layout) != 128 {
		t.Fatalf("Expected 128 entries, got %d", len(SG2002Layout))
	}
	prefixes := []string{"XGPIOA_", "XGPIOB_", "XGPIOC_", "PWR_GPIO_"}
	numBase := []int{480, 448, 416, 352}
	available := 0
	for i, entry := range SG2002Layout {
		group, bit := i/32, i%32
		expectedName := fmt.Sprintf("%s%d", prefixes[group], bit)
		if entry.Name != expectedName {
			t.Errorf("Entry %d: expected name %s, got %s", i, expectedName, entry.Name)
		}
		if !entry.IsAvailable() {
			continue
		}
		available++
		pd := entry.Pin
		if pd.Group != group {
			t.Errorf("%s: expected group %d, got %d", pd.Name, group, pd.Group)
		}
		if pd.Num != numBase[group]+bit {
			t.Errorf("%s: expected num %d, got %d", pd.Name, numBase[group]+bit, pd.Num)
		}
		if pd.Direction.Bit != uint(bit) || pd.Data.Bit != uint(bit) {
			t.Errorf("%s: expected bit %d", pd.Name, bit)
		}
		if pd.Direction.Offset != gpioSwportADDR || pd.Data.Offset != gpioSwportADR {
			t.Errorf("%s: unexpected register offsets", pd.Name)
		}
		if pd.Pinmux.Offset%4 != 0 || pd.Pinmux.Offset >= sg2002PageSize {
			t.Errorf("%s: pinmux offset 0x%x outside page", pd.Name, pd.Pinmux.Offset)
		}
		if strings.HasPrefix(pd.Name, "PWR_GPIO_") && bit < 3 {
			if pd.Pinmux.Value != 0 {
				t.Errorf("%s: expected pinmux value 0, got %d", pd.Name, pd.Pinmux.Value)
			}
		} else if pd.Pinmux.Value != 3 {
			t.Errorf("%s: expected pinmux value 3, got %d", pd.Name, pd.Pinmux.Value)
		}
	}
	if available != 31+28+26+25 {
		t.Errorf("Expected %d available pads, got %d", 31+28+26+25, available)
	}
}

func TestSG2002PWMChannel(t *testing.T) {
	tests := map[int]PWMChannel{
		4:  {Chip: 4, Index: 0},
		7:  {Chip: 4, Index: 3},
		8:  {Chip: 8, Index: 0},
		11: {Chip: 8, Index: 3},
	}
	for pwm, expected := range tests {
		if ch, err := SG2002PWMChannel(pwm); err != nil || ch != expected {
			t.Errorf("pwm %d: expected %+v, got %+v (%v)", pwm, expected, ch, err)
		}
	}
	for _, pwm := range []int{0, 3, 12, 15} {
		if _, err := SG2002PWMChannel(pwm); !IsNotPWMPin(err) {
			t.Errorf("pwm %d: expected NotPWMPinError, got %v", pwm, err)
		}
	}
}

func TestSG2002Info(t *testing.T) {
	info := SG2002()
	if info.Brand != "Sophgo" || info.Chip != "SG2002" {
		t.Errorf("Unexpected chip %s %s", info.Brand, info.Chip)
	}
	if len(info.GroupBases) != 4 || info.GroupBases[3] != 0x05021000 {
		t.Errorf("Unexpected group bases %v", info.GroupBases)
	}
	if info.PinmuxBase != 0x03001000 || info.PageSize != 4096 {
		t.Errorf("Unexpected pinmux base 0x%x / page size %d", info.PinmuxBase, info.PageSize)
	}
}
