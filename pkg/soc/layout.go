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

	"github.com/pkg/errors"
)

// Mode of a pin.
type Mode uint8

const (
	ModeNotSet Mode = iota
	ModeInput
	ModeOutput
	ModeInterrupt
)

func (m Mode) String() string {
	switch m {
	case ModeNotSet:
		return "not-set"
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Value is the digital level of a pin.
type Value uint8

const (
	Low Value = iota
	High
)

func (v Value) String() string {
	switch v {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	default:
		return fmt.Sprintf("value(%d)", uint8(v))
	}
}

// Edge selects which level transitions trigger an interrupt.
type Edge string

const (
	EdgeNone    Edge = "none"
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
	EdgeBoth    Edge = "both"
)

// Validate returns InvalidEdgeModeError for anything outside the
// fixed edge enumeration.
func (e Edge) Validate() error {
	switch e {
	case EdgeNone, EdgeRising, EdgeFalling, EdgeBoth:
		return nil
	default:
		return errors.Wrapf(InvalidEdgeModeError, "edge '%s'", string(e))
	}
}

// ParseEdge parses a textual edge mode (case insensitive).
func ParseEdge(s string) (Edge, error) {
	e := Edge(strings.ToLower(strings.TrimSpace(s)))
	if err := e.Validate(); err != nil {
		return EdgeNone, err
	}
	return e, nil
}

// Register locates a bit inside a register of a GPIO group page.
type Register struct {
	Offset uintptr
	Bit    uint
}

// Pinmux holds the pin multiplexer register offset and the value that
// routes the pad to its GPIO function.
type Pinmux struct {
	Offset uintptr
	Value  uint32
}

// PinDescriptor is the static description of a single SoC pad.
type PinDescriptor struct {
	Name      string
	Group     int
	Num       int
	Pinmux    Pinmux
	Direction Register
	Data      Register
}

// Entry of a layout table. A nil Pin marks a pad that is permanently
// unavailable for digital I/O.
type Entry struct {
	Name string
	Pin  *PinDescriptor
}

// Available creates a layout entry for a usable pad.
func Available(pd PinDescriptor) Entry {
	return Entry{Name: pd.Name, Pin: &pd}
}

// Unavailable creates a layout entry for a pad that cannot be used.
func Unavailable(name string) Entry {
	return Entry{Name: name}
}

// IsAvailable returns true if the entry describes a usable pad.
func (e Entry) IsAvailable() bool {
	return e.Pin != nil
}

// Layout is the pin layout table of a chip.
type Layout []Entry
