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
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
)

// testInfo describes a small chip with two gpio groups and a pinmux
// page, all located in a regular file.
func testInfo() *ChipInfo {
	ps := int64(os.Getpagesize())
	pin := func(name string, group, num int, muxOffset uintptr, bit uint) Entry {
		return Available(PinDescriptor{
			Name:      name,
			Group:     group,
			Num:       num,
			Pinmux:    Pinmux{Offset: muxOffset, Value: 0x3},
			Direction: Register{Offset: gpioSwportADDR, Bit: bit},
			Data:      Register{Offset: gpioSwportADR, Bit: bit},
		})
	}
	return &ChipInfo{
		Brand:           "Test",
		Chip:            "T1",
		PageSize:        int(ps),
		GroupBases:      []int64{0, ps},
		PinmuxBase:      2 * ps,
		DataRegister:    gpioSwportADR,
		ExtPortRegister: gpioExtPortA,
		Layout: Layout{
			pin("TA_0", 0, 10, 0x00, 0),
			pin("TA_5", 0, 15, 0x04, 5),
			pin("TB_3", 1, 23, 0x08, 3),
			Unavailable("TB_31"),
			pin("TX_0", 7, 99, 0x0c, 0),
		},
		PWMChannel: SG2002PWMChannel,
	}
}

// testEnv holds the simulated hardware of a test chip.
type testEnv struct {
	info     *ChipInfo
	mem      string
	gpioRoot string
	pwmRoot  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	info := testInfo()
	env := &testEnv{
		info:     info,
		mem:      filepath.Join(dir, "mem"),
		gpioRoot: filepath.Join(dir, "gpio"),
		pwmRoot:  filepath.Join(dir, "pwm"),
	}
	f, err := os.Create(env.mem)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.Truncate(3 * int64(info.PageSize)); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	f.Close()
	for _, d := range []string{env.gpioRoot, env.pwmRoot} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
	}
	for _, name := range []string{"export", "unexport"} {
		env.writeFile(t, filepath.Join(env.gpioRoot, name), "")
	}
	return env
}

func (e *testEnv) writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func (e *testEnv) readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	return string(data)
}

// addGPIO creates an already exported gpio directory.
func (e *testEnv) addGPIO(t *testing.T, num int) string {
	t.Helper()
	dir := filepath.Join(e.gpioRoot, "gpio"+strconv.Itoa(num))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	e.writeFile(t, filepath.Join(dir, "direction"), "")
	e.writeFile(t, filepath.Join(dir, "edge"), "")
	e.writeFile(t, filepath.Join(dir, "value"), "0\n")
	return dir
}

// word reads a 32-bit register from the simulated memory.
func (e *testEnv) word(t *testing.T, addr int64) uint32 {
	t.Helper()
	f, err := os.Open(e.mem)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], addr); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	return binary.NativeEndian.Uint32(buf[:])
}

// setWord writes a 32-bit register in the simulated memory.
func (e *testEnv) setWord(t *testing.T, addr int64, value uint32) {
	t.Helper()
	f, err := os.OpenFile(e.mem, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], value)
	if _, err := f.WriteAt(buf[:], addr); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
}

func (e *testEnv) options() Options {
	return Options{
		MemDevice: e.mem,
		GPIORoot:  e.gpioRoot,
		PWMRoot:   e.pwmRoot,
		PWMMap:    map[int]int{0: 7, 1: 13},
	}
}

// chip creates a chip that has been setup with the identity map.
func (e *testEnv) chip(t *testing.T) SoC {
	t.Helper()
	c := NewRegisterChip(e.info, e.options(), zerolog.Nop())
	if err := c.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	m := []int{0, 1, 2, 3, 4, -1}
	c.SetMap(m)
	c.SetIRQ(m)
	t.Cleanup(c.GC)
	return c
}
