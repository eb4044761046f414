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
	"unsafe"

	humanize "github.com/dustin/go-humanize"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// registerMapper owns the memory device and the register pages mapped
// from it.
type registerMapper struct {
	log        zerolog.Logger
	brand      string
	chip       string
	devicePath string
	pageSize   int
	groupBases []int64
	pinmuxBase int64

	mem    *os.File
	groups [][]byte
	pinmux []byte
}

// newRegisterMapper prepares a mapper for the given chip.
func newRegisterMapper(info *ChipInfo, devicePath string, log zerolog.Logger) *registerMapper {
	return &registerMapper{
		log:        log,
		brand:      info.Brand,
		chip:       info.Chip,
		devicePath: devicePath,
		pageSize:   info.PageSize,
		groupBases: info.GroupBases,
		pinmuxBase: info.PinmuxBase,
	}
}

// setup opens the memory device and maps one page per GPIO group,
// followed by one page for the pin multiplexer.
// Pages mapped before a failing mmap stay mapped until unmap is called.
func (m *registerMapper) setup() error {
	if m.ready() {
		return nil
	}
	if m.mem == nil {
		f, err := os.OpenFile(m.devicePath, os.O_RDWR|os.O_SYNC, 0)
		if err != nil {
			mapErrorsTotal.WithLabelValues("open").Inc()
			return errors.Wrapf(DeviceOpenError, "%s %s: %v", m.brand, m.chip, err)
		}
		m.mem = f
	}
	if m.groups == nil {
		m.groups = make([][]byte, len(m.groupBases))
	}
	for group, base := range m.groupBases {
		if m.groups[group] != nil {
			continue
		}
		page, err := m.mmap(base)
		if err != nil {
			mapErrorsTotal.WithLabelValues("group").Inc()
			return errors.Wrapf(MapError, "%s %s gpio group %d at 0x%08x: %v", m.brand, m.chip, group, base, err)
		}
		m.groups[group] = page
	}
	if m.pinmux == nil {
		page, err := m.mmap(m.pinmuxBase)
		if err != nil {
			mapErrorsTotal.WithLabelValues("pinmux").Inc()
			return errors.Wrapf(MapError, "%s %s pinmux at 0x%08x: %v", m.brand, m.chip, m.pinmuxBase, err)
		}
		m.pinmux = page
	}
	m.log.Debug().
		Str("device", m.devicePath).
		Int("groups", len(m.groups)).
		Str("page_size", humanize.IBytes(uint64(m.pageSize))).
		Msg("Mapped register pages")
	return nil
}

func (m *registerMapper) mmap(base int64) ([]byte, error) {
	return unix.Mmap(int(m.mem.Fd()), base, m.pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// ready returns true when every page has been mapped.
func (m *registerMapper) ready() bool {
	if m.mem == nil || m.pinmux == nil || len(m.groups) != len(m.groupBases) {
		return false
	}
	for _, page := range m.groups {
		if page == nil {
			return false
		}
	}
	return true
}

// unmap releases every mapped page and closes the memory device.
// It is safe to call at any time, including repeatedly.
func (m *registerMapper) unmap() error {
	var ae aerr.AggregateError
	if m.pinmux != nil {
		if err := unix.Munmap(m.pinmux); err != nil {
			ae.Add(errors.Wrap(err, "munmap pinmux"))
		}
		m.pinmux = nil
	}
	for group, page := range m.groups {
		if page == nil {
			continue
		}
		if err := unix.Munmap(page); err != nil {
			ae.Add(errors.Wrapf(err, "munmap gpio group %d", group))
		}
		m.groups[group] = nil
	}
	m.groups = nil
	if m.mem != nil {
		if err := m.mem.Close(); err != nil {
			ae.Add(errors.Wrap(err, "close memory device"))
		}
		m.mem = nil
	}
	return ae.AsError()
}

// groupRegister returns the 32-bit register at given offset in the
// page of the given GPIO group.
func (m *registerMapper) groupRegister(group int, offset uintptr) (*uint32, error) {
	if group < 0 || group >= len(m.groups) || m.groups[group] == nil {
		return nil, errors.Wrapf(NotSetupError, "%s %s gpio group %d is not mapped", m.brand, m.chip, group)
	}
	return register(m.groups[group], offset)
}

// pinmuxRegister returns the 32-bit pin multiplexer register at given offset.
func (m *registerMapper) pinmuxRegister(offset uintptr) (*uint32, error) {
	if m.pinmux == nil {
		return nil, errors.Wrapf(NotSetupError, "%s %s pinmux is not mapped", m.brand, m.chip)
	}
	return register(m.pinmux, offset)
}

func register(page []byte, offset uintptr) (*uint32, error) {
	if offset%4 != 0 || offset+4 > uintptr(len(page)) {
		return nil, errors.Wrapf(RegisterRangeError, "offset 0x%x, page size %d", offset, len(page))
	}
	return (*uint32)(unsafe.Pointer(&page[offset])), nil
}

// setBit sets or clears a single bit with a read-modify-write.
func setBit(reg *uint32, bit uint, on bool) {
	if on {
		*reg |= 1 << bit
	} else {
		*reg &^= 1 << bit
	}
}

// getBit extracts a single bit.
func getBit(reg *uint32, bit uint) uint32 {
	return (*reg >> bit) & 1
}
