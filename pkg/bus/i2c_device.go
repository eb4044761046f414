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
package bus

import (
	"encoding/binary"
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// From /usr/include/linux/i2c-dev.h:
	// ioctl signals
	I2C_SLAVE = 0x0703
	I2C_FUNCS = 0x0705
	I2C_SMBUS = 0x0720
	// Read/write markers
	I2C_SMBUS_READ  = 1
	I2C_SMBUS_WRITE = 0

	// From /usr/include/linux/i2c.h:
	// Adapter functionality
	I2C_FUNC_SMBUS_QUICK           = 0x00010000
	I2C_FUNC_SMBUS_READ_BYTE       = 0x00020000
	I2C_FUNC_SMBUS_WRITE_BYTE      = 0x00040000
	I2C_FUNC_SMBUS_READ_BYTE_DATA  = 0x00080000
	I2C_FUNC_SMBUS_WRITE_BYTE_DATA = 0x00100000
	I2C_FUNC_SMBUS_READ_WORD_DATA  = 0x00200000
	I2C_FUNC_SMBUS_WRITE_WORD_DATA = 0x00400000

	// Transaction types
	I2C_SMBUS_QUICK     = 0
	I2C_SMBUS_BYTE      = 1
	I2C_SMBUS_BYTE_DATA = 2
	I2C_SMBUS_WORD_DATA = 3
)

// i2cSmbusData matches union i2c_smbus_data.
type i2cSmbusData [34]byte

type i2cSmbusIoctlData struct {
	readWrite byte
	command   byte
	size      uint32
	data      uintptr
}

// i2cAdapter performs the ioctls of an i2c character device.
type i2cAdapter interface {
	funcs(fd uintptr) (uint64, error)
	setAddress(fd uintptr, address uint8) error
	smbus(fd uintptr, readWrite, command uint8, size uint32, data *i2cSmbusData) error
}

// I2CDevice communicates with a device on the I2C Bus that has a specific address.
type I2CDevice interface {
	// Read a byte from given register
	ReadByteReg(reg uint8) (uint8, error)
	// Read a 16-bit word from given register
	ReadWordReg(reg uint8) (uint16, error)
	// Write a byte to given register
	WriteByteReg(reg uint8, val uint8) error
	// Write a 16-bit word to given register
	WriteWordReg(reg uint8, val uint16) error
	// Read a byte from device
	ReadByte() (byte, error)
	// Write a byte to device
	WriteByte(val byte) error
	// Read a block of data directly from the device (/dev/...)
	ReadDevice(data []byte) error
	// Write a block of data directly to the device (/dev/...)
	WriteDevice(data []byte) error
}

type i2cDevice struct {
	adapter i2cAdapter
	address uint8
	mutex   sync.Mutex
	file    *os.File
	funcs   uint64 // adapter functionality mask
	data    i2cSmbusData
}

// newI2CDevice opens the adapter at the given location and selects the given address.
func newI2CDevice(adapter i2cAdapter, location string, address uint8) (*i2cDevice, error) {
	d := &i2cDevice{
		adapter: adapter,
		address: address,
	}

	var err error
	if d.file, err = os.OpenFile(location, os.O_RDWR, os.ModeDevice); err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", location)
	}
	if d.funcs, err = adapter.funcs(d.file.Fd()); err != nil {
		d.file.Close()
		return nil, errors.Wrap(err, "querying functionality failed")
	}
	if err := adapter.setAddress(d.file.Fd(), address); err != nil {
		d.file.Close()
		return nil, errors.Wrapf(err, "setting address (0x%02x) failed", address)
	}
	return d, nil
}

func (d *i2cDevice) closeFile() error {
	return d.file.Close()
}

// DetectDevice performs a quick write to find out if a device answers.
func (d *i2cDevice) DetectDevice() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.access(I2C_FUNC_SMBUS_QUICK, I2C_SMBUS_WRITE, 0, I2C_SMBUS_QUICK, false); err != nil {
		return errors.Wrap(err, "quick failed")
	}
	return nil
}

func (d *i2cDevice) ReadByteReg(reg uint8) (uint8, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.access(I2C_FUNC_SMBUS_READ_BYTE_DATA, I2C_SMBUS_READ, reg, I2C_SMBUS_BYTE_DATA, true); err != nil {
		return 0, failed(ReadError, err, "readByteData[0x%02x](0x%02x)", d.address, reg)
	}
	return d.data[0], nil
}

func (d *i2cDevice) ReadWordReg(reg uint8) (uint16, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.access(I2C_FUNC_SMBUS_READ_WORD_DATA, I2C_SMBUS_READ, reg, I2C_SMBUS_WORD_DATA, true); err != nil {
		return 0, failed(ReadError, err, "readWordData[0x%02x](0x%02x)", d.address, reg)
	}
	return binary.NativeEndian.Uint16(d.data[:2]), nil
}

func (d *i2cDevice) WriteByteReg(reg uint8, val uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.data[0] = val
	if err := d.access(I2C_FUNC_SMBUS_WRITE_BYTE_DATA, I2C_SMBUS_WRITE, reg, I2C_SMBUS_BYTE_DATA, true); err != nil {
		return failed(WriteError, err, "writeByteData[0x%02x](0x%02x, 0x%02x)", d.address, reg, val)
	}
	return nil
}

func (d *i2cDevice) WriteWordReg(reg uint8, val uint16) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	binary.NativeEndian.PutUint16(d.data[:2], val)
	if err := d.access(I2C_FUNC_SMBUS_WRITE_WORD_DATA, I2C_SMBUS_WRITE, reg, I2C_SMBUS_WORD_DATA, true); err != nil {
		return failed(WriteError, err, "writeWordData[0x%02x](0x%02x, 0x%04x)", d.address, reg, val)
	}
	return nil
}

// Read a byte from device
func (d *i2cDevice) ReadByte() (byte, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.access(I2C_FUNC_SMBUS_READ_BYTE, I2C_SMBUS_READ, 0, I2C_SMBUS_BYTE, true); err != nil {
		return 0, failed(ReadError, err, "readByte[0x%02x]", d.address)
	}
	return d.data[0], nil
}

// Write a byte to device
func (d *i2cDevice) WriteByte(val byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := d.access(I2C_FUNC_SMBUS_WRITE_BYTE, I2C_SMBUS_WRITE, val, I2C_SMBUS_BYTE, false); err != nil {
		return failed(WriteError, err, "writeByte[0x%02x](0x%02x)", d.address, val)
	}
	return nil
}

// Read a block of data directly from the device (/dev/...)
func (d *i2cDevice) ReadDevice(data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.file.Read(data)
	if err != nil {
		return errors.Wrapf(ReadError, "read[0x%02x]: %v", d.address, err)
	}
	if n != len(data) {
		return errors.Wrapf(ReadError, "expected to read %d bytes, actual read bytes is %d", len(data), n)
	}
	return nil
}

// Write a block of data directly to the device (/dev/...)
func (d *i2cDevice) WriteDevice(data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.file.Write(data)
	if err != nil {
		return errors.Wrapf(WriteError, "write[0x%02x]: %v", d.address, err)
	}
	if n != len(data) {
		return errors.Wrapf(WriteError, "expected to write %d bytes, actual written bytes is %d", len(data), n)
	}
	return nil
}

// failed wraps err in the given sentinel, keeping UnsupportedError visible.
func failed(sentinel, err error, format string, args ...interface{}) error {
	if IsUnsupported(err) {
		return err
	}
	return errors.Wrapf(sentinel, format+": %v", append(args, err)...)
}

// access runs a single smbus transaction after checking the adapter supports it.
func (d *i2cDevice) access(funcMask uint64, readWrite, command uint8, size uint32, withData bool) error {
	if d.funcs&funcMask == 0 {
		return errors.Wrapf(UnsupportedError, "smbus transaction %d", size)
	}
	var data *i2cSmbusData
	if withData {
		data = &d.data
	}
	return d.adapter.smbus(d.file.Fd(), readWrite, command, size, data)
}

// linuxI2CAdapter talks to the i2c-dev driver.
type linuxI2CAdapter struct{}

func (linuxI2CAdapter) funcs(fd uintptr) (uint64, error) {
	var funcs uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, I2C_FUNCS, uintptr(unsafe.Pointer(&funcs))); errno != 0 {
		return 0, errno
	}
	return funcs, nil
}

func (linuxI2CAdapter) setAddress(fd uintptr, address uint8) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, I2C_SLAVE, uintptr(address)); errno != 0 {
		return errno
	}
	return nil
}

func (linuxI2CAdapter) smbus(fd uintptr, readWrite, command uint8, size uint32, data *i2cSmbusData) error {
	args := i2cSmbusIoctlData{
		readWrite: readWrite,
		command:   command,
		size:      size,
	}
	if data != nil {
		args.data = uintptr(unsafe.Pointer(data))
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, I2C_SMBUS, uintptr(unsafe.Pointer(&args))); errno != 0 {
		return errno
	}
	return nil
}
