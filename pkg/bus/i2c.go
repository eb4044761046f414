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
	"context"
	"runtime"
	"strconv"
	"sync"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// I2CBus serializes all operations on a single i2c adapter (/dev/i2c-N).
type I2CBus struct {
	location string
	log      zerolog.Logger
	adapter  i2cAdapter
	devices  map[uint8]*i2cDevice
	queue    chan func()
	claims   *Claims[uint8]
	ctx      context.Context
	cancel   context.CancelFunc
	closing  sync.Once
}

// NewI2CBus returns accessors to the I2C bus at the given location.
func NewI2CBus(location string, log zerolog.Logger) *I2CBus {
	return newI2CBus(location, linuxI2CAdapter{}, log)
}

func newI2CBus(location string, adapter i2cAdapter, log zerolog.Logger) *I2CBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &I2CBus{
		location: location,
		log:      log.With().Str("i2c", location).Logger(),
		adapter:  adapter,
		devices:  make(map[uint8]*i2cDevice),
		queue:    make(chan func()),
		claims:   NewClaims[uint8]("i2c address"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go b.queueProcessor(ctx)
	return b
}

// Location of the adapter device
func (b *I2CBus) Location() string { return b.location }

// Execute an operation on the device with given address.
func (b *I2CBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	var result error
	if err := b.do(ctx, func() {
		result = b.execute(ctx, address, op)
	}); err != nil {
		return err
	}
	return result
}

// do runs the given request on the queue and waits for it to finish.
func (b *I2CBus) do(ctx context.Context, req func()) error {
	if b.ctx.Err() != nil {
		return errors.Wrapf(ClosedError, "i2c bus %s", b.location)
	}
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		req()
	}
	select {
	case b.queue <- wrapped:
		// Request is on the queue
	case <-b.ctx.Done():
		return errors.Wrapf(ClosedError, "i2c bus %s", b.location)
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Process bus requests from the queue until the given context is canceled.
func (b *I2CBus) queueProcessor(ctx context.Context) {
	// Ensure we're always using the same OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case req := <-b.queue:
			req()
		case <-ctx.Done():
			return
		}
	}
}

func (b *I2CBus) execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	label := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(label).Inc()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var dev *i2cDevice
		dev, err = b.openDevice(address)
		if err != nil {
			i2cExecuteErrorCounters.WithLabelValues(label).Inc()
			return errors.Wrapf(err, "openDevice(0x%02x) failed", address)
		}

		if err = op(ctx, dev); err == nil {
			return nil
		}

		// Device call failed, reopen all devices on the next attempt
		b.closeDevices()
	}
	i2cExecuteErrorCounters.WithLabelValues(label).Inc()
	return errors.Wrap(err, "execute operation in i2c bus failed")
}

// Open a connection to a device at the given address.
func (b *I2CBus) openDevice(address uint8) (*i2cDevice, error) {
	if d, found := b.devices[address]; found {
		return d, nil
	}
	d, err := newI2CDevice(b.adapter, b.location, address)
	if err != nil {
		return nil, err
	}
	b.devices[address] = d
	return d, nil
}

// closeDevices closes all open devices. Must be called on the queue.
func (b *I2CBus) closeDevices() error {
	var ae aerr.AggregateError
	for address, d := range b.devices {
		if err := d.closeFile(); err != nil {
			ae.Add(err)
			b.log.Warn().Err(err).Uint8("address", address).Msg("Failed to close i2c device")
		}
	}
	clear(b.devices)
	return ae.AsError()
}

// DetectSlaveAddresses scans the bus for available addresses.
func (b *I2CBus) DetectSlaveAddresses(ctx context.Context) ([]byte, error) {
	var result []byte
	err := b.do(ctx, func() {
		for addr := uint8(1); addr < 128; addr++ {
			d, err := newI2CDevice(b.adapter, b.location, addr)
			if err != nil {
				continue
			}
			if err := d.DetectDevice(); err == nil {
				result = append(result, addr)
			}
			d.closeFile()
		}
	})
	return result, err
}

// Open claims the device at the given address.
// Opening an address that is already open fails with an InUseError.
func (b *I2CBus) Open(address uint8) (*I2C, error) {
	if b.ctx.Err() != nil {
		return nil, errors.Wrapf(ClosedError, "i2c bus %s", b.location)
	}
	release, err := b.claims.Claim(address)
	if err != nil {
		return nil, errors.Wrapf(err, "i2c bus %s", b.location)
	}
	return &I2C{bus: b, address: address, release: release}, nil
}

// Close the bus and all devices on it
func (b *I2CBus) Close() error {
	var result error
	b.closing.Do(func() {
		if err := b.do(context.Background(), func() {
			result = b.closeDevices()
		}); err != nil {
			result = err
		}
		b.cancel()
	})
	return result
}

// I2C is a claimed device address on an I2C bus.
type I2C struct {
	bus     *I2CBus
	address uint8
	release func()
}

// Address of the device
func (d *I2C) Address() uint8 { return d.address }

// Read one byte from the device.
func (d *I2C) Read(ctx context.Context) (result uint8, err error) {
	err = d.bus.Execute(ctx, d.address, func(_ context.Context, dev I2CDevice) (err error) {
		result, err = dev.ReadByte()
		return err
	})
	return result, err
}

// ReadReg8 reads one byte from the given register.
func (d *I2C) ReadReg8(ctx context.Context, reg uint8) (result uint8, err error) {
	err = d.bus.Execute(ctx, d.address, func(_ context.Context, dev I2CDevice) (err error) {
		result, err = dev.ReadByteReg(reg)
		return err
	})
	return result, err
}

// ReadReg16 reads two bytes from the given register.
func (d *I2C) ReadReg16(ctx context.Context, reg uint8) (result uint16, err error) {
	err = d.bus.Execute(ctx, d.address, func(_ context.Context, dev I2CDevice) (err error) {
		result, err = dev.ReadWordReg(reg)
		return err
	})
	return result, err
}

// Write the address of a register, preparing the next read or write.
func (d *I2C) Write(ctx context.Context, reg uint8) error {
	return d.bus.Execute(ctx, d.address, func(_ context.Context, dev I2CDevice) error {
		return dev.WriteByte(reg)
	})
}

// WriteReg8 writes one byte to the given register.
func (d *I2C) WriteReg8(ctx context.Context, reg, value uint8) error {
	return d.bus.Execute(ctx, d.address, func(_ context.Context, dev I2CDevice) error {
		return dev.WriteByteReg(reg, value)
	})
}

// WriteReg16 writes two bytes to the given register.
func (d *I2C) WriteReg16(ctx context.Context, reg uint8, value uint16) error {
	return d.bus.Execute(ctx, d.address, func(_ context.Context, dev I2CDevice) error {
		return dev.WriteWordReg(reg, value)
	})
}

// Close gives the address back to the bus.
func (d *I2C) Close() error {
	d.release()
	return nil
}
