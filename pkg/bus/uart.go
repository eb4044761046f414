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
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tarm/serial"
)

// Parity of a serial connection
type Parity string

const (
	ParityNone Parity = "none"
	ParityEven Parity = "even"
	ParityOdd  Parity = "odd"
)

// FlowControl of a serial connection
type FlowControl string

const (
	FlowControlNone   FlowControl = "none"
	FlowControlXOnOff FlowControl = "xonxoff"
)

var validBaudRates = []int{50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800,
	2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}

// UARTConfig of a serial connection.
type UARTConfig struct {
	// Path of the tty (e.g. /dev/ttyS1)
	Device      string
	BaudRate    int
	DataBits    int
	Parity      Parity
	StopBits    int
	FlowControl FlowControl
}

// Validate returns an InvalidUARTConfigError when the settings cannot be used.
func (c UARTConfig) Validate() error {
	if !lo.Contains(validBaudRates, c.BaudRate) {
		return errors.Wrapf(InvalidUARTConfigError, "baud rate %d", c.BaudRate)
	}
	if c.DataBits != 7 && c.DataBits != 8 {
		return errors.Wrapf(InvalidUARTConfigError, "data bits %d", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return errors.Wrapf(InvalidUARTConfigError, "stop bits %d", c.StopBits)
	}
	switch c.Parity {
	case ParityNone, ParityEven, ParityOdd:
	default:
		return errors.Wrapf(InvalidUARTConfigError, "parity '%s'", c.Parity)
	}
	switch c.FlowControl {
	case FlowControlNone, FlowControlXOnOff:
	default:
		return errors.Wrapf(InvalidUARTConfigError, "flow control '%s'", c.FlowControl)
	}
	return nil
}

func (c UARTConfig) serialConfig() *serial.Config {
	parity := serial.ParityNone
	switch c.Parity {
	case ParityEven:
		parity = serial.ParityEven
	case ParityOdd:
		parity = serial.ParityOdd
	}
	stopBits := serial.Stop1
	if c.StopBits == 2 {
		stopBits = serial.Stop2
	}
	return &serial.Config{
		Name:        c.Device,
		Baud:        c.BaudRate,
		ReadTimeout: uartReadTimeout,
		Size:        byte(c.DataBits),
		Parity:      parity,
		StopBits:    stopBits,
	}
}

const (
	uartReadTimeout = time.Millisecond * 100
	uartBufferSize  = 4096
)

// serialPort is the part of *serial.Port used by a UART.
type serialPort interface {
	io.ReadWriteCloser
	Flush() error
}

type uartOpener func(cfg *serial.Config) (serialPort, error)

func openSerialPort(cfg *serial.Config) (serialPort, error) {
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// UARTs hands out serial devices, each to one user at a time.
type UARTs struct {
	log    zerolog.Logger
	claims *Claims[string]
	open   uartOpener
}

// NewUARTs returns UARTs backed by tty devices.
func NewUARTs(log zerolog.Logger) *UARTs {
	return newUARTs(openSerialPort, log)
}

func newUARTs(open uartOpener, log zerolog.Logger) *UARTs {
	return &UARTs{
		log:    log,
		claims: NewClaims[string]("uart"),
		open:   open,
	}
}

// Open validates the config, claims the device and opens it.
func (u *UARTs) Open(cfg UARTConfig) (*UART, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FlowControl == FlowControlXOnOff {
		return nil, errors.Wrap(UnsupportedError, "xon/xoff flow control")
	}
	release, err := u.claims.Claim(cfg.Device)
	if err != nil {
		return nil, err
	}
	port, err := u.open(cfg.serialConfig())
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "failed to open %s", cfg.Device)
	}
	uart := &UART{
		device:  cfg.Device,
		log:     u.log.With().Str("uart", cfg.Device).Logger(),
		port:    port,
		rx:      make(chan byte, uartBufferSize),
		done:    make(chan struct{}),
		release: release,
	}
	go uart.receive()
	return uart, nil
}

// UART is an open serial device.
// Received bytes are buffered until read.
type UART struct {
	device  string
	log     zerolog.Logger
	mutex   sync.Mutex
	port    serialPort
	rx      chan byte
	done    chan struct{}
	closing sync.Once
	release func()
}

// receive moves incoming bytes into the buffer until the UART is closed.
func (u *UART) receive() {
	buf := make([]byte, 256)
	for {
		n, err := u.port.Read(buf)
		uartBytesReadTotal.WithLabelValues(u.device).Add(float64(n))
		for _, b := range buf[:n] {
			select {
			case u.rx <- b:
			case <-u.done:
				return
			}
		}
		select {
		case <-u.done:
			return
		default:
		}
		if err != nil && err != io.EOF {
			u.log.Warn().Err(err).Msg("Failed to read from uart")
			return
		}
	}
}

// Flush discards all buffered data.
func (u *UART) Flush() error {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	if err := u.port.Flush(); err != nil {
		return errors.Wrapf(err, "failed to flush %s", u.device)
	}
	for len(u.rx) > 0 {
		<-u.rx
	}
	return nil
}

// PutChar writes a single byte.
func (u *UART) PutChar(c byte) error {
	return u.write([]byte{c})
}

// PutString writes the given string.
func (u *UART) PutString(s string) error {
	return u.write([]byte(s))
}

func (u *UART) write(data []byte) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	n, err := u.port.Write(data)
	uartBytesWrittenTotal.WithLabelValues(u.device).Add(float64(n))
	if err != nil {
		return errors.Wrapf(WriteError, "uart %s: %v", u.device, err)
	}
	return nil
}

// DataAvailable returns the number of received bytes that have not been read.
func (u *UART) DataAvailable() int {
	return len(u.rx)
}

// ReadChar returns the next received byte.
// Blocks until a byte arrives or the context is canceled.
func (u *UART) ReadChar(ctx context.Context) (byte, error) {
	select {
	case b := <-u.rx:
		return b, nil
	case <-u.done:
		return 0, errors.Wrapf(ClosedError, "uart %s", u.device)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close the device and give it back.
func (u *UART) Close() error {
	var err error
	u.closing.Do(func() {
		close(u.done)
		err = u.port.Close()
		u.release()
	})
	return err
}
