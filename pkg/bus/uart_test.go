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
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// fakeSerial feeds received data through a pipe and records written data.
type fakeSerial struct {
	mutex   sync.Mutex
	r       *io.PipeReader
	w       *io.PipeWriter
	written bytes.Buffer
	flushes int
	cfg     *serial.Config
}

func (f *fakeSerial) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakeSerial) Write(p []byte) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.written.Write(p)
}

func (f *fakeSerial) Flush() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.flushes++
	return nil
}

func (f *fakeSerial) Close() error { return f.r.Close() }

func newTestUARTs() (*UARTs, map[string]*fakeSerial) {
	ports := make(map[string]*fakeSerial)
	u := newUARTs(func(cfg *serial.Config) (serialPort, error) {
		r, w := io.Pipe()
		port := &fakeSerial{r: r, w: w, cfg: cfg}
		ports[cfg.Name] = port
		return port, nil
	}, zerolog.Nop())
	return u, ports
}

var testUARTConfig = UARTConfig{
	Device:      "/dev/ttyS1",
	BaudRate:    115200,
	DataBits:    8,
	Parity:      ParityEven,
	StopBits:    2,
	FlowControl: FlowControlNone,
}

func TestUARTConfigValidate(t *testing.T) {
	if err := testUARTConfig.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
	invalid := []func(c *UARTConfig){
		func(c *UARTConfig) { c.BaudRate = 1000 },
		func(c *UARTConfig) { c.DataBits = 6 },
		func(c *UARTConfig) { c.StopBits = 3 },
		func(c *UARTConfig) { c.Parity = "mark" },
		func(c *UARTConfig) { c.FlowControl = "rtscts" },
	}
	for i, modify := range invalid {
		c := testUARTConfig
		modify(&c)
		if err := c.Validate(); !IsInvalidUARTConfig(err) {
			t.Errorf("Case %d: expected InvalidUARTConfigError, got %v", i, err)
		}
	}
}

func TestUARTOpen(t *testing.T) {
	u, ports := newTestUARTs()
	c := testUARTConfig
	c.BaudRate = 12
	if _, err := u.Open(c); !IsInvalidUARTConfig(err) {
		t.Errorf("Expected InvalidUARTConfigError, got %v", err)
	}
	c = testUARTConfig
	c.FlowControl = FlowControlXOnOff
	if _, err := u.Open(c); !IsUnsupported(err) {
		t.Errorf("Expected UnsupportedError, got %v", err)
	}

	uart, err := u.Open(testUARTConfig)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	cfg := ports["/dev/ttyS1"].cfg
	if cfg.Baud != 115200 || cfg.Size != 8 || cfg.Parity != serial.ParityEven || cfg.StopBits != serial.Stop2 {
		t.Errorf("Unexpected serial config %+v", cfg)
	}
	if _, err := u.Open(testUARTConfig); !IsInUse(err) {
		t.Errorf("Expected InUseError, got %v", err)
	}
	if err := uart.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	uart, err = u.Open(testUARTConfig)
	if err != nil {
		t.Fatalf("Open after close failed: %v", err)
	}
	uart.Close()
}

func waitAvailable(t *testing.T, uart *UART, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for uart.DataAvailable() < count {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d bytes available, got %d", count, uart.DataAvailable())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestUARTTransfer(t *testing.T) {
	u, ports := newTestUARTs()
	uart, err := u.Open(testUARTConfig)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer uart.Close()
	port := ports["/dev/ttyS1"]

	if err := uart.PutString("AT"); err != nil {
		t.Fatalf("PutString failed: %v", err)
	}
	if err := uart.PutChar('\r'); err != nil {
		t.Fatalf("PutChar failed: %v", err)
	}
	port.mutex.Lock()
	if written := port.written.String(); written != "AT\r" {
		t.Errorf("Expected AT\\r, got %q", written)
	}
	port.mutex.Unlock()

	if _, err := port.w.Write([]byte("OK")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	waitAvailable(t, uart, 2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, expected := range []byte("OK") {
		if c, err := uart.ReadChar(ctx); err != nil || c != expected {
			t.Errorf("Expected %q, got %q (%v)", expected, c, err)
		}
	}

	if _, err := port.w.Write([]byte("junk")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	waitAvailable(t, uart, 4)
	if err := uart.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if uart.DataAvailable() != 0 || port.flushes != 1 {
		t.Errorf("Expected empty buffer after 1 flush, got %d bytes, %d flushes", uart.DataAvailable(), port.flushes)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := uart.ReadChar(short); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
