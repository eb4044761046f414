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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

type fakeSPIPort struct {
	name   string
	freq   physic.Frequency
	mode   spi.Mode
	closed bool
	conn   *fakeSPIConn
}

func (p *fakeSPIPort) String() string                      { return p.name }
func (p *fakeSPIPort) LimitSpeed(f physic.Frequency) error { return nil }
func (p *fakeSPIPort) Close() error                        { p.closed = true; return nil }

func (p *fakeSPIPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if bits != 8 {
		return nil, errors.Errorf("unexpected bits %d", bits)
	}
	p.freq, p.mode = f, mode
	p.conn = &fakeSPIConn{}
	return p.conn, nil
}

// fakeSPIConn answers every byte with its inverse.
type fakeSPIConn struct {
	sent []byte
}

func (c *fakeSPIConn) String() string                 { return "fake" }
func (c *fakeSPIConn) Duplex() conn.Duplex            { return conn.Full }
func (c *fakeSPIConn) TxPackets(p []spi.Packet) error { return errors.New("not implemented") }

func (c *fakeSPIConn) Tx(w, r []byte) error {
	c.sent = append(c.sent, w...)
	for i := range r {
		r[i] = ^w[i]
	}
	return nil
}

func TestSPIReadWrite(t *testing.T) {
	ports := make(map[string]*fakeSPIPort)
	p := newSPIPorts(func(name string) (spi.PortCloser, error) {
		port := &fakeSPIPort{name: name}
		ports[name] = port
		return port, nil
	}, zerolog.Nop())

	s, err := p.Open(SPIConfig{Bus: 0, Channel: 1, Speed: 1000000, Mode: 3})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	port := ports["SPI0.1"]
	if port == nil {
		t.Fatalf("Expected SPI0.1 to be opened, got %v", ports)
	}
	if port.freq != physic.MegaHertz || port.mode != spi.Mode3 {
		t.Errorf("Unexpected connection %s mode %d", port.freq, port.mode)
	}

	data := []byte{0x01, 0xF0}
	if err := s.ReadWrite(data); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0xFE, 0x0F}, data); diff != "" {
		t.Errorf("Unexpected data read (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0x01, 0xF0}, port.conn.sent); diff != "" {
		t.Errorf("Unexpected data sent (-want +got):\n%s", diff)
	}

	if _, err := p.Open(SPIConfig{Bus: 0, Channel: 1, Speed: 500000}); !IsInUse(err) {
		t.Errorf("Expected InUseError, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !port.closed {
		t.Error("Expected port to be closed")
	}
	if err := s.ReadWrite(data); !IsClosed(err) {
		t.Errorf("Expected ClosedError, got %v", err)
	}
	if s2, err := p.Open(SPIConfig{Bus: 0, Channel: 1, Speed: 500000}); err != nil {
		t.Errorf("Open after close failed: %v", err)
	} else {
		s2.Close()
	}
}

func TestSPIOpenFailure(t *testing.T) {
	p := newSPIPorts(func(name string) (spi.PortCloser, error) {
		return nil, errors.New("no such port")
	}, zerolog.Nop())
	if _, err := p.Open(SPIConfig{Speed: 1000}); err == nil {
		t.Fatal("Expected error")
	}
	if _, err := p.Open(SPIConfig{}); err == nil {
		t.Error("Expected error for zero speed")
	}
	if p.claims.Held("SPI0.0") {
		t.Error("Failed open must not keep the channel")
	}
}
