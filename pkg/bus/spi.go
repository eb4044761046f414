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
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIConfig selects an SPI channel and its transfer settings.
type SPIConfig struct {
	// Bus number (N in /dev/spidevN.M)
	Bus int
	// Chip select (M in /dev/spidevN.M)
	Channel int
	// Clock speed in Hz
	Speed int
	// Clock polarity and phase (0-3)
	Mode int
}

// Name of the port in the periph registry.
func (c SPIConfig) Name() string {
	return fmt.Sprintf("SPI%d.%d", c.Bus, c.Channel)
}

type spiOpener func(name string) (spi.PortCloser, error)

// SPIPorts hands out SPI channels, each to one user at a time.
type SPIPorts struct {
	log    zerolog.Logger
	claims *Claims[string]
	open   spiOpener
}

// NewSPIPorts returns SPI ports backed by the spidev driver.
func NewSPIPorts(log zerolog.Logger) *SPIPorts {
	return newSPIPorts(openPeriphSPI, log)
}

func newSPIPorts(open spiOpener, log zerolog.Logger) *SPIPorts {
	return &SPIPorts{
		log:    log,
		claims: NewClaims[string]("spi channel"),
		open:   open,
	}
}

var initHost sync.Once
var initHostErr error

func openPeriphSPI(name string) (spi.PortCloser, error) {
	initHost.Do(func() {
		_, initHostErr = host.Init()
	})
	if initHostErr != nil {
		return nil, errors.Wrap(initHostErr, "failed to initialize periph host")
	}
	return spireg.Open(name)
}

// Open claims and connects the configured channel.
func (p *SPIPorts) Open(cfg SPIConfig) (*SPI, error) {
	if cfg.Speed <= 0 {
		return nil, errors.Errorf("invalid spi speed %d", cfg.Speed)
	}
	name := cfg.Name()
	release, err := p.claims.Claim(name)
	if err != nil {
		return nil, err
	}
	port, err := p.open(name)
	if err != nil {
		release()
		return nil, errors.Wrapf(err, "failed to open %s", name)
	}
	conn, err := port.Connect(physic.Hertz*physic.Frequency(cfg.Speed), spi.Mode(cfg.Mode), 8)
	if err != nil {
		if cerr := port.Close(); cerr != nil {
			p.log.Warn().Err(cerr).Str("port", name).Msg("Failed to close spi port")
		}
		release()
		return nil, errors.Wrapf(err, "failed to connect %s", name)
	}
	p.log.Debug().Str("port", name).Int("speed", cfg.Speed).Msg("Opened spi port")
	return &SPI{
		name:    name,
		port:    port,
		conn:    conn,
		release: release,
	}, nil
}

// SPI is a connected SPI channel.
type SPI struct {
	name    string
	mutex   sync.Mutex
	port    spi.PortCloser
	conn    spi.Conn
	release func()
}

// Name of the port
func (s *SPI) Name() string { return s.name }

// ReadWrite sends the given data and replaces it with the data read
// during the same transfer.
func (s *SPI) ReadWrite(data []byte) error {
	w := make([]byte, len(data))
	copy(w, data)
	return s.Tx(w, data)
}

// Tx sends w and reads into r in a single full duplex transfer.
func (s *SPI) Tx(w, r []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.conn == nil {
		return errors.Wrapf(ClosedError, "spi %s", s.name)
	}
	spiTransfersTotal.WithLabelValues(s.name).Inc()
	if err := s.conn.Tx(w, r); err != nil {
		return errors.Wrapf(WriteError, "spi %s: %v", s.name, err)
	}
	return nil
}

// Close the port and give the channel back.
func (s *SPI) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn = nil
	defer s.release()
	return s.port.Close()
}
