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
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	// DefaultGPIORoot is the kernel sysfs GPIO class directory.
	DefaultGPIORoot = "/sys/class/gpio"
)

// poll waits for events on file descriptors.
var poll = unix.Poll

// sysfsGPIO bridges pins to the kernel sysfs GPIO edge interrupt
// mechanism.
type sysfsGPIO struct {
	log  zerolog.Logger
	root string
}

func newSysfsGPIO(root string, log zerolog.Logger) *sysfsGPIO {
	if root == "" {
		root = DefaultGPIORoot
	}
	return &sysfsGPIO{log: log, root: root}
}

func (s *sysfsGPIO) pinDir(num int) string {
	return filepath.Join(s.root, "gpio"+strconv.Itoa(num))
}

func (s *sysfsGPIO) pinFile(num int, name string) string {
	return filepath.Join(s.pinDir(num), name)
}

// isExported returns true if the gpio<N> directory exists.
func (s *sysfsGPIO) isExported(num int) bool {
	return pathExists(s.pinDir(num))
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeString writes the given content to a sysfs attribute.
// Sysfs attributes must be written in a single write call.
func writeString(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *sysfsGPIO) export(num int) error {
	if err := writeString(filepath.Join(s.root, "export"), strconv.Itoa(num)); err != nil {
		return errors.Wrapf(ExportError, "gpio %d: %v", num, err)
	}
	return nil
}

func (s *sysfsGPIO) unexport(num int) error {
	if err := writeString(filepath.Join(s.root, "unexport"), strconv.Itoa(num)); err != nil {
		return errors.Wrapf(err, "unexport gpio %d", num)
	}
	return nil
}

// arm exports the gpio (when needed), configures it as an edge
// triggered input and opens its value file.
// The edge is validated before anything is written.
func (s *sysfsGPIO) arm(num int, edge Edge) (*os.File, error) {
	if err := edge.Validate(); err != nil {
		return nil, err
	}
	exported := false
	if !s.isExported(num) {
		if err := s.export(num); err != nil {
			return nil, err
		}
		exported = true
	}
	f, err := s.configure(num, edge)
	if err != nil {
		if exported {
			// Leave no half configured gpio behind
			if uerr := s.unexport(num); uerr != nil {
				s.log.Warn().Err(uerr).Int("gpio", num).Msg("Failed to unexport gpio after failed arm")
			}
		}
		return nil, err
	}
	s.log.Debug().Int("gpio", num).Str("edge", string(edge)).Msg("Armed interrupt")
	return f, nil
}

// configure sets direction and edge of an exported gpio and opens its
// value file.
func (s *sysfsGPIO) configure(num int, edge Edge) (*os.File, error) {
	if err := writeString(s.pinFile(num, "direction"), "in"); err != nil {
		return nil, errors.Wrapf(DirectionError, "gpio %d: %v", num, err)
	}
	if err := writeString(s.pinFile(num, "edge"), string(edge)); err != nil {
		return nil, errors.Wrapf(EdgeModeError, "gpio %d edge '%s': %v", num, edge, err)
	}
	f, err := os.OpenFile(s.pinFile(num, "value"), os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(OpenValueError, "gpio %d: %v", num, err)
	}
	// Consume the current value so the first poll only reports new edges.
	if _, err := readLevel(f); err != nil {
		f.Close()
		return nil, errors.Wrapf(OpenValueError, "gpio %d: %v", num, err)
	}
	return f, nil
}

// disarm unexports the gpio (when still exported) and closes the value
// file. Failures are returned for diagnostics only; callers log them.
func (s *sysfsGPIO) disarm(num int, value *os.File) error {
	var ae aerr.AggregateError
	if s.isExported(num) {
		ae.Add(s.unexport(num))
	}
	if value != nil {
		if err := value.Close(); err != nil {
			ae.Add(errors.Wrapf(err, "close value of gpio %d", num))
		}
	}
	return ae.AsError()
}

// wait blocks until an edge is signaled on the given value file or the
// timeout expires. A negative timeout blocks indefinitely.
func wait(value *os.File, timeout time.Duration) (Value, error) {
	fds := []unix.PollFd{{
		Fd:     int32(value.Fd()),
		Events: unix.POLLPRI | unix.POLLERR,
	}}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ms := -1
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			ms = int((remaining + time.Millisecond - 1) / time.Millisecond)
		}
		n, err := poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Low, errors.Wrap(err, "poll")
		}
		if n == 0 {
			return Low, maskAny(TimeoutError)
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return Low, errors.Wrap(unix.EBADF, "poll")
		}
		return readLevel(value)
	}
}

// readLevel reads the current level from the start of a value file.
func readLevel(f *os.File) (Value, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Low, errors.Wrap(err, "seek")
	}
	var buf [2]byte
	n, err := f.Read(buf[:])
	if err != nil && err != io.EOF {
		return Low, errors.Wrap(err, "read")
	}
	if n > 0 && buf[0] == '1' {
		return High, nil
	}
	return Low, nil
}
