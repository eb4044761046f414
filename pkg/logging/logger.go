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

package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config of the process logger.
type Config struct {
	// Log level name (debug, info, warn, error)
	Level string
	// Path of an additional log file, optional
	File string
}

// New creates the process logger writing to stderr and, when
// configured, to a log file. The returned MultiWriter accepts more
// outputs later on.
func New(cfg Config) (zerolog.Logger, MultiWriter, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "invalid log level '%s'", cfg.Level)
	}
	out := NewMultiWriter(zerolog.ConsoleWriter{Out: os.Stderr})
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "cannot open log file '%s'", cfg.File)
		}
		out.Add(f)
	}
	log := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return log, out, nil
}
