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

package platform

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/wiring/pkg/soc"
)

// Config of a platform.
type Config struct {
	// Name (or alias) of the board
	Name string
	// Options passed to the SoC
	SoC soc.Options
	// Kernel gpio numbers of the logical pins of the sysfs board.
	// -1 marks a logical pin that is not available.
	GPIOMap []int
}

// board is a registry entry.
type board struct {
	name    string
	aliases []string
	build   func(cfg Config, log zerolog.Logger) (*Platform, error)
}

var boards = []board{
	{
		name:    "milkv_duo256m",
		aliases: []string{"duo256m"},
		build:   newMilkVDuo256M,
	},
	{
		name:  SysfsName,
		build: newSysfs,
	},
}

const (
	// SysfsName is the name of the generic sysfs board.
	SysfsName = "sysfs"
)

// Names returns the names of all registered boards, sorted.
func Names() []string {
	result := lo.Map(boards, func(b board, _ int) string { return b.name })
	sort.Strings(result)
	return result
}

// Canonical returns the registered name of the given board name or
// alias. Lookup is case insensitive.
func Canonical(name string) (string, error) {
	b, err := lookup(name)
	if err != nil {
		return "", err
	}
	return b.name, nil
}

func lookup(name string) (board, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	b, found := lo.Find(boards, func(b board) bool {
		return b.name == name || lo.Contains(b.aliases, name)
	})
	if !found {
		return board{}, errors.Wrapf(UnknownPlatformError, "'%s', expected one of %s", name, strings.Join(Names(), ", "))
	}
	return b, nil
}

// New creates the platform with the given name.
// The pin and interrupt maps are installed on the SoC, Setup still has
// to be called before any pin operation.
func New(cfg Config, log zerolog.Logger) (*Platform, error) {
	b, err := lookup(cfg.Name)
	if err != nil {
		return nil, err
	}
	p, err := b.build(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("platform", p.name).
		Str("chip", p.soc.Brand()+" "+p.soc.Chip()).
		Int("pins", len(p.pinMap)).
		Msg("Created platform")
	return p, nil
}
