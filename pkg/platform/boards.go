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
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/binkynet/wiring/pkg/soc"
)

// Logical pins GP0..GP22 of the Milk-V Duo 256M header, as SG2002
// layout indexes (32*group + bit).
var milkVDuo256MMap = []int{
	28, 29,                       // GP0-1: XGPIOA_28, XGPIOA_29
	122, 121,                     // GP2-3: PWR_GPIO_26, PWR_GPIO_25
	115, 116, 119, 118, 117, 114, // GP4-9: PWR_GPIO_19,20,23,22,21,18
	73, 74,                       // GP10-11: XGPIOC_9, XGPIOC_10
	16, 17, 14, 15,               // GP12-15: XGPIOA_16,17,14,15
	23, 24, 22, 25, 27, 26,       // GP16-21: XGPIOA_23,24,22,25,27,26
	100,                          // GP22: PWR_GPIO_4
}

// PWM numbers of the logical pins.
var milkVDuo256MPWM = map[int]int{
	2: 7, 3: 6, 4: 5, 5: 6, 6: 9, 7: 8,
	8: 7, 9: 4, 10: 10, 11: 11, 12: 4, 13: 5,
}

func newMilkVDuo256M(cfg Config, log zerolog.Logger) (*Platform, error) {
	return newPlatform("milkv_duo256m", milkVDuo256MMap, milkVDuo256MMap, milkVDuo256MPWM, cfg, log, soc.NewSG2002), nil
}

// newSysfs creates a board from a list of kernel gpio numbers.
func newSysfs(cfg Config, log zerolog.Logger) (*Platform, error) {
	if err := validateGPIOMap(cfg.GPIOMap); err != nil {
		return nil, err
	}
	// Logical pin i addresses layout entry i, unless it is not available.
	pinMap := lo.Map(cfg.GPIOMap, func(num int, i int) int {
		if num < 0 {
			return -1
		}
		return i
	})
	layout := soc.SysfsLayout(cfg.GPIOMap)
	create := func(opts soc.Options, log zerolog.Logger) soc.SoC {
		return soc.NewSysfsChip(layout, opts, log)
	}
	return newPlatform(SysfsName, pinMap, pinMap, nil, cfg, log, create), nil
}

func validateGPIOMap(gpioMap []int) error {
	if len(gpioMap) == 0 {
		return errors.Wrap(InvalidMapError, "no gpio numbers given")
	}
	if bad := lo.Filter(gpioMap, func(num int, _ int) bool { return num < -1 }); len(bad) > 0 {
		return errors.Wrapf(InvalidMapError, "negative gpio numbers %v", bad)
	}
	used := lo.Filter(gpioMap, func(num int, _ int) bool { return num >= 0 })
	if dups := lo.FindDuplicates(used); len(dups) > 0 {
		return errors.Wrapf(InvalidMapError, "duplicate gpio numbers %v", dups)
	}
	return nil
}
