//    Copyright 2018 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package environment

import (
	"bytes"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	deviceTreeModel = "/proc/device-tree/model"

	// Platform names, as known by the platform registry
	milkVDuo256M = "milkv_duo256m"
	sysfs        = "sysfs"
)

// AutoDetectPlatform detects the default platform name based on the environment.
func AutoDetectPlatform(log zerolog.Logger) string {
	var model string
	if raw, err := os.ReadFile(deviceTreeModel); err == nil {
		model = string(bytes.TrimRight(raw, "\x00\n"))
	} else {
		log.Debug().Err(err).Msg("No device tree model")
	}
	var release string
	var name unix.Utsname
	if err := unix.Uname(&name); err == nil {
		release = string(bytes.TrimRight(name.Release[:], "\x00"))
	}
	result := detect(model, release)
	log.Debug().
		Str("model", model).
		Str("release", release).
		Str("platform", result).
		Msg("Detected platform")
	return result
}

// detect maps a device tree model and kernel release onto a platform name.
func detect(model, release string) string {
	model = strings.ToLower(model)
	release = strings.ToLower(release)
	switch {
	case strings.Contains(model, "duo256m"), strings.Contains(model, "duo 256m"):
		return milkVDuo256M
	case strings.Contains(model, "sg2002"), strings.Contains(release, "sg2002"):
		return milkVDuo256M
	default:
		// Fallback to the generic kernel interface
		return sysfs
	}
}
