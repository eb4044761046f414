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

import "github.com/pkg/errors"

var (
	// Setup & register mapping
	DeviceOpenError    = errors.New("cannot open memory device")
	IsDeviceOpen       = isErrorFunc(DeviceOpenError)
	MapError           = errors.New("cannot map register page")
	IsMap              = isErrorFunc(MapError)
	NotSetupError      = errors.New("chip has not been setup")
	IsNotSetup         = isErrorFunc(NotSetupError)
	RegisterRangeError = errors.New("register outside mapped page")
	IsRegisterRange    = isErrorFunc(RegisterRangeError)

	// Pin resolution
	UnmappedPinError    = errors.New("pin map has not been set")
	IsUnmappedPin       = isErrorFunc(UnmappedPinError)
	InvalidPinError     = errors.New("invalid pin")
	IsInvalidPin        = isErrorFunc(InvalidPinError)
	InvalidGroupError   = errors.New("gpio group out of range")
	IsInvalidGroup      = isErrorFunc(InvalidGroupError)
	UnsupportedPinError = errors.New("pin is unavailable")
	IsUnsupportedPin    = isErrorFunc(UnsupportedPinError)

	// Pin state
	WrongModeError    = errors.New("pin is not in the required mode")
	IsWrongMode       = isErrorFunc(WrongModeError)
	InvalidModeError  = errors.New("invalid pin mode")
	IsInvalidMode     = isErrorFunc(InvalidModeError)
	InvalidValueError = errors.New("invalid digital value")
	IsInvalidValue    = isErrorFunc(InvalidValueError)

	// Sysfs interrupts
	ExportError          = errors.New("cannot export gpio")
	IsExport             = isErrorFunc(ExportError)
	DirectionError       = errors.New("cannot set gpio direction")
	IsDirection          = isErrorFunc(DirectionError)
	EdgeModeError        = errors.New("cannot set gpio edge")
	IsEdgeMode           = isErrorFunc(EdgeModeError)
	OpenValueError       = errors.New("cannot open gpio value")
	IsOpenValue          = isErrorFunc(OpenValueError)
	InvalidEdgeModeError = errors.New("invalid edge mode")
	IsInvalidEdgeMode    = isErrorFunc(InvalidEdgeModeError)
	TimeoutError         = errors.New("timeout waiting for interrupt")
	IsTimeout            = isErrorFunc(TimeoutError)
	GPIORootError        = errors.New("unsupported gpio root")
	IsGPIORoot           = isErrorFunc(GPIORootError)

	// Sysfs PWM
	NotPWMPinError       = errors.New("pin has no pwm channel")
	IsNotPWMPin          = isErrorFunc(NotPWMPinError)
	PWMExportError       = errors.New("cannot export pwm channel")
	IsPWMExport          = isErrorFunc(PWMExportError)
	PWMWriteError        = errors.New("cannot write pwm attribute")
	IsPWMWrite           = isErrorFunc(PWMWriteError)
	InvalidPolarityError = errors.New("invalid pwm polarity")
	IsInvalidPolarity    = isErrorFunc(InvalidPolarityError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
