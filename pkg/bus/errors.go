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

import "github.com/pkg/errors"

var (
	InUseError             = errors.New("resource is already in use")
	IsInUse                = isErrorFunc(InUseError)
	ClosedError            = errors.New("bus is closed")
	IsClosed               = isErrorFunc(ClosedError)
	UnsupportedError       = errors.New("operation not supported by adapter")
	IsUnsupported          = isErrorFunc(UnsupportedError)
	ReadError              = errors.New("failed to read from device")
	IsRead                 = isErrorFunc(ReadError)
	WriteError             = errors.New("failed to write to device")
	IsWrite                = isErrorFunc(WriteError)
	InvalidUARTConfigError = errors.New("invalid uart config")
	IsInvalidUARTConfig    = isErrorFunc(InvalidUARTConfigError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
