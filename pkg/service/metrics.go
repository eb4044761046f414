//    Copyright 2021 Ewout Prangsma
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

package service

import (
	"github.com/binkynet/wiring/pkg/metrics"
)

const (
	subSystem = "service"
)

var (
	// Total number of output writes per pin
	outputWritesTotal = metrics.MustRegisterCounterVec(subSystem,
		"output_writes_total",
		"Total number of output writes per pin",
		"pin")
	// Total number of detected input changes per pin
	inputChangesTotal = metrics.MustRegisterCounterVec(subSystem,
		"input_changes_total",
		"Total number of detected input changes per pin",
		"pin")
	// Total number of interrupts per pin
	interruptsTotal = metrics.MustRegisterCounterVec(subSystem,
		"interrupts_total",
		"Total number of interrupts per pin",
		"pin")
	// Total number of failed loop iterations per loop
	loopErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"loop_errors_total",
		"Total number of failed loop iterations",
		"loop")
	// Number of event receivers
	eventReceivers = metrics.MustRegisterGauge(subSystem,
		"event_receivers",
		"Number of registered event receivers")
)
