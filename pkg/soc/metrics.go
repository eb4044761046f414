//    Copyright 2025 Ewout Prangsma
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

package soc

import (
	"github.com/binkynet/wiring/pkg/metrics"
)

const (
	subSystem = "soc"
)

var (
	// Total number of failures while mapping registers, per stage
	mapErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"map_errors_total",
		"Total number of failures while mapping registers",
		"stage")
	// Total number of register operations, per kind
	registerOpsTotal = metrics.MustRegisterCounterVec(subSystem,
		"register_ops_total",
		"Total number of register operations",
		"op")
	// Total number of interrupts received
	interruptsTotal = metrics.MustRegisterCounter(subSystem,
		"interrupts_total",
		"Total number of interrupts received")
	// Total number of interrupt waits that timed out
	interruptTimeoutsTotal = metrics.MustRegisterCounter(subSystem,
		"interrupt_timeouts_total",
		"Total number of interrupt waits that timed out")
	// Total number of GC runs that recorded errors
	gcErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"gc_errors_total",
		"Total number of GC runs that recorded errors")
)
