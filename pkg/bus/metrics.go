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
	"github.com/binkynet/wiring/pkg/metrics"
)

const (
	subSystem = "bus"
)

var (
	// Number of held claims per resource kind
	claimsHeld = metrics.MustRegisterGaugeVec(subSystem,
		"claims_held",
		"Number of held claims",
		"kind")
	// Total number of times I2CBus.Execute is called
	i2cExecuteCounters = metrics.MustRegisterCounterVec(subSystem,
		"i2c_execute_total",
		"Total number of times I2CBus.Execute is called",
		"address")
	// Total number of times I2CBus.Execute failed
	i2cExecuteErrorCounters = metrics.MustRegisterCounterVec(subSystem,
		"i2c_execute_errors_total",
		"Total number of times I2CBus.Execute failed",
		"address")
	// Total number of SPI transfers
	spiTransfersTotal = metrics.MustRegisterCounterVec(subSystem,
		"spi_transfers_total",
		"Total number of SPI transfers",
		"port")
	// Total number of bytes written to a UART
	uartBytesWrittenTotal = metrics.MustRegisterCounterVec(subSystem,
		"uart_bytes_written_total",
		"Total number of bytes written to a UART",
		"device")
	// Total number of bytes read from a UART
	uartBytesReadTotal = metrics.MustRegisterCounterVec(subSystem,
		"uart_bytes_read_total",
		"Total number of bytes read from a UART",
		"device")
)
