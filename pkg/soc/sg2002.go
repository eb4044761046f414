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
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SG2002 register map
const (
	sg2002PageSize   = 4096
	sg2002PinmuxBase = 0x03001000

	gpioSwportADR  = 0x00
	gpioSwportADDR = 0x04
	gpioExtPortA   = 0x50
)

var sg2002GroupBases = []int64{0x03020000, 0x03021000, 0x03022000, 0x05021000}

// pad creates an available SG2002 layout entry.
// Direction and data live in the same bit of the group page.
func pad(name string, group, num int, muxOffset uintptr, muxValue uint32, bit uint) Entry {
	return Available(PinDescriptor{
		Name:      name,
		Group:     group,
		Num:       num,
		Pinmux:    Pinmux{Offset: muxOffset, Value: muxValue},
		Direction: Register{Offset: gpioSwportADDR, Bit: bit},
		Data:      Register{Offset: gpioSwportADR, Bit: bit},
	})
}

// SG2002Layout is the pad table of the Sophgo SG2002.
// Index 32*group+bit addresses the pad of a GPIO group.
var SG2002Layout = Layout{
	pad("XGPIOA_0", 0, 480, 0x00, 0x3, 0),
	pad("XGPIOA_1", 0, 481, 0x04, 0x3, 1),
	pad("XGPIOA_2", 0, 482, 0x08, 0x3, 2),
	pad("XGPIOA_3", 0, 483, 0x0c, 0x3, 3),
	pad("XGPIOA_4", 0, 484, 0x10, 0x3, 4),
	pad("XGPIOA_5", 0, 485, 0x14, 0x3, 5),
	pad("XGPIOA_6", 0, 486, 0x18, 0x3, 6),
	pad("XGPIOA_7", 0, 487, 0x1c, 0x3, 7),
	pad("XGPIOA_8", 0, 488, 0x20, 0x3, 8),
	pad("XGPIOA_9", 0, 489, 0x24, 0x3, 9),
	pad("XGPIOA_10", 0, 490, 0x28, 0x3, 10),
	pad("XGPIOA_11", 0, 491, 0x2c, 0x3, 11),
	pad("XGPIOA_12", 0, 492, 0x30, 0x3, 12),
	pad("XGPIOA_13", 0, 493, 0x34, 0x3, 13),
	pad("XGPIOA_14", 0, 494, 0x38, 0x3, 14),
	pad("XGPIOA_15", 0, 495, 0x3c, 0x3, 15),
	pad("XGPIOA_16", 0, 496, 0x40, 0x3, 16),
	pad("XGPIOA_17", 0, 497, 0x44, 0x3, 17),
	pad("XGPIOA_18", 0, 498, 0x68, 0x3, 18),
	pad("XGPIOA_19", 0, 499, 0x64, 0x3, 19),
	pad("XGPIOA_20", 0, 500, 0x6c, 0x3, 20),
	pad("XGPIOA_21", 0, 501, 0x48, 0x3, 21),
	pad("XGPIOA_22", 0, 502, 0x50, 0x3, 22),
	pad("XGPIOA_23", 0, 503, 0x5c, 0x3, 23),
	pad("XGPIOA_24", 0, 504, 0x60, 0x3, 24),
	pad("XGPIOA_25", 0, 505, 0x54, 0x3, 25),
	pad("XGPIOA_26", 0, 506, 0x4c, 0x3, 26),
	pad("XGPIOA_27", 0, 507, 0x58, 0x3, 27),
	pad("XGPIOA_28", 0, 508, 0x70, 0x3, 28),
	pad("XGPIOA_29", 0, 509, 0x74, 0x3, 29),
	pad("XGPIOA_30", 0, 510, 0x78, 0x3, 30),
	Unavailable("XGPIOA_31"),
	pad("XGPIOB_0", 1, 448, 0xec, 0x3, 0),
	pad("XGPIOB_1", 1, 449, 0xf0, 0x3, 1),
	pad("XGPIOB_2", 1, 450, 0xf4, 0x3, 2),
	pad("XGPIOB_3", 1, 451, 0xf8, 0x3, 3),
	pad("XGPIOB_4", 1, 452, 0xfc, 0x3, 4),
	pad("XGPIOB_5", 1, 453, 0x100, 0x3, 5),
	pad("XGPIOB_6", 1, 454, 0x108, 0x3, 6),
	pad("XGPIOB_7", 1, 455, 0x118, 0x3, 7),
	pad("XGPIOB_8", 1, 456, 0x114, 0x3, 8),
	pad("XGPIOB_9", 1, 457, 0x120, 0x3, 9),
	pad("XGPIOB_10", 1, 458, 0x11c, 0x3, 10),
	pad("XGPIOB_11", 1, 459, 0x134, 0x3, 11),
	pad("XGPIOB_12", 1, 460, 0x138, 0x3, 12),
	pad("XGPIOB_13", 1, 461, 0x13c, 0x3, 13),
	pad("XGPIOB_14", 1, 462, 0x140, 0x3, 14),
	pad("XGPIOB_15", 1, 463, 0x144, 0x3, 15),
	pad("XGPIOB_16", 1, 464, 0x148, 0x3, 16),
	pad("XGPIOB_17", 1, 465, 0x14c, 0x3, 17),
	pad("XGPIOB_18", 1, 466, 0x150, 0x3, 18),
	pad("XGPIOB_19", 1, 467, 0x154, 0x3, 19),
	pad("XGPIOB_20", 1, 468, 0x158, 0x3, 20),
	pad("XGPIOB_21", 1, 469, 0x15c, 0x3, 21),
	pad("XGPIOB_22", 1, 470, 0x160, 0x3, 22),
	pad("XGPIOB_23", 1, 471, 0x1cc, 0x3, 23),
	pad("XGPIOB_24", 1, 472, 0x128, 0x3, 24),
	pad("XGPIOB_25", 1, 473, 0x124, 0x3, 25),
	pad("XGPIOB_26", 1, 474, 0x130, 0x3, 26),
	pad("XGPIOB_27", 1, 475, 0x12c, 0x3, 27),
	Unavailable("XGPIOB_28"),
	Unavailable("XGPIOB_29"),
	Unavailable("XGPIOB_30"),
	Unavailable("XGPIOB_31"),
	pad("XGPIOC_0", 2, 416, 0x164, 0x3, 0),
	pad("XGPIOC_1", 2, 417, 0x168, 0x3, 1),
	pad("XGPIOC_2", 2, 418, 0x16c, 0x3, 2),
	pad("XGPIOC_3", 2, 419, 0x170, 0x3, 3),
	pad("XGPIOC_4", 2, 420, 0x174, 0x3, 4),
	pad("XGPIOC_5", 2, 421, 0x178, 0x3, 5),
	pad("XGPIOC_6", 2, 422, 0x17c, 0x3, 6),
	pad("XGPIOC_7", 2, 423, 0x180, 0x3, 7),
	pad("XGPIOC_8", 2, 424, 0x184, 0x3, 8),
	pad("XGPIOC_9", 2, 425, 0x188, 0x3, 9),
	pad("XGPIOC_10", 2, 426, 0x18c, 0x3, 10),
	pad("XGPIOC_11", 2, 427, 0x190, 0x3, 11),
	pad("XGPIOC_12", 2, 428, 0x1b4, 0x3, 12),
	pad("XGPIOC_13", 2, 429, 0x1b8, 0x3, 13),
	pad("XGPIOC_14", 2, 430, 0x1ac, 0x3, 14),
	pad("XGPIOC_15", 2, 431, 0x1b0, 0x3, 15),
	pad("XGPIOC_16", 2, 432, 0x1a4, 0x3, 16),
	pad("XGPIOC_17", 2, 433, 0x1a8, 0x3, 17),
	pad("XGPIOC_18", 2, 434, 0x194, 0x3, 18),
	pad("XGPIOC_19", 2, 435, 0x198, 0x3, 19),
	pad("XGPIOC_20", 2, 436, 0x19c, 0x3, 20),
	pad("XGPIOC_21", 2, 437, 0x1a0, 0x3, 21),
	pad("XGPIOC_22", 2, 438, 0x1c0, 0x3, 22),
	pad("XGPIOC_23", 2, 439, 0x1bc, 0x3, 23),
	pad("XGPIOC_24", 2, 440, 0x1c8, 0x3, 24),
	pad("XGPIOC_25", 2, 441, 0x1c4, 0x3, 25),
	Unavailable("XGPIOC_26"),
	Unavailable("XGPIOC_27"),
	Unavailable("XGPIOC_28"),
	Unavailable("XGPIOC_29"),
	Unavailable("XGPIOC_30"),
	Unavailable("XGPIOC_31"),
	pad("PWR_GPIO_0", 3, 352, 0xa4, 0x0, 0),
	pad("PWR_GPIO_1", 3, 353, 0xa8, 0x0, 1),
	pad("PWR_GPIO_2", 3, 354, 0xac, 0x0, 2),
	pad("PWR_GPIO_3", 3, 355, 0x84, 0x3, 3),
	pad("PWR_GPIO_4", 3, 356, 0x88, 0x3, 4),
	pad("PWR_GPIO_5", 3, 357, 0x8c, 0x3, 5),
	pad("PWR_GPIO_6", 3, 358, 0x90, 0x3, 6),
	pad("PWR_GPIO_7", 3, 359, 0x94, 0x3, 7),
	pad("PWR_GPIO_8", 3, 360, 0x98, 0x3, 8),
	pad("PWR_GPIO_9", 3, 361, 0x9c, 0x3, 9),
	pad("PWR_GPIO_10", 3, 362, 0xb0, 0x3, 10),
	pad("PWR_GPIO_11", 3, 363, 0xb4, 0x3, 11),
	pad("PWR_GPIO_12", 3, 364, 0xb8, 0x3, 12),
	pad("PWR_GPIO_13", 3, 365, 0xbc, 0x3, 13),
	pad("PWR_GPIO_14", 3, 366, 0xc0, 0x3, 14),
	pad("PWR_GPIO_15", 3, 367, 0xc4, 0x3, 15),
	pad("PWR_GPIO_16", 3, 368, 0xc8, 0x3, 16),
	pad("PWR_GPIO_17", 3, 369, 0xcc, 0x3, 17),
	pad("PWR_GPIO_18", 3, 370, 0xd0, 0x3, 18),
	pad("PWR_GPIO_19", 3, 371, 0xd4, 0x3, 19),
	pad("PWR_GPIO_20", 3, 372, 0xd8, 0x3, 20),
	pad("PWR_GPIO_21", 3, 373, 0xdc, 0x3, 21),
	pad("PWR_GPIO_22", 3, 374, 0xe0, 0x3, 22),
	pad("PWR_GPIO_23", 3, 375, 0xe4, 0x3, 23),
	pad("PWR_GPIO_24", 3, 376, 0x1d0, 0x3, 24),
	Unavailable("PWR_GPIO_25"),
	Unavailable("PWR_GPIO_26"),
	Unavailable("PWR_GPIO_27"),
	Unavailable("PWR_GPIO_28"),
	Unavailable("PWR_GPIO_29"),
	Unavailable("PWR_GPIO_30"),
	Unavailable("PWR_GPIO_31"),
}

// SG2002PWMChannel maps a PWM number to its sysfs channel.
// pwmchip0 carries pwm0-3, pwmchip4 carries pwm4-7 and so on. Only
// pwm4 up to pwm11 are routed to pads.
func SG2002PWMChannel(pwm int) (PWMChannel, error) {
	if pwm < 4 || pwm > 11 {
		return PWMChannel{}, errors.Wrapf(NotPWMPinError, "pwm %d not supported", pwm)
	}
	return PWMChannel{Chip: (pwm / 4) * 4, Index: pwm % 4}, nil
}

// SG2002 returns the chip description of the Sophgo SG2002.
func SG2002() *ChipInfo {
	return &ChipInfo{
		Brand:           "Sophgo",
		Chip:            "SG2002",
		PageSize:        sg2002PageSize,
		GroupBases:      sg2002GroupBases,
		PinmuxBase:      sg2002PinmuxBase,
		DataRegister:    gpioSwportADR,
		ExtPortRegister: gpioExtPortA,
		Layout:          SG2002Layout,
		PWMChannel:      SG2002PWMChannel,
	}
}

// NewSG2002 creates a memory mapped SoC for the Sophgo SG2002.
func NewSG2002(opts Options, log zerolog.Logger) SoC {
	return NewRegisterChip(SG2002(), opts, log)
}
