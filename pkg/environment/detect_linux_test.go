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

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		model, release, expected string
	}{
		{"Milk-V Duo256M", "5.10.4-tag-", "milkv_duo256m"},
		{"Cvitek. CV181X ASIC. C906. sg2002", "", "milkv_duo256m"},
		{"", "5.10.4-sg2002", "milkv_duo256m"},
		{"Raspberry Pi 4 Model B Rev 1.4", "6.1.21-v8+", "sysfs"},
		{"", "", "sysfs"},
	}
	for _, test := range tests {
		if got := detect(test.model, test.release); got != test.expected {
			t.Errorf("detect(%q, %q): expected %s, got %s", test.model, test.release, test.expected, got)
		}
	}
}
