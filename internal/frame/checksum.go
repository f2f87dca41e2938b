// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package frame

// Checksum XORs every byte of data into seed and returns the accumulator.
//
// XOR is order independent, so the result does not change when bytes are
// reordered. The ROM validates data blocks with exactly this function.
func Checksum(data []byte, seed byte) byte {
	chk := seed
	for _, b := range data {
		chk ^= b
	}
	return chk
}
