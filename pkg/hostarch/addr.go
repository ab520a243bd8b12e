// Copyright 2018 The gVisor Authors.
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

// Package hostarch provides the types and arithmetic for addressing the
// guest's virtual address space: page-aligned addresses, half-open ranges
// over them, and the access-permission algebra shared by the memory
// manager and the VFS.
package hostarch

import (
	"fmt"
	"math"
)

// PageSize is the system page size assumed throughout the sentry. All
// guest memory is mapped and accounted in PageSize units.
const PageSize = 4096

// Addr is a guest virtual address.
type Addr uintptr

// IsPageAligned returns true if addr is a multiple of PageSize.
func (addr Addr) IsPageAligned() bool {
	return addr%PageSize == 0
}

// RoundDown returns the address rounded down to the nearest page boundary.
// RoundDown is infallible.
func (addr Addr) RoundDown() Addr {
	return addr &^ (PageSize - 1)
}

// RoundUp returns the address rounded up to the nearest page boundary, and
// false if that rounding overflows.
func (addr Addr) RoundUp() (Addr, bool) {
	rounded := addr.RoundDown()
	if rounded != addr {
		rounded += PageSize
	}
	return rounded, rounded >= addr
}

// MustRoundUp is equivalent to RoundUp but panics on overflow. It should
// only be used in contexts where addr is known not to be near the top of
// the address space (e.g. in tests).
func (addr Addr) MustRoundUp() Addr {
	r, ok := addr.RoundUp()
	if !ok {
		panic(fmt.Sprintf("Addr(%#x).RoundUp() overflows", uintptr(addr)))
	}
	return r
}

// AddLength returns addr+length. It returns false if that sum overflows.
func (addr Addr) AddLength(length uint64) (Addr, bool) {
	if length > math.MaxUint64-uint64(addr) {
		return 0, false
	}
	return addr + Addr(length), true
}

// PageRoundDown returns the start address of the page containing addr.
func PageRoundDown(addr uint64) uint64 {
	return addr &^ (PageSize - 1)
}
