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

package auth

import (
	"strings"

	"github.com/syndtr/gocapability/capability"
)

// CapabilitySet is a bitmask subset of {0 .. lastCap}, per spec.md §3.
type CapabilitySet uint64

// LastCap is the highest capability bit this build knows about, taken
// from the real Linux capability table via gocapability rather than a
// hand-maintained constant.
var LastCap = uint(capability.CAP_LAST_CAP)

// AllCapabilities is the bitmask with every bit in [0, LastCap] set.
func AllCapabilities() CapabilitySet {
	return CapabilitySet((uint64(1) << (LastCap + 1)) - 1)
}

// CapabilityFromIndex returns the single-bit set for capability index c.
func CapabilityFromIndex(c uint) CapabilitySet {
	return CapabilitySet(1) << c
}

// CAP_DAC_OVERRIDE and CAP_DAC_READ_SEARCH are the two capabilities the
// VFS permission path short-circuits on directly (spec.md §4.7).
var (
	CAP_DAC_OVERRIDE     = CapabilityFromIndex(uint(capability.CAP_DAC_OVERRIDE))
	CAP_DAC_READ_SEARCH  = CapabilityFromIndex(uint(capability.CAP_DAC_READ_SEARCH))
	CAP_CHOWN            = CapabilityFromIndex(uint(capability.CAP_CHOWN))
	CAP_FOWNER           = CapabilityFromIndex(uint(capability.CAP_FOWNER))
	CAP_SETUID           = CapabilityFromIndex(uint(capability.CAP_SETUID))
	CAP_SETGID           = CapabilityFromIndex(uint(capability.CAP_SETGID))
	CAP_SYS_ADMIN        = CapabilityFromIndex(uint(capability.CAP_SYS_ADMIN))
	CAP_SYS_PTRACE       = CapabilityFromIndex(uint(capability.CAP_SYS_PTRACE))
	CAP_SYS_RESOURCE     = CapabilityFromIndex(uint(capability.CAP_SYS_RESOURCE))
)

// Contains returns true iff cs has c set.
func (cs CapabilitySet) Contains(c CapabilitySet) bool {
	return cs&c == c
}

// Add returns cs with c added.
func (cs CapabilitySet) Add(c CapabilitySet) CapabilitySet {
	return cs | c
}

// Remove returns cs with c cleared.
func (cs CapabilitySet) Remove(c CapabilitySet) CapabilitySet {
	return cs &^ c
}

// String renders cs as a "chown,dac_override" style list, using
// gocapability's name table so every bit through LastCap is named.
func (cs CapabilitySet) String() string {
	if cs == 0 {
		return ""
	}
	var names []string
	for i := uint(0); i <= LastCap; i++ {
		if cs&CapabilityFromIndex(i) != 0 {
			names = append(names, capability.Cap(i).String())
		}
	}
	return strings.Join(names, ",")
}
