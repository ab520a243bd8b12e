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

package hostarch

// AccessType describes memory access permissions as used by VMAs, PMAs,
// and VFS permission checks alike.
type AccessType struct {
	Read    bool
	Write   bool
	Execute bool
}

// NoAccess, Read, Write, ReadWrite, Execute, AnyAccess are the common
// permission sets used when constructing vmas and checking translations.
var (
	NoAccess  = AccessType{}
	Read      = AccessType{Read: true}
	Write     = AccessType{Write: true}
	ReadWrite = AccessType{Read: true, Write: true}
	Execute   = AccessType{Execute: true}
	AnyAccess = AccessType{Read: true, Write: true, Execute: true}
)

// Union returns the union of at and other.
func (at AccessType) Union(other AccessType) AccessType {
	return AccessType{
		Read:    at.Read || other.Read,
		Write:   at.Write || other.Write,
		Execute: at.Execute || other.Execute,
	}
}

// Intersect returns the intersection of at and other.
func (at AccessType) Intersect(other AccessType) AccessType {
	return AccessType{
		Read:    at.Read && other.Read,
		Write:   at.Write && other.Write,
		Execute: at.Execute && other.Execute,
	}
}

// SupersetOf returns true iff at is a superset of other; i.e. every
// permission bit set in other is also set in at.
func (at AccessType) SupersetOf(other AccessType) bool {
	if !at.Read && other.Read {
		return false
	}
	if !at.Write && other.Write {
		return false
	}
	if !at.Execute && other.Execute {
		return false
	}
	return true
}

// Effective returns the access type with implied bits folded in: write
// access implies the ability to read back what was written.
func (at AccessType) Effective() AccessType {
	if at.Write {
		at.Read = true
	}
	return at
}

// Any returns true iff at grants any access at all.
func (at AccessType) Any() bool {
	return at.Read || at.Write || at.Execute
}

// String implements fmt.Stringer, returning an "rwx"-style rendering.
func (at AccessType) String() string {
	bits := [3]byte{'-', '-', '-'}
	if at.Read {
		bits[0] = 'r'
	}
	if at.Write {
		bits[1] = 'w'
	}
	if at.Execute {
		bits[2] = 'x'
	}
	return string(bits[:])
}
