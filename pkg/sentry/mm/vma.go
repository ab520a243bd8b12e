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

package mm

import (
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/segment"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
)

// vma is the value type of MemoryManager.vmas, one non-overlapping
// mapping of the guest's virtual address space (spec.md §3 "VMA" /
// §4.2).
type vma struct {
	mappable  memmap.Mappable
	off       uint64
	realPerms hostarch.AccessType
	maxPerms  hostarch.AccessType
	private   bool
	growsDown bool
	mlockMode memmap.MLockMode
	id        memmap.MappingIdentity
	hint      string

	// numaPolicy and numaNodemask hold the most recent mbind(2)-equivalent
	// call over this vma's range; spec.md §4.2 only requires bookkeeping,
	// not actual NUMA placement (no migrate-on-fault behavior).
	numaPolicy   int32
	numaNodemask uint64
}

// vmaPolicy implements segment.Policy[vma]: two adjacent vmas merge iff
// they are indistinguishable other than position, which for a Mappable
// vma additionally requires the Mappable offsets to be contiguous —
// the "VMA merge closure" testable property of spec.md §8.
type vmaPolicy struct{}

func (vmaPolicy) Merge(r1 segment.Range, v1 vma, r2 segment.Range, v2 vma) (vma, bool) {
	if v1.mappable != v2.mappable ||
		v1.realPerms != v2.realPerms ||
		v1.maxPerms != v2.maxPerms ||
		v1.private != v2.private ||
		v1.growsDown != v2.growsDown ||
		v1.mlockMode != v2.mlockMode ||
		v1.id != v2.id ||
		v1.hint != v2.hint ||
		v1.numaPolicy != v2.numaPolicy ||
		v1.numaNodemask != v2.numaNodemask {
		return vma{}, false
	}
	if v1.mappable != nil && v1.off+r1.Length() != v2.off {
		return vma{}, false
	}
	return v1, true
}

func (vmaPolicy) Split(r segment.Range, v vma, at uint64) (vma, vma) {
	left, right := v, v
	if v.mappable != nil {
		right.off = v.off + (at - r.Start)
	}
	return left, right
}

// newVMASet returns an empty segment.Set[vma] governed by vmaPolicy.
func newVMASet() *segment.Set[vma] {
	return segment.NewSet[vma](vmaPolicy{})
}
