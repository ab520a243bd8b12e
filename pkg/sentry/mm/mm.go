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

// Package mm implements the per-task memory manager of spec.md §4.2: a
// pair of segment sets (vmas describing the guest's address space, pmas
// describing concrete backing storage for parts of it) plus the
// mmap/munmap/mprotect/mremap/brk operations and the copy_in/copy_out
// paths used by the syscall layer to move bytes to and from guest
// memory.
//
// Lock order (spec.md §5): MemoryManager.mu is acquired before any
// memmap.File or memmap.Mappable method is called while holding it, and
// is never acquired from within one of those calls. pmas are translated
// while mu is held; the resulting safemem.Block(s) may be used after mu
// is released since the underlying pgalloc.MemoryFile reference keeps
// the pages alive.
package mm

import (
	"sync"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/segment"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
)

// MemoryManager is one guest task's virtual address space, per spec.md
// §3 "Task" field "mm *MemoryManager".
type MemoryManager struct {
	mf     *pgalloc.MemoryFile
	layout MmapLayout

	mu sync.Mutex

	vmas *segment.Set[vma]
	pmas *segment.Set[pma]

	brk hostarch.AddrRange

	// usageAS is the sum of vma range lengths, for /proc/[pid]/statm's
	// VmSize column.
	usageAS uint64
}

// NewMemoryManager constructs an empty MemoryManager backed by mf, with
// the given address space layout.
func NewMemoryManager(mf *pgalloc.MemoryFile, layout MmapLayout) *MemoryManager {
	return &MemoryManager{
		mf:     mf,
		layout: layout,
		vmas:   newVMASet(),
		pmas:   newPMASet(),
	}
}

// Layout returns the MemoryManager's address space layout.
func (mm *MemoryManager) Layout() MmapLayout {
	return mm.layout
}

// UsageAS returns the total size, in bytes, of all current vmas.
func (mm *MemoryManager) UsageAS() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.usageAS
}

func toRange(ar hostarch.AddrRange) segment.Range {
	return segment.Range{Start: uint64(ar.Start), End: uint64(ar.End)}
}

func toAddrRange(r segment.Range) hostarch.AddrRange {
	return hostarch.AddrRange{Start: hostarch.Addr(r.Start), End: hostarch.Addr(r.End)}
}

// findAvailableLocked searches for length free bytes in the address
// space, honoring dir, per spec.md §4.2's bottom-up/top-down mmap
// layout search. mm.mu must be held.
func (mm *MemoryManager) findAvailableLocked(length uint64, dir Direction) (hostarch.Addr, bool) {
	switch dir {
	case BottomUp:
		start, ok := mm.vmas.LowerBoundGap(uint64(mm.layout.BottomUpBase), uint64(mm.layout.MaxAddr), length)
		return hostarch.Addr(start), ok
	default:
		start, ok := mm.vmas.UpperBoundGap(uint64(mm.layout.TopDownBase), uint64(mm.layout.MinAddr), length)
		return hostarch.Addr(start), ok
	}
}

// overlapsLocked reports whether any vma intersects ar.
func (mm *MemoryManager) overlapsLocked(ar hostarch.AddrRange) bool {
	return mm.vmas.OverlapsAny(toRange(ar))
}

// Direction selects which end of the address space MMap searches from
// for a non-fixed mapping.
type Direction int

const (
	// BottomUp searches upward from the layout's bottom-up base.
	BottomUp Direction = iota
	// TopDown searches downward from the layout's top-down base.
	TopDown
)
