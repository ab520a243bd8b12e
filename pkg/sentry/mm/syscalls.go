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
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/segment"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
)

// MMap establishes a new mapping per opts, implementing mmap(2) as
// described in spec.md §4.2.
func (mm *MemoryManager) MMap(opts memmap.MMapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	length, ok := hostarch.Addr(opts.Length).RoundUp()
	if !ok {
		return 0, kernerr.Libc(unix.ENOMEM)
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	var addr hostarch.Addr
	if opts.Fixed {
		addr = opts.Addr.RoundDown()
		ar := hostarch.AddrRange{Start: addr, End: addr + hostarch.Addr(length)}
		if !ar.WellFormed() || ar.End > mm.layout.MaxAddr || ar.Start < mm.layout.MinAddr {
			return 0, kernerr.Libc(unix.ENOMEM)
		}
		if opts.Unmap {
			mm.unmapLocked(ar)
		} else if mm.overlapsLocked(ar) {
			return 0, kernerr.Libc(unix.EEXIST)
		}
	} else {
		dir := BottomUp
		if opts.GrowsDown {
			dir = TopDown
		}
		found, ok := mm.findAvailableLocked(uint64(length), dir)
		if !ok {
			return 0, kernerr.Libc(unix.ENOMEM)
		}
		addr = found
	}

	ar := hostarch.AddrRange{Start: addr, End: addr + hostarch.Addr(length)}
	v := vma{
		mappable:     opts.Mappable,
		off:          opts.Offset,
		realPerms:    opts.Perms,
		maxPerms:     opts.MaxPerms,
		private:      opts.Private,
		growsDown:    opts.GrowsDown,
		mlockMode:    opts.MLockMode,
		id:           opts.MappingIdentity,
		hint:         opts.Hint,
		numaPolicy:   0,
		numaNodemask: 0,
	}
	if !mm.vmas.Add(toRange(ar), v) {
		return 0, kernerr.Libc(unix.ENOMEM)
	}
	mm.usageAS += uint64(length)

	if opts.Mappable != nil {
		if err := opts.Mappable.AddMapping(mm, ar, opts.Offset, !opts.Private && opts.Perms.Write); err != nil {
			mm.vmas.RemoveRange(toRange(ar))
			mm.usageAS -= uint64(length)
			return 0, err
		}
	}

	if opts.Precommit {
		if err := mm.getPMAsLocked(ar, opts.Perms); err != nil {
			return addr, err
		}
	}
	return addr, nil
}

// Munmap removes any mappings in [addr, addr+length), implementing
// munmap(2).
func (mm *MemoryManager) Munmap(addr hostarch.Addr, length uint64) error {
	if length == 0 {
		return kernerr.Libc(unix.EINVAL)
	}
	la, ok := hostarch.Addr(length).RoundUp()
	if !ok {
		return kernerr.Libc(unix.EINVAL)
	}
	ar := hostarch.AddrRange{Start: addr.RoundDown(), End: addr.RoundDown() + hostarch.Addr(la)}
	if !ar.WellFormed() {
		return kernerr.Libc(unix.EINVAL)
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.unmapLocked(ar)
	return nil
}

// unmapLocked removes all vmas and pmas overlapping ar. mm.mu must be
// held.
func (mm *MemoryManager) unmapLocked(ar hostarch.AddrRange) {
	r := toRange(ar)
	mm.vmas.Isolate(r)
	var doomed []segment.Segment[vma]
	mm.vmas.ForEachInRange(r, func(seg segment.Segment[vma]) bool {
		doomed = append(doomed, seg)
		return true
	})
	for _, seg := range doomed {
		segAR := toAddrRange(seg.Range)
		if seg.Value.mappable != nil {
			seg.Value.mappable.RemoveMapping(mm, segAR, seg.Value.off, !seg.Value.private && seg.Value.realPerms.Write)
		}
		mm.usageAS -= seg.Range.Length()
	}
	mm.vmas.RemoveRange(r)
	mm.unmapPMAsLocked(ar)
}

func (mm *MemoryManager) unmapPMAsLocked(ar hostarch.AddrRange) {
	r := toRange(ar)
	mm.pmas.Isolate(r)
	var doomed []segment.Segment[pma]
	mm.pmas.ForEachInRange(r, func(seg segment.Segment[pma]) bool {
		doomed = append(doomed, seg)
		return true
	})
	for _, seg := range doomed {
		if seg.Value.file != nil {
			seg.Value.file.DecRef(memmap.FileRange{Start: seg.Value.off, End: seg.Value.off + seg.Range.Length()})
		}
	}
	mm.pmas.RemoveRange(r)
}

// Invalidate implements memmap.MappingSpace.Invalidate: a Mappable is
// telling us a Translation it previously returned is no longer valid
// over ar.
func (mm *MemoryManager) Invalidate(ar hostarch.AddrRange, opts memmap.InvalidateOpts) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	r := toRange(ar)
	mm.pmas.Isolate(r)
	var doomed []segment.Segment[pma]
	mm.pmas.ForEachInRange(r, func(seg segment.Segment[pma]) bool {
		if v, ok := mm.vmas.Value(seg.Range.Start); ok && v.private && !seg.Value.needCOW && !opts.InvalidatePrivate {
			return true
		}
		doomed = append(doomed, seg)
		return true
	})
	for _, seg := range doomed {
		if seg.Value.file != nil {
			seg.Value.file.DecRef(memmap.FileRange{Start: seg.Value.off, End: seg.Value.off + seg.Range.Length()})
		}
		mm.pmas.Remove(seg.Range)
	}
}

// Mprotect changes the permissions of [addr, addr+length) to newPerms,
// implementing mprotect(2). Every byte of the range must be covered by
// an existing vma, and newPerms must be a subset of each covered vma's
// MaxPerms, or ENOMEM/EACCES is returned respectively.
func (mm *MemoryManager) Mprotect(addr hostarch.Addr, length uint64, newPerms hostarch.AccessType) error {
	la, ok := hostarch.Addr(length).RoundUp()
	if !ok {
		return kernerr.Libc(unix.EINVAL)
	}
	ar := hostarch.AddrRange{Start: addr.RoundDown(), End: addr.RoundDown() + hostarch.Addr(la)}
	if !ar.WellFormed() {
		return kernerr.Libc(unix.EINVAL)
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	r := toRange(ar)
	mm.vmas.Isolate(r)

	var segs []segment.Segment[vma]
	covered := uint64(0)
	mm.vmas.ForEachInRange(r, func(seg segment.Segment[vma]) bool {
		segs = append(segs, seg)
		covered += seg.Range.Length()
		return true
	})
	if covered != r.Length() {
		return kernerr.Libc(unix.ENOMEM)
	}
	for _, seg := range segs {
		if !seg.Value.maxPerms.SupersetOf(newPerms) {
			return kernerr.Libc(unix.EACCES)
		}
	}
	for _, seg := range segs {
		mm.vmas.Remove(seg.Range)
		seg.Value.realPerms = newPerms
		mm.vmas.Add(seg.Range, seg.Value)
	}
	// Dropping cached pmas over the protected range forces re-translation
	// (and re-checking of needCOW) on next access.
	mm.unmapPMAsLocked(toAddrRange(r))
	return nil
}

// MRemapOpts configures MRemap.
type MRemapOpts struct {
	// Move, if true, permits the kernel to relocate the mapping even if
	// MayMove would not otherwise be required (MREMAP_MAYMOVE).
	Move bool
	// FixedAddr, if non-zero together with Move, requires the new mapping
	// at exactly this address (MREMAP_FIXED).
	FixedAddr hostarch.Addr
	Fixed     bool
}

// MRemap changes the size of an existing mapping, implementing
// mremap(2) by shrinking in place, or by growing in place when the old
// range lies in one anonymous vma that ends where the old range ends
// and the pages after it are free. It never relocates a mapping:
// opts.Move and opts.FixedAddr are not consulted, and when growing in
// place is not possible, or opts.Fixed is set, it returns ENOMEM.
func (mm *MemoryManager) MRemap(oldAddr hostarch.Addr, oldSize, newSize uint64, opts MRemapOpts) (hostarch.Addr, error) {
	if newSize == 0 {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	oldLen, ok := hostarch.Addr(oldSize).RoundUp()
	if !ok {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	newLen, ok := hostarch.Addr(newSize).RoundUp()
	if !ok {
		return 0, kernerr.Libc(unix.ENOMEM)
	}
	oldAR := hostarch.AddrRange{Start: oldAddr.RoundDown(), End: oldAddr.RoundDown() + hostarch.Addr(oldLen)}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	if !mm.vmas.OverlapsAny(toRange(oldAR)) {
		return 0, kernerr.Libc(unix.EFAULT)
	}

	if newLen <= oldLen {
		shrink := hostarch.AddrRange{Start: oldAR.Start + hostarch.Addr(newLen), End: oldAR.End}
		if shrink.Length() > 0 {
			mm.unmapLocked(shrink)
		}
		return oldAR.Start, nil
	}

	grown := hostarch.AddrRange{Start: oldAR.Start, End: oldAR.Start + hostarch.Addr(newLen)}
	extension := hostarch.AddrRange{Start: oldAR.End, End: grown.End}
	if opts.Fixed || mm.overlapsLocked(extension) {
		// Growing in place isn't possible and moving mappable-backed or
		// multi-vma ranges is out of scope; the caller must mmap a fresh
		// range and copy the data itself.
		return 0, kernerr.Libc(unix.ENOMEM)
	}
	seg, ok := mm.vmas.FindSegment(uint64(oldAR.Start))
	if !ok || seg.Value.mappable != nil || seg.Range.End != uint64(oldAR.End) {
		return 0, kernerr.Libc(unix.ENOMEM)
	}
	mm.vmas.Remove(seg.Range)
	mm.vmas.Add(toRange(grown), seg.Value)
	mm.usageAS += extension.Length()
	return grown.Start, nil
}

// Brk sets the program break to addr, implementing brk(2). A zero addr,
// or one below the start of the break region, leaves the break
// unchanged. It returns the resulting break, together with ENOMEM when a
// requested growth is rejected; before SetBrk has set up a break region
// it returns 0 and EINVAL.
func (mm *MemoryManager) Brk(addr hostarch.Addr) (hostarch.Addr, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.brk.Start == 0 && mm.brk.End == 0 {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	if addr == 0 || addr < mm.brk.Start {
		return mm.brk.End, nil
	}
	newEnd, ok := addr.RoundUp()
	if !ok {
		return mm.brk.End, kernerr.Libc(unix.ENOMEM)
	}
	old := hostarch.AddrRange{Start: mm.brk.Start, End: mm.brk.End}
	if newEnd == old.End {
		return mm.brk.End, nil
	}
	if newEnd < old.End {
		mm.unmapLocked(hostarch.AddrRange{Start: newEnd, End: old.End})
		mm.brk.End = newEnd
		return mm.brk.End, nil
	}
	grow := hostarch.AddrRange{Start: old.End, End: newEnd}
	if mm.overlapsLocked(grow) {
		return mm.brk.End, kernerr.Libc(unix.ENOMEM)
	}
	v := vma{
		realPerms: hostarch.ReadWrite,
		maxPerms:  hostarch.ReadWrite,
		private:   true,
	}
	if !mm.vmas.Add(toRange(grow), v) {
		return mm.brk.End, kernerr.Libc(unix.ENOMEM)
	}
	mm.usageAS += grow.Length()
	mm.brk.End = newEnd
	return mm.brk.End, nil
}

// SetBrk initializes the brk range at the end of the loaded executable,
// per spec.md §4.11's "the loader sets up the initial brk".
func (mm *MemoryManager) SetBrk(ar hostarch.AddrRange) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.brk = ar
}
