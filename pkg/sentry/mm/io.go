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
	"github.com/kestrelsentry/sentry/pkg/safemem"
	"github.com/kestrelsentry/sentry/pkg/segment"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
)

// mapInternal maps fr of f for access at, type-asserting to the concrete
// *pgalloc.MemoryFile. Every memmap.File in this implementation is
// backed by the process-wide memory file (spec.md §4.3), so this holds
// in practice; a foreign memmap.File implementation would need its own
// host mapping strategy, which is out of scope.
func mapInternal(f memmap.File, fr memmap.FileRange, at hostarch.AccessType) (safemem.BlockSeq, error) {
	mf, ok := f.(*pgalloc.MemoryFile)
	if !ok {
		return safemem.BlockSeq{}, kernerr.Libc(unix.EIO)
	}
	return mf.MapInternal(fr, at)
}

// getPMAsLocked ensures that every byte of ar is backed by a pma,
// translating through each covering vma's Mappable as needed and
// materializing a private copy for copy-on-write writes. mm.mu must be
// held. Returns EFAULT if ar is not entirely covered by vmas.
func (mm *MemoryManager) getPMAsLocked(ar hostarch.AddrRange, at hostarch.AccessType) error {
	r := toRange(ar)
	mm.vmas.Isolate(r)

	var vsegs []segment.Segment[vma]
	covered := uint64(0)
	mm.vmas.ForEachInRange(r, func(seg segment.Segment[vma]) bool {
		vsegs = append(vsegs, seg)
		covered += seg.Range.Length()
		return true
	})
	if covered != r.Length() {
		return kernerr.Libc(unix.EFAULT)
	}
	for _, vseg := range vsegs {
		if at.Read && !vseg.Value.realPerms.Read {
			return kernerr.SegFault(uintptr(vseg.Range.Start))
		}
		if at.Write && !vseg.Value.realPerms.Write {
			return kernerr.SegFault(uintptr(vseg.Range.Start))
		}
	}

	mm.pmas.Isolate(r)
	for _, vseg := range vsegs {
		gapStart := vseg.Range.Start
		var existing []segment.Segment[pma]
		mm.pmas.ForEachInRange(vseg.Range, func(seg segment.Segment[pma]) bool {
			existing = append(existing, seg)
			return true
		})
		for _, pseg := range existing {
			if at.Write && pseg.Value.needCOW {
				// Still shared with the Mappable: drop it so the gap
				// fill below replaces it with a private copy.
				pseg.Value.file.DecRef(memmap.FileRange{Start: pseg.Value.off, End: pseg.Value.off + pseg.Range.Length()})
				mm.pmas.Remove(pseg.Range)
				continue
			}
			if pseg.Range.Start > gapStart {
				if err := mm.fillPMAGapLocked(vseg, segment.Range{Start: gapStart, End: pseg.Range.Start}, at); err != nil {
					return err
				}
			}
			gapStart = pseg.Range.End
		}
		if gapStart < vseg.Range.End {
			if err := mm.fillPMAGapLocked(vseg, segment.Range{Start: gapStart, End: vseg.Range.End}, at); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillPMAGapLocked backs gap (a sub-range of vseg not yet covered by any
// pma) with concrete storage.
func (mm *MemoryManager) fillPMAGapLocked(vseg segment.Segment[vma], gap segment.Range, at hostarch.AccessType) error {
	v := vseg.Value
	if v.mappable == nil {
		fr, err := mm.mf.Allocate(gap.Length(), pgalloc.BottomUp, pgalloc.KindAnonymous)
		if err != nil {
			return err
		}
		mm.pmas.Add(gap, pma{file: mm.mf, off: fr.Start, perms: v.realPerms.Effective(), translated: true})
		return nil
	}

	offset := v.off + (gap.Start - vseg.Range.Start)
	required := memmap.FileRange{Start: offset, End: offset + gap.Length()}
	translations, err := v.mappable.Translate(required, required, at)
	if err != nil {
		return err
	}
	cursor := gap.Start
	for _, tr := range translations {
		n := tr.Source.Length()
		segR := segment.Range{Start: cursor, End: cursor + n}
		if v.private && at.Write {
			newFR, err := mm.mf.Allocate(n, pgalloc.BottomUp, pgalloc.KindAnonymous)
			if err != nil {
				return err
			}
			if err := mm.copyFileRange(tr.File, tr.Source, newFR); err != nil {
				return err
			}
			mm.pmas.Add(segR, pma{file: mm.mf, off: newFR.Start, perms: hostarch.ReadWrite, translated: true})
		} else {
			tr.File.IncRef(tr.Source)
			needCOW := v.private
			mm.pmas.Add(segR, pma{file: tr.File, off: tr.Source.Start, perms: tr.Perms, needCOW: needCOW, translated: true})
		}
		cursor += n
	}
	return nil
}

// copyFileRange copies the contents of srcFr in srcFile into dstFr in
// mm.mf, materializing a private copy-on-write page.
func (mm *MemoryManager) copyFileRange(srcFile memmap.File, srcFr memmap.FileRange, dstFr memmap.FileRange) error {
	srcBlocks, err := mapInternal(srcFile, srcFr, hostarch.Read)
	if err != nil {
		return err
	}
	dstBlocks, err := mm.mf.MapInternal(dstFr, hostarch.Write)
	if err != nil {
		return err
	}
	safemem.CopySeq(dstBlocks, srcBlocks)
	return nil
}

// CopyIn copies len(dst) bytes from guest memory starting at addr into
// dst, implementing the copy_in half of spec.md §4.2's I/O contract.
func (mm *MemoryManager) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	return mm.ioAt(addr, dst, hostarch.Read, false)
}

// CopyOut copies src into guest memory starting at addr, implementing
// the copy_out half of spec.md §4.2's I/O contract.
func (mm *MemoryManager) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	return mm.ioAt(addr, src, hostarch.Write, true)
}

func (mm *MemoryManager) ioAt(addr hostarch.Addr, buf []byte, at hostarch.AccessType, write bool) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	end, ok := (addr + hostarch.Addr(len(buf))).RoundUp()
	if !ok {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	ar := hostarch.AddrRange{Start: addr.RoundDown(), End: end}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	if err := mm.getPMAsLocked(ar, at); err != nil {
		return 0, err
	}

	copied := 0
	cur := addr
	remaining := buf
	for len(remaining) > 0 {
		seg, ok := mm.pmas.FindSegment(uint64(cur))
		if !ok {
			return copied, kernerr.SegFault(uintptr(cur))
		}
		pm := seg.Value
		segEnd := hostarch.Addr(seg.Range.End)
		n := segEnd - cur
		if hostarch.Addr(len(remaining)) < n {
			n = hostarch.Addr(len(remaining))
		}
		off := pm.off + (uint64(cur) - seg.Range.Start)
		blocks, err := mapInternal(pm.file, memmap.FileRange{Start: off, End: off + uint64(n)}, at)
		if err != nil {
			return copied, err
		}
		chunk := remaining[:n]
		if write {
			safemem.CopySeq(blocks, safemem.BlockSeqOf(safemem.BlockFromSafeSlice(chunk)))
		} else {
			safemem.CopySeq(safemem.BlockSeqOf(safemem.BlockFromSafeSlice(chunk)), blocks)
		}
		remaining = remaining[n:]
		cur += n
		copied += int(n)
	}
	return copied, nil
}

// ZeroOut writes n zero bytes to guest memory starting at addr.
func (mm *MemoryManager) ZeroOut(addr hostarch.Addr, n uint64) (uint64, error) {
	zeros := make([]byte, n)
	written, err := mm.CopyOut(addr, zeros)
	return uint64(written), err
}
