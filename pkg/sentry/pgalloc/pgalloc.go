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

// Package pgalloc implements the memory file of spec.md §4.3: pageable
// storage backed by a single host memfd, shared across every task's
// MemoryManager, with a bump/gap allocator and a chunk-granularity
// mmap cache.
package pgalloc

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/safemem"
	"github.com/kestrelsentry/sentry/pkg/seclog"
	"github.com/kestrelsentry/sentry/pkg/segment"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
)

// Direction selects which end of the free space the allocator searches
// from, per spec.md §4.3.
type Direction int

const (
	// BottomUp picks the lowest-addressed sufficiently large gap.
	BottomUp Direction = iota
	// TopDown picks the highest-addressed sufficiently large gap.
	TopDown
)

// refPolicy merges adjacent allocated ranges that carry the same
// refcount and kind — spec.md's "no two allocated ranges overlap"
// invariant is enforced by segment.Set itself; merging just keeps the
// set small.
type refEntry struct {
	refs int32
	kind Kind
}

type refPolicy struct{}

func (refPolicy) Merge(_ segment.Range, v1 refEntry, _ segment.Range, v2 refEntry) (refEntry, bool) {
	if v1 == v2 {
		return v1, true
	}
	return refEntry{}, false
}

func (refPolicy) Split(_ segment.Range, v refEntry, _ uint64) (refEntry, refEntry) {
	return v, v
}

// chunkEntry caches one chunk-granularity mmap of the memfd into the
// sentry's own address space.
type chunkEntry struct {
	addr     uintptr
	writable bool
}

// MemoryFile is the host-memfd-backed pageable storage of spec.md §4.3.
// It implements memmap.File.
type MemoryFile struct {
	fd   int
	name string

	chunkSize uint64

	mu        sync.Mutex
	size      uint64
	allocated *segment.Set[refEntry]
	usage     *usage

	chunkMu sync.RWMutex
	chunks  map[uint64]*chunkEntry
	sf      singleflight.Group

	// reclaimLimiter paces background FALLOC_FL_PUNCH_HOLE calls so a
	// burst of DecRefs doesn't hammer the host with fallocate syscalls.
	reclaimLimiter *rate.Limiter
}

// NewMemoryFile creates a new anonymous memfd-backed MemoryFile. name is
// cosmetic (visible in /proc/self/maps on the host).
func NewMemoryFile(name string, chunkSize uint64) (*MemoryFile, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create(%q): %w", name, err)
	}
	return &MemoryFile{
		fd:             fd,
		name:           name,
		chunkSize:      chunkSize,
		allocated:      segment.NewSet[refEntry](refPolicy{}),
		usage:          newUsage(),
		chunks:         make(map[uint64]*chunkEntry),
		reclaimLimiter: rate.NewLimiter(rate.Limit(64), 64),
	}, nil
}

// FD returns the underlying memfd, e.g. for inspection in tests.
func (f *MemoryFile) FD() int {
	return f.fd
}

func roundUpChunk(length, chunk uint64) uint64 {
	if length == 0 {
		return 0
	}
	return (length + chunk - 1) &^ (chunk - 1)
}

// Allocate returns a FileRange of length round_up(length) bytes of
// unused storage, per spec.md §4.3. dir selects the search direction;
// the memfd is grown with ftruncate as needed.
func (f *MemoryFile) Allocate(length uint64, dir Direction, kind Kind) (memmap.FileRange, error) {
	if length == 0 {
		return memmap.FileRange{}, fmt.Errorf("pgalloc: zero-length allocation")
	}
	aligned := hostarch.Addr(length).MustRoundUp()
	need := uint64(aligned)

	f.mu.Lock()
	defer f.mu.Unlock()

	var start uint64
	var ok bool
	switch dir {
	case BottomUp:
		start, ok = f.allocated.LowerBoundGap(0, f.size, need)
	case TopDown:
		start, ok = f.allocated.UpperBoundGap(f.size, 0, need)
	}
	if !ok {
		// No existing gap large enough; grow the file and allocate at
		// its old end (bottom-up) or rescan after growth (top-down, for
		// simplicity we also place at the old end — a top-down caller
		// that races the grow sees the newly available space below its
		// previous floor on the next call).
		oldSize := f.size
		newSize := roundUpChunk(oldSize+need, f.chunkSize)
		if err := unix.Ftruncate(f.fd, int64(newSize)); err != nil {
			return memmap.FileRange{}, fmt.Errorf("pgalloc: ftruncate to %d: %w", newSize, err)
		}
		f.size = newSize
		f.usage.setTotalSize(newSize)
		start = oldSize
	}

	fr := memmap.FileRange{Start: start, End: start + need}
	if !f.allocated.Add(segment.Range{Start: fr.Start, End: fr.End}, refEntry{refs: 1, kind: kind}) {
		return memmap.FileRange{}, fmt.Errorf("pgalloc: internal error: allocated range %v overlaps existing entry", fr)
	}
	f.usage.add(kind, need)
	return fr, nil
}

// IncRef implements memmap.File.IncRef.
func (f *MemoryFile) IncRef(fr memmap.FileRange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := segment.Range{Start: fr.Start, End: fr.End}
	f.allocated.Isolate(r)
	var updated []segment.Segment[refEntry]
	f.allocated.ForEachInRange(r, func(seg segment.Segment[refEntry]) bool {
		updated = append(updated, seg)
		return true
	})
	for _, seg := range updated {
		f.allocated.Remove(seg.Range)
		seg.Value.refs++
		f.allocated.Add(seg.Range, seg.Value)
	}
}

// DecRef implements memmap.File.DecRef and spec.md §4.3's decref:
// decrement the refcount over fr; any sub-range that reaches zero is
// marked free and, subject to the reclaim rate limiter, punched out of
// the memfd with FALLOC_FL_PUNCH_HOLE.
func (f *MemoryFile) DecRef(fr memmap.FileRange) {
	f.mu.Lock()
	r := segment.Range{Start: fr.Start, End: fr.End}
	f.allocated.Isolate(r)
	var toFree []segment.Segment[refEntry]
	var toUpdate []segment.Segment[refEntry]
	f.allocated.ForEachInRange(r, func(seg segment.Segment[refEntry]) bool {
		if seg.Value.refs <= 1 {
			toFree = append(toFree, seg)
		} else {
			toUpdate = append(toUpdate, seg)
		}
		return true
	})
	for _, seg := range toUpdate {
		f.allocated.Remove(seg.Range)
		seg.Value.refs--
		f.allocated.Add(seg.Range, seg.Value)
	}
	for _, seg := range toFree {
		f.allocated.Remove(seg.Range)
		f.usage.sub(seg.Value.kind, seg.Range.Length())
	}
	f.mu.Unlock()

	for _, seg := range toFree {
		f.reclaim(seg.Range)
	}
}

func (f *MemoryFile) reclaim(r segment.Range) {
	if !f.reclaimLimiter.Allow() {
		// Best-effort: skip the punch-hole under load rather than block
		// the syscall-serialized hot path on host I/O.
		return
	}
	if err := unix.Fallocate(f.fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, int64(r.Start), int64(r.Length())); err != nil {
		seclog.Warningf("pgalloc: punch-hole [%d, %d) failed: %v", r.Start, r.End, err)
	}
}

// TotalUsage returns the number of bytes currently accounted as used
// across all Kinds, for sysinfo(2).
func (f *MemoryFile) TotalUsage() uint64 {
	return f.usage.Total()
}

// TotalSize returns the current size of the backing memfd.
func (f *MemoryFile) TotalSize() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// MapInternal returns a safemem.BlockSeq of host pointers for fr, mapped
// read-write if at.Write else read-only, per spec.md §4.3. Mappings are
// cached by chunk start; a read-only cached chunk asked for writable is
// replaced atomically with a MAP_FIXED remap.
func (f *MemoryFile) MapInternal(fr memmap.FileRange, at hostarch.AccessType) (safemem.BlockSeq, error) {
	chunkStart := fr.Start &^ (f.chunkSize - 1)
	chunkEnd := roundUpChunk(fr.End, f.chunkSize)

	var blocks []safemem.Block
	for cs := chunkStart; cs < chunkEnd; cs += f.chunkSize {
		ce, err := f.chunkFor(cs, at.Write)
		if err != nil {
			return safemem.BlockSeq{}, err
		}
		lo := fr.Start
		if lo < cs {
			lo = cs
		}
		hi := fr.End
		if hi > cs+f.chunkSize {
			hi = cs + f.chunkSize
		}
		off := lo - cs
		length := hi - lo
		// #nosec G103 -- mapping a region of our own memfd that we hold
		// a reference on for the lifetime of the returned Block.
		b := unsafeBlockAt(ce.addr+uintptr(off), int(length))
		blocks = append(blocks, b)
	}
	if len(blocks) == 1 {
		return safemem.BlockSeqOf(blocks[0]), nil
	}
	return safemem.BlockSeqFromSlice(blocks), nil
}

// chunkFor returns the cached mapping for the chunk starting at cs,
// creating (or upgrading to writable) it as needed. The singleflight
// group collapses concurrent misses for the same chunk into one mmap
// call, implementing spec.md §5's "map_internal may cache read-locked
// access via a double-checked pattern".
func (f *MemoryFile) chunkFor(cs uint64, writable bool) (*chunkEntry, error) {
	f.chunkMu.RLock()
	ce, ok := f.chunks[cs]
	f.chunkMu.RUnlock()
	if ok && (!writable || ce.writable) {
		return ce, nil
	}

	key := fmt.Sprintf("%d:%v", cs, writable)
	v, err, _ := f.sf.Do(key, func() (any, error) {
		f.chunkMu.Lock()
		defer f.chunkMu.Unlock()
		if existing, ok := f.chunks[cs]; ok && (!writable || existing.writable) {
			return existing, nil
		}
		prot := unix.PROT_READ
		if writable {
			prot |= unix.PROT_WRITE
		}
		if existing, ok := f.chunks[cs]; ok {
			// Upgrade read-only -> writable in place.
			addr, err := mmapFixed(existing.addr, int(f.chunkSize), prot, f.fd, int64(cs))
			if err != nil {
				return nil, fmt.Errorf("pgalloc: remap chunk %d writable: %w", cs, err)
			}
			entry := &chunkEntry{addr: addr, writable: true}
			f.chunks[cs] = entry
			return entry, nil
		}
		data, err := unix.Mmap(f.fd, int64(cs), int(f.chunkSize), prot, unix.MAP_SHARED)
		if err != nil {
			return nil, fmt.Errorf("pgalloc: mmap chunk %d: %w", cs, err)
		}
		entry := &chunkEntry{addr: sliceAddr(data), writable: writable}
		f.chunks[cs] = entry
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chunkEntry), nil
}

// Close releases the memfd. Cached chunk mappings are intentionally
// leaked on Close since MemoryFile is a process-wide singleton that
// only goes away at process exit.
func (f *MemoryFile) Close() error {
	return unix.Close(f.fd)
}
