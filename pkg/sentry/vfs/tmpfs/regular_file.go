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

// Package tmpfs implements the in-memory inode backends of spec.md
// §4.4: a regular file whose bytes live in the process-wide pgalloc
// memory file (so it is directly mmap-able with no copy), and a
// directory whose entries are simply its Dentry's children.
package tmpfs

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/safemem"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// RegularFile is a tmpfs regular file: its content is a single
// contiguous allocation in a shared pgalloc.MemoryFile, grown and
// shrunk by PWrite/Truncate, and exposed to the memory manager directly
// through the memmap.Mappable contract — a read or write through an
// mmap and through read(2)/write(2) observe the same bytes because both
// paths resolve to the same underlying storage.
type RegularFile struct {
	vfs.InodeAttrs

	mf *pgalloc.MemoryFile

	mu   sync.Mutex
	size int64
	fr   memmap.FileRange
	has  bool // whether fr has ever been allocated
}

// NewRegularFile constructs an empty regular file.
func NewRegularFile(mf *pgalloc.MemoryFile, ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, nowNsec int64) *RegularFile {
	f := &RegularFile{mf: mf}
	vfs.InitInodeAttrs(&f.InodeAttrs, ino, linux.ModeRegular|mode.Perm(), uid, gid, nowNsec)
	return f
}

// Attrs implements vfs.Inode.
func (f *RegularFile) Attrs() *vfs.InodeAttrs { return &f.InodeAttrs }

// CheckPermission implements vfs.Inode.
func (f *RegularFile) CheckPermission(creds *auth.Credentials, at hostarch.AccessType) error {
	return vfs.CheckPermission(&f.InodeAttrs, creds, at)
}

// Size returns the file's current size in bytes.
func (f *RegularFile) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Truncate grows or shrinks the file to size bytes. Growing extends
// with zeros; shrinking only lowers the size: the backing allocation is
// kept, not freed, and is reused if the file grows again.
func (f *RegularFile) Truncate(size int64) error {
	if size < 0 {
		return kernerr.Libc(unix.EINVAL)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureCapacityLocked(uint64(size)); err != nil {
		return err
	}
	if size > f.size {
		if err := f.zeroRangeLocked(uint64(f.size), uint64(size)); err != nil {
			return err
		}
	}
	f.size = size
	return nil
}

func (f *RegularFile) ensureCapacityLocked(need uint64) error {
	if f.has && need <= f.fr.Length() {
		return nil
	}
	newFR, err := f.mf.Allocate(need, pgalloc.BottomUp, pgalloc.KindTmpfs)
	if err != nil {
		return err
	}
	if f.has && f.size > 0 {
		if err := f.copyRangeLocked(f.fr.Start, newFR.Start, uint64(f.size)); err != nil {
			return err
		}
		f.mf.DecRef(f.fr)
	}
	f.fr = newFR
	f.has = true
	return nil
}

func (f *RegularFile) copyRangeLocked(srcOff, dstOff, n uint64) error {
	src, err := f.mf.MapInternal(memmap.FileRange{Start: srcOff, End: srcOff + n}, hostarch.Read)
	if err != nil {
		return err
	}
	dst, err := f.mf.MapInternal(memmap.FileRange{Start: dstOff, End: dstOff + n}, hostarch.Write)
	if err != nil {
		return err
	}
	safemem.CopySeq(dst, src)
	return nil
}

func (f *RegularFile) zeroRangeLocked(from, to uint64) error {
	if to <= from {
		return nil
	}
	dst, err := f.mf.MapInternal(memmap.FileRange{Start: f.fr.Start + from, End: f.fr.Start + to}, hostarch.Write)
	if err != nil {
		return err
	}
	safemem.ZeroSeq(dst, to-from)
	return nil
}

// PRead implements the regularBackend contract read(2) uses.
func (f *RegularFile) PRead(dst []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset >= f.size {
		return 0, kernerr.EOF
	}
	n := int64(len(dst))
	if offset+n > f.size {
		n = f.size - offset
	}
	src, err := f.mf.MapInternal(memmap.FileRange{Start: f.fr.Start + uint64(offset), End: f.fr.Start + uint64(offset+n)}, hostarch.Read)
	if err != nil {
		return 0, err
	}
	safemem.CopySeq(safemem.BlockSeqOf(safemem.BlockFromSafeSlice(dst[:n])), src)
	return int(n), nil
}

// PWrite implements the regularBackend contract write(2) uses.
func (f *RegularFile) PWrite(src []byte, offset int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := offset + int64(len(src))
	if err := f.ensureCapacityLocked(uint64(end)); err != nil {
		return 0, err
	}
	if offset > f.size {
		if err := f.zeroRangeLocked(uint64(f.size), uint64(offset)); err != nil {
			return 0, err
		}
	}
	dst, err := f.mf.MapInternal(memmap.FileRange{Start: f.fr.Start + uint64(offset), End: f.fr.Start + uint64(end)}, hostarch.Write)
	if err != nil {
		return 0, err
	}
	safemem.CopySeq(dst, safemem.BlockSeqOf(safemem.BlockFromSafeSlice(src)))
	if end > f.size {
		f.size = end
	}
	return len(src), nil
}

// AddMapping implements memmap.Mappable.
func (f *RegularFile) AddMapping(memmap.MappingSpace, hostarch.AddrRange, uint64, bool) error {
	return nil
}

// RemoveMapping implements memmap.Mappable.
func (f *RegularFile) RemoveMapping(memmap.MappingSpace, hostarch.AddrRange, uint64, bool) {
}

// Translate implements memmap.Mappable, translating file-relative
// offsets into the shared memory file's own offsets.
func (f *RegularFile) Translate(required, optional memmap.FileRange, at hostarch.AccessType) ([]memmap.Translation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.has {
		return nil, kernerr.Libc(unix.EFAULT)
	}
	end := optional.End
	if end > uint64(f.size) {
		end = uint64(f.size)
	}
	if required.End > end {
		return nil, kernerr.Libc(unix.EFAULT)
	}
	return []memmap.Translation{{
		Source: memmap.FileRange{Start: f.fr.Start + optional.Start, End: f.fr.Start + end},
		File:   f.mf,
		Perms:  hostarch.AnyAccess,
	}}, nil
}
