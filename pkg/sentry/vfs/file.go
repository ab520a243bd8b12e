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

package vfs

import (
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
)

// FileDescription is an open file: the state that exists per-open
// (offset, flags, readdir cursor) layered over the shared Dentry/Inode.
type FileDescription struct {
	mu sync.Mutex

	dentry *Dentry
	flags  uint32 // O_* flags, including the access mode bits
	offset int64

	// dirCursor is the name of the last entry returned by Readdir,
	// implementing spec.md §4.4's serialized last-emitted-name cursor:
	// a concurrent Unlink of an already-emitted entry never perturbs
	// this FileDescription's enumeration.
	dirCursor string

	// lock is this open file description's own flock(2) handle, lazily
	// created against the inode's shared lock file path.
	lock *flock.Flock
}

// NewFileDescription opens dentry with the given flags.
func NewFileDescription(dentry *Dentry, flags uint32) *FileDescription {
	return &FileDescription{dentry: dentry, flags: flags}
}

// Dentry returns the dentry this file was opened from.
func (fd *FileDescription) Dentry() *Dentry {
	return fd.dentry
}

// Flags returns the O_* flags the file was opened with.
func (fd *FileDescription) Flags() uint32 {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.flags
}

// SetFlags updates the subset of flags settable by fcntl(F_SETFL)
// (O_APPEND, O_NONBLOCK; the access mode bits are immutable post-open).
func (fd *FileDescription) SetFlags(flags uint32) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	const mutable = linux.O_APPEND | linux.O_NONBLOCK
	fd.flags = (fd.flags &^ mutable) | (flags & mutable)
}

func (fd *FileDescription) readable() bool {
	am := fd.flags & linux.O_ACCMODE
	return am == linux.O_RDONLY || am == linux.O_RDWR
}

func (fd *FileDescription) writable() bool {
	am := fd.flags & linux.O_ACCMODE
	return am == linux.O_WRONLY || am == linux.O_RDWR
}

// regularBackend is satisfied by inode backends exposing byte-range
// I/O, i.e. tmpfs regular files.
type regularBackend interface {
	PRead(dst []byte, offset int64) (int, error)
	PWrite(src []byte, offset int64) (int, error)
	Size() int64
	Truncate(size int64) error
}

// directoryBackend is satisfied by inode backends exposing readdir,
// i.e. tmpfs directories.
type directoryBackend interface {
	ListAfter(after string, count int) ([]linux.Dirent64, string)
}

// Read reads up to len(dst) bytes at the file's current offset.
func (fd *FileDescription) Read(dst []byte) (int, error) {
	if !fd.readable() {
		return 0, errBadF
	}
	rb, ok := fd.dentry.Inode().(regularBackend)
	if !ok {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	fd.mu.Lock()
	off := fd.offset
	fd.mu.Unlock()
	n, err := rb.PRead(dst, off)
	if n > 0 {
		fd.mu.Lock()
		fd.offset += int64(n)
		fd.mu.Unlock()
	}
	return n, err
}

// Write writes len(src) bytes at the file's current offset (or at EOF,
// if O_APPEND is set).
func (fd *FileDescription) Write(src []byte) (int, error) {
	if !fd.writable() {
		return 0, errBadF
	}
	rb, ok := fd.dentry.Inode().(regularBackend)
	if !ok {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	fd.mu.Lock()
	off := fd.offset
	if fd.flags&linux.O_APPEND != 0 {
		off = rb.Size()
	}
	fd.mu.Unlock()
	n, err := rb.PWrite(src, off)
	if n > 0 {
		fd.mu.Lock()
		fd.offset = off + int64(n)
		fd.mu.Unlock()
	}
	return n, err
}

// Seek repositions the file's offset, per lseek(2).
func (fd *FileDescription) Seek(offset int64, whence int32) (int64, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	switch whence {
	case linux.SEEK_SET:
		// offset taken as-is
	case linux.SEEK_CUR:
		offset += fd.offset
	case linux.SEEK_END:
		rb, ok := fd.dentry.Inode().(regularBackend)
		if !ok {
			return 0, kernerr.Libc(unix.EINVAL)
		}
		offset += rb.Size()
	default:
		return 0, errInvalid
	}
	if offset < 0 {
		return 0, errInvalid
	}
	fd.offset = offset
	return offset, nil
}

// Readdir returns up to count directory entries starting after the
// file's cursor, advancing it past the last entry returned.
func (fd *FileDescription) Readdir(count int) ([]linux.Dirent64, error) {
	dir, ok := fd.dentry.Inode().(directoryBackend)
	if !ok {
		return nil, errNotDir
	}
	fd.mu.Lock()
	cursor := fd.dirCursor
	fd.mu.Unlock()

	entries, next := dir.ListAfter(cursor, count)

	fd.mu.Lock()
	fd.dirCursor = next
	fd.mu.Unlock()
	return entries, nil
}
