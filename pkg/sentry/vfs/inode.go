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

// Package vfs implements the virtual filesystem layer of spec.md §4.4:
// a dentry tree with strong-down/weak-up edges, a small set of inode
// backends (null device, tmpfs regular file, tmpfs directory), mounts,
// a per-task FD table, path resolution with a symlink traversal budget,
// and readdir with a serialized cursor.
package vfs

import (
	"sync"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
)

// Inode is the polymorphic capability of a filesystem object: its
// backend (null device, tmpfs file, tmpfs directory, ...) decides what
// read/write/readdir/truncate mean, while the common attribute state
// (mode, ownership, link count) is shared via InodeAttrs.
type Inode interface {
	// Attrs returns the inode's common attribute block.
	Attrs() *InodeAttrs
	// CheckPermission reports whether creds may access the inode with
	// the given access type, per spec.md §4.7's authorization hooks.
	CheckPermission(creds *auth.Credentials, at hostarch.AccessType) error
}

// InodeAttrs is the attribute state common to every inode backend.
type InodeAttrs struct {
	mu sync.Mutex

	ino   uint64
	mode  linux.FileMode
	uid   auth.KUID
	gid   auth.KGID
	nlink uint32

	atimeNsec int64
	mtimeNsec int64
	ctimeNsec int64
}

// InitInodeAttrs initializes a.
func InitInodeAttrs(a *InodeAttrs, ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, now int64) {
	a.ino = ino
	a.mode = mode
	a.uid = uid
	a.gid = gid
	a.nlink = 1
	a.atimeNsec = now
	a.mtimeNsec = now
	a.ctimeNsec = now
}

// Mode returns the inode's current mode.
func (a *InodeAttrs) Mode() linux.FileMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetMode updates the permission bits (not the file-type bits) of the
// inode's mode, per chmod(2).
func (a *InodeAttrs) SetMode(perm linux.FileMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mode = a.mode.FileType() | (perm & linux.ModePermMask)
}

// Owner returns the inode's owning uid and gid.
func (a *InodeAttrs) Owner() (auth.KUID, auth.KGID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uid, a.gid
}

// SetOwner updates the inode's owning uid and gid, per chown(2). A
// NoID value leaves the corresponding field unchanged.
func (a *InodeAttrs) SetOwner(uid auth.KUID, gid auth.KGID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uid != auth.KUID(auth.NoID) {
		a.uid = uid
	}
	if gid != auth.KGID(auth.NoID) {
		a.gid = gid
	}
}

// Ino returns the inode number.
func (a *InodeAttrs) Ino() uint64 {
	return a.ino
}

// Nlink returns the current link count.
func (a *InodeAttrs) Nlink() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nlink
}

// IncLinks and DecLinks adjust the link count, for link(2)/unlink(2).
func (a *InodeAttrs) IncLinks() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nlink++
}

func (a *InodeAttrs) DecLinks() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nlink--
	return a.nlink
}

// Times returns the atime/mtime/ctime, in nanoseconds since the clock
// epoch (spec.md §6's Clock interface).
func (a *InodeAttrs) Times() (atime, mtime, ctime int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.atimeNsec, a.mtimeNsec, a.ctimeNsec
}

// Touch updates mtime and ctime (or just atime) to now.
func (a *InodeAttrs) Touch(now int64, mtime bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mtime {
		a.mtimeNsec = now
		a.ctimeNsec = now
	} else {
		a.atimeNsec = now
	}
}

// CheckPermission implements the common Unix owner/group/other
// permission check shared by every inode backend; it is embedded via
// Attrs() by each backend's own CheckPermission.
func CheckPermission(a *InodeAttrs, creds *auth.Credentials, at hostarch.AccessType) error {
	mode := a.Mode()
	uid, gid := a.Owner()

	if creds.EffectiveKUID == 0 || creds.HasCapability(auth.CAP_DAC_OVERRIDE) {
		// Root (or CAP_DAC_OVERRIDE) bypasses permission bits, but
		// execute still requires at least one execute bit set for a
		// regular file, matching Linux's generic_permission().
		if at.Execute && mode.IsRegular() && mode&0o111 == 0 {
			return errPermission
		}
		return nil
	}

	var bits linux.FileMode
	switch {
	case creds.EffectiveKUID == uid:
		bits = (mode >> 6) & 0o7
	case creds.InGroup(gid):
		bits = (mode >> 3) & 0o7
	default:
		bits = mode & 0o7
	}

	if at.Read && bits&0o4 == 0 {
		return errPermission
	}
	if at.Write && bits&0o2 == 0 {
		return errPermission
	}
	if at.Execute && bits&0o1 == 0 {
		return errPermission
	}
	return nil
}
