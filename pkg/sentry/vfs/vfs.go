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
	"sync/atomic"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
)

// maxSymlinkTraversals bounds a single path walk's symlink budget,
// matching Linux's MAXSYMLINKS.
const maxSymlinkTraversals = 40

// InodeFactory constructs new inodes for MkdirAt/CreateAt/SymlinkAt,
// keeping VirtualFilesystem itself independent of any one backend
// package (only pkg/sentry/vfs/tmpfs implements one today).
type InodeFactory interface {
	// NewRegularFile creates a new, empty regular file inode.
	NewRegularFile(ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, nowNsec int64) Inode
	// NewDirectory creates a new, empty directory inode bound to d.
	NewDirectory(d *Dentry, ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, nowNsec int64) Inode
	// NewSymlink creates a new symlink inode with the given target.
	NewSymlink(target string, ino uint64, uid auth.KUID, gid auth.KGID, nowNsec int64) Inode
}

// symlinkTarget is implemented by inodes constructed via
// InodeFactory.NewSymlink, letting ResolveStep's readLink callback read
// a target without depending on the tmpfs package's concrete type.
type symlinkTarget interface {
	Target() string
}

// VirtualFilesystem ties the dentry tree, mount tree, and inode
// factory together into the path-based syscalls of spec.md §4.4.
type VirtualFilesystem struct {
	factory InodeFactory

	nextIno uint64
}

// NewVirtualFilesystem constructs an empty VirtualFilesystem using
// factory to create new inodes.
func NewVirtualFilesystem(factory InodeFactory) *VirtualFilesystem {
	return &VirtualFilesystem{factory: factory, nextIno: 1}
}

func (vfs *VirtualFilesystem) allocIno() uint64 {
	return atomic.AddUint64(&vfs.nextIno, 1)
}

// NewMountNamespace creates a fresh namespace with a single root mount
// backed by a new, empty directory.
func (vfs *VirtualFilesystem) NewMountNamespace(creds *auth.Credentials, nowNsec int64) *MountNamespace {
	rootDentry := NewDentry("", nil, nil)
	root := vfs.factory.NewDirectory(rootDentry, vfs.allocIno(), 0o755, creds.EffectiveKUID, creds.EffectiveKGID, nowNsec)
	setDentryInode(rootDentry, root)
	mount := NewMount(rootDentry, MountFlags{})
	return NewMountNamespace(mount)
}

func (vfs *VirtualFilesystem) readLink(d *Dentry) (string, bool, error) {
	sym, ok := d.Inode().(symlinkTarget)
	if !ok {
		return "", false, nil
	}
	return sym.Target(), true, nil
}

// resolve walks path from (mount, start) to its final dentry, on behalf
// of creds, following symlinks and crossing mounts transparently. If
// nofollow is set and the final component is a symlink, it is returned
// unresolved.
func (vfs *VirtualFilesystem) resolve(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string, nofollow bool) (*Mount, *Dentry, error) {
	rp := NewResolvingPath(creds, mount, start, root, rootEntry, path, maxSymlinkTraversals)
	for {
		final := rp.Final()
		done, err := rp.ResolveStep(func(d *Dentry) (string, bool, error) {
			if final && nofollow {
				return "", false, nil
			}
			return vfs.readLink(d)
		})
		if err != nil {
			return nil, nil, err
		}
		if done {
			return rp.Mount(), rp.Dentry(), nil
		}
	}
}

// resolveParent walks every component but the last, on behalf of creds,
// returning the parent directory dentry and the final component's name.
func (vfs *VirtualFilesystem) resolveParent(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string) (*Mount, *Dentry, string, error) {
	rp := NewResolvingPath(creds, mount, start, root, rootEntry, path, maxSymlinkTraversals)
	if rp.Done() {
		return nil, nil, "", errInvalid
	}
	for !rp.Final() {
		done, err := rp.ResolveStep(vfs.readLink)
		if err != nil {
			return nil, nil, "", err
		}
		if done && !rp.Final() {
			break
		}
	}
	name := rp.Advance()
	return rp.Mount(), rp.Dentry(), name, nil
}

// StatResult is the subset of struct stat VFS operations populate
// directly; the syscall layer widens it into the full ABI struct.
type StatResult struct {
	Ino   uint64
	Mode  linux.FileMode
	UID   auth.KUID
	GID   auth.KGID
	Nlink uint32
	Size  int64
	Atime int64
	Mtime int64
	Ctime int64
}

// OpenAt resolves path relative to (mount, start) and returns a new
// open FileDescription, creating a regular file first if O_CREAT is
// set and nothing exists there.
func (vfs *VirtualFilesystem) OpenAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string, flags uint32, mode linux.FileMode, nowNsec int64) (*FileDescription, error) {
	nofollow := flags&linux.O_NOFOLLOW != 0
	_, d, err := vfs.resolve(creds, mount, start, root, rootEntry, path, nofollow)
	if err == nil {
		if flags&(linux.O_CREAT|linux.O_EXCL) == linux.O_CREAT|linux.O_EXCL {
			return nil, errExist
		}
		at := accessForFlags(flags)
		if err := d.Inode().CheckPermission(creds, at); err != nil {
			return nil, err
		}
		if rb, ok := d.Inode().(regularBackend); ok && flags&linux.O_TRUNC != 0 {
			if err := rb.Truncate(0); err != nil {
				return nil, err
			}
		}
		return NewFileDescription(d, flags), nil
	}
	if !kernerrIsNotExist(err) || flags&linux.O_CREAT == 0 {
		return nil, err
	}

	_, parent, name, perr := vfs.resolveParent(creds, mount, start, root, rootEntry, path)
	if perr != nil {
		return nil, perr
	}
	if err := parent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return nil, err
	}
	inode := vfs.factory.NewRegularFile(vfs.allocIno(), mode, creds.EffectiveKUID, creds.EffectiveKGID, nowNsec)
	child := NewDentry(name, parent, inode)
	parent.AddChild(name, child)
	return NewFileDescription(child, flags), nil
}

func accessForFlags(flags uint32) hostarch.AccessType {
	switch flags & linux.O_ACCMODE {
	case linux.O_WRONLY:
		return hostarch.Write
	case linux.O_RDWR:
		return hostarch.ReadWrite
	default:
		return hostarch.Read
	}
}

func kernerrIsNotExist(err error) bool {
	return err == errNotExist
}

// MkdirAt creates an empty directory at path relative to (mount, start).
func (vfs *VirtualFilesystem) MkdirAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string, mode linux.FileMode, nowNsec int64) error {
	_, parent, name, err := vfs.resolveParent(creds, mount, start, root, rootEntry, path)
	if err != nil {
		return err
	}
	if _, ok := parent.Child(name); ok {
		return errExist
	}
	if err := parent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	child := NewDentry(name, parent, nil)
	inode := vfs.factory.NewDirectory(child, vfs.allocIno(), mode, creds.EffectiveKUID, creds.EffectiveKGID, nowNsec)
	setDentryInode(child, inode)
	parent.AddChild(name, child)
	return nil
}

// setDentryInode is a narrow escape hatch used only by MkdirAt: a
// directory inode is constructed after its Dentry (it needs the
// Dentry to answer ListAfter), so the Dentry starts with a nil inode
// and is filled in once the inode exists.
func setDentryInode(d *Dentry, inode Inode) {
	d.inode = inode
}

// SymlinkAt creates a symlink at path with the given target.
func (vfs *VirtualFilesystem) SymlinkAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path, target string, nowNsec int64) error {
	_, parent, name, err := vfs.resolveParent(creds, mount, start, root, rootEntry, path)
	if err != nil {
		return err
	}
	if _, ok := parent.Child(name); ok {
		return errExist
	}
	if err := parent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	inode := vfs.factory.NewSymlink(target, vfs.allocIno(), creds.EffectiveKUID, creds.EffectiveKGID, nowNsec)
	child := NewDentry(name, parent, inode)
	parent.AddChild(name, child)
	return nil
}

// ReadlinkAt returns the target of the symlink at path.
func (vfs *VirtualFilesystem) ReadlinkAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string) (string, error) {
	_, d, err := vfs.resolve(creds, mount, start, root, rootEntry, path, true)
	if err != nil {
		return "", err
	}
	sym, ok := d.Inode().(symlinkTarget)
	if !ok {
		return "", errInvalid
	}
	return sym.Target(), nil
}

// StatAt resolves path and returns its attributes.
func (vfs *VirtualFilesystem) StatAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string, nofollow bool) (StatResult, error) {
	_, d, err := vfs.resolve(creds, mount, start, root, rootEntry, path, nofollow)
	if err != nil {
		return StatResult{}, err
	}
	return statFromInode(d.Inode()), nil
}

func statFromInode(inode Inode) StatResult {
	a := inode.Attrs()
	uid, gid := a.Owner()
	atime, mtime, ctime := a.Times()
	var size int64
	if rb, ok := inode.(regularBackend); ok {
		size = rb.Size()
	}
	return StatResult{
		Ino:   a.Ino(),
		Mode:  a.Mode(),
		UID:   uid,
		GID:   gid,
		Nlink: a.Nlink(),
		Size:  size,
		Atime: atime,
		Mtime: mtime,
		Ctime: ctime,
	}
}

// UnlinkAt removes a non-directory entry at path.
func (vfs *VirtualFilesystem) UnlinkAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string) error {
	_, parent, name, err := vfs.resolveParent(creds, mount, start, root, rootEntry, path)
	if err != nil {
		return err
	}
	child, ok := parent.Child(name)
	if !ok {
		return errNotExist
	}
	if child.Inode().Attrs().Mode().IsDir() {
		return errIsDir
	}
	if err := parent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	parent.RemoveChild(name)
	child.Inode().Attrs().DecLinks()
	return nil
}

// RmdirAt removes an empty directory entry at path.
func (vfs *VirtualFilesystem) RmdirAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string) error {
	_, parent, name, err := vfs.resolveParent(creds, mount, start, root, rootEntry, path)
	if err != nil {
		return err
	}
	child, ok := parent.Child(name)
	if !ok {
		return errNotExist
	}
	if !child.Inode().Attrs().Mode().IsDir() {
		return errNotDir
	}
	if len(child.ChildNames()) != 0 {
		return errNotEmpty
	}
	if err := parent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	parent.RemoveChild(name)
	return nil
}

// LinkAt creates a new hard link at newPath naming the same inode as
// oldPath. Directories cannot be hard-linked.
func (vfs *VirtualFilesystem) LinkAt(creds *auth.Credentials, oldMount *Mount, oldStart *Dentry, newMount *Mount, newStart *Dentry, root *Mount, rootEntry *Dentry, oldPath, newPath string) error {
	_, oldD, err := vfs.resolve(creds, oldMount, oldStart, root, rootEntry, oldPath, true)
	if err != nil {
		return err
	}
	if oldD.Inode().Attrs().Mode().IsDir() {
		return errPermission
	}
	_, parent, name, err := vfs.resolveParent(creds, newMount, newStart, root, rootEntry, newPath)
	if err != nil {
		return err
	}
	if _, ok := parent.Child(name); ok {
		return errExist
	}
	if err := parent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	child := NewDentry(name, parent, oldD.Inode())
	parent.AddChild(name, child)
	oldD.Inode().Attrs().IncLinks()
	return nil
}

// RenameAt moves the entry at oldPath to newPath, which must resolve
// within the same mount (EXDEV otherwise).
func (vfs *VirtualFilesystem) RenameAt(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, oldPath, newPath string) error {
	oldMount, oldParent, oldName, err := vfs.resolveParent(creds, mount, start, root, rootEntry, oldPath)
	if err != nil {
		return err
	}
	newMount, newParent, newName, err := vfs.resolveParent(creds, mount, start, root, rootEntry, newPath)
	if err != nil {
		return err
	}
	if oldMount != newMount {
		return errXDev
	}
	child, ok := oldParent.Child(oldName)
	if !ok {
		return errNotExist
	}
	if err := oldParent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	if err := newParent.Inode().CheckPermission(creds, hostarch.Write); err != nil {
		return err
	}
	if existing, ok := newParent.Child(newName); ok {
		existingIsDir := existing.Inode().Attrs().Mode().IsDir()
		childIsDir := child.Inode().Attrs().Mode().IsDir()
		switch {
		case existingIsDir && !childIsDir:
			return errIsDir
		case !existingIsDir && childIsDir:
			return errNotDir
		case existingIsDir && len(existing.ChildNames()) != 0:
			return errNotEmpty
		}
	}
	oldParent.RemoveChild(oldName)
	newParent.RemoveChild(newName)
	moved := NewDentry(newName, newParent, child.Inode())
	newParent.AddChild(newName, moved)
	return nil
}
