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

import "sync"

// MountFlags are the per-mount options recognized at mount(2) time.
type MountFlags struct {
	ReadOnly bool
	NoExec   bool
	NoSuid   bool
	NoDev    bool
}

// Mount is one mounted filesystem, rooted at Root within the mount's
// own namespace and attached at MountPoint within its parent.
type Mount struct {
	root       *Dentry
	mountPoint *Dentry // the dentry this mount is attached to; nil for the root mount
	parent     *Mount
	flags      MountFlags

	mu       sync.Mutex
	children map[*Dentry]*Mount // submounts, keyed by the dentry they're mounted on
}

// NewMount constructs a Mount rooted at root.
func NewMount(root *Dentry, flags MountFlags) *Mount {
	return &Mount{
		root:     root,
		flags:    flags,
		children: make(map[*Dentry]*Mount),
	}
}

// Root returns the mount's root dentry.
func (m *Mount) Root() *Dentry {
	return m.root
}

// Flags returns the mount's flags.
func (m *Mount) Flags() MountFlags {
	return m.flags
}

// Mount attaches child at mountPoint within m.
func (m *Mount) Mount(mountPoint *Dentry, child *Mount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	child.parent = m
	child.mountPoint = mountPoint
	m.children[mountPoint] = child
}

// Unmount detaches the mount attached at mountPoint, if any.
func (m *Mount) Unmount(mountPoint *Dentry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.children, mountPoint)
}

// SubmountAt returns the Mount attached at d within m, if any — the
// "mounts shadow the underlying dentry" step of path resolution.
func (m *Mount) SubmountAt(d *Dentry) (*Mount, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	child, ok := m.children[d]
	return child, ok
}

// MountNamespace is a task's view of the mount tree, rooted at Root.
type MountNamespace struct {
	root *Mount
}

// NewMountNamespace constructs a namespace whose single mount is root.
func NewMountNamespace(root *Mount) *MountNamespace {
	return &MountNamespace{root: root}
}

// Root returns the namespace's root mount.
func (ns *MountNamespace) Root() *Mount {
	return ns.root
}
