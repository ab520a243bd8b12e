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
	"sort"
	"sync"
)

// Dentry is one node of the path tree, per spec.md §4.4: it holds a
// strong (owning) edge down to each of its children and a weak
// (non-owning) edge up to its parent, so a subtree stays reachable as
// long as its root is, without the root keeping its parent alive.
type Dentry struct {
	mu sync.Mutex

	name   string
	parent *Dentry
	inode  Inode

	mount *Mount // the Mount this dentry is the root of, if any

	children map[string]*Dentry
}

// NewDentry constructs a Dentry named name under parent (nil for a
// filesystem root), backed by inode.
func NewDentry(name string, parent *Dentry, inode Inode) *Dentry {
	return &Dentry{
		name:     name,
		parent:   parent,
		inode:    inode,
		children: make(map[string]*Dentry),
	}
}

// Name returns the dentry's name within its parent.
func (d *Dentry) Name() string {
	return d.name
}

// Parent returns the dentry's parent, or nil at a filesystem root.
func (d *Dentry) Parent() *Dentry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent
}

// Inode returns the inode this dentry names.
func (d *Dentry) Inode() Inode {
	return d.inode
}

// Child looks up a direct child by name.
func (d *Dentry) Child(name string) (*Dentry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[name]
	return c, ok
}

// AddChild inserts child under d, overwriting any existing entry with
// the same name.
func (d *Dentry) AddChild(name string, child *Dentry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children[name] = child
}

// RemoveChild detaches the named child, if present.
func (d *Dentry) RemoveChild(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.children, name)
}

// ChildNames returns the dentry's children's names in a stable,
// lexicographically sorted order, for readdir's serialized cursor.
func (d *Dentry) ChildNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRoot reports whether d has no parent.
func (d *Dentry) IsRoot() bool {
	return d.Parent() == nil
}

// Path renders the absolute path from the filesystem root to d. It does
// not cross mount boundaries; VirtualFilesystem.PathAt does that.
func (d *Dentry) Path() string {
	if d.IsRoot() {
		return "/"
	}
	var names []string
	for cur := d; !cur.IsRoot(); cur = cur.Parent() {
		names = append(names, cur.Name())
	}
	// names was built leaf-to-root; reverse it.
	out := ""
	for i := len(names) - 1; i >= 0; i-- {
		out += "/" + names[i]
	}
	return out
}
