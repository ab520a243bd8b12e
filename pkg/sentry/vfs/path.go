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
	"strings"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
)

// ResolvingPath tracks the state of an in-progress path walk: the mount
// and dentry reached so far, the path components still to resolve, the
// credentials the walk is performed on behalf of, and the symlink
// traversal budget of spec.md §4.4 (default 40; ELOOP on exhaustion).
type ResolvingPath struct {
	mount  *Mount
	dentry *Dentry

	root      *Mount
	rootEntry *Dentry

	creds *auth.Credentials

	components   []string
	symlinksLeft int
}

// NewResolvingPath begins resolution of path from (mount, start), within
// the namespace rooted at (root, rootEntry), on behalf of creds, with
// the given symlink traversal budget.
func NewResolvingPath(creds *auth.Credentials, mount *Mount, start *Dentry, root *Mount, rootEntry *Dentry, path string, maxSymlinks int) *ResolvingPath {
	return &ResolvingPath{
		mount:        mount,
		dentry:       start,
		root:         root,
		rootEntry:    rootEntry,
		creds:        creds,
		components:   splitPath(path),
		symlinksLeft: maxSymlinks,
	}
}

func splitPath(path string) []string {
	var out []string
	for _, c := range strings.Split(path, "/") {
		if c == "" || c == "." {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Mount and Dentry return the walk's current position.
func (rp *ResolvingPath) Mount() *Mount   { return rp.mount }
func (rp *ResolvingPath) Dentry() *Dentry { return rp.dentry }

// Done reports whether every component has been consumed.
func (rp *ResolvingPath) Done() bool {
	return len(rp.components) == 0
}

// Final reports whether exactly one component remains — the walk is at
// the last path element, which callers like MkdirAt/CreateAt treat
// specially (it need not already exist).
func (rp *ResolvingPath) Final() bool {
	return len(rp.components) == 1
}

// Advance consumes and returns the next path component.
func (rp *ResolvingPath) Advance() string {
	c := rp.components[0]
	rp.components = rp.components[1:]
	return c
}

// PushSymlink prepends target's components to the remaining walk, after
// consuming one unit of the symlink budget. It returns ELOOP if the
// budget is exhausted.
func (rp *ResolvingPath) PushSymlink(target string) error {
	if rp.symlinksLeft <= 0 {
		return errLoop
	}
	rp.symlinksLeft--
	if strings.HasPrefix(target, "/") {
		rp.mount = rp.root
		rp.dentry = rp.rootEntry
	}
	rp.components = append(splitPath(target), rp.components...)
	return nil
}

// SetPosition repositions the walk, e.g. to cross a mount boundary or
// follow ".." up to a parent mount.
func (rp *ResolvingPath) SetPosition(mount *Mount, dentry *Dentry) {
	rp.mount = mount
	rp.dentry = dentry
}

// ResolveStep advances the walk by one component, crossing mount points
// transparently and following symlinks up to the remaining budget.
// readLink is called to read a symlink's target when one is
// encountered. It returns (final, err): final is true once Dentry()
// names the resolved target of the whole path.
//
// For every component except the last, the dentry being descended from
// must be a directory on which creds holds execute permission — per
// spec.md §4.4.1 step 3, permissions are checked on each intermediate
// directory, never on the final component via this mechanism. The last
// component is also looked up only in a directory (ENOTDIR otherwise),
// without an execute check. A relative symlink target is walked from
// the directory that contains the symlink.
func (rp *ResolvingPath) ResolveStep(readLink func(*Dentry) (string, bool, error)) (bool, error) {
	if rp.Done() {
		return true, nil
	}
	name := rp.Advance()
	isLast := rp.Done()

	if !isLast {
		if err := rp.checkIntermediate(); err != nil {
			return false, err
		}
	} else if inode := rp.dentry.Inode(); inode == nil || !inode.Attrs().Mode().IsDir() {
		return false, errNotDir
	}

	switch name {
	case "..":
		if parent := rp.dentry.Parent(); parent != nil {
			rp.dentry = parent
		} else if rp.mount.parent != nil {
			// Crossed up out of a submount into its parent mount.
			rp.dentry = rp.mount.mountPoint.Parent()
			rp.mount = rp.mount.parent
			if rp.dentry == nil {
				rp.dentry = rp.mount.Root()
			}
		}
		return rp.Done(), nil
	}

	child, ok := rp.dentry.Child(name)
	if !ok {
		if rp.Done() {
			// Caller (e.g. CreateAt) may create this final component
			// itself; report that resolution reached the parent with
			// the component unresolved by returning ENOENT only when
			// the caller doesn't special-case Final().
			return false, errNotExist
		}
		return false, errNotExist
	}

	fromMount, fromDentry := rp.mount, rp.dentry

	// A mount may be attached over this dentry; if so, descend into it.
	if sub, ok := rp.mount.SubmountAt(child); ok {
		rp.mount = sub
		rp.dentry = sub.Root()
	} else {
		rp.dentry = child
	}

	target, isSymlink, err := readLink(rp.dentry)
	if err != nil {
		return false, err
	}
	if isSymlink {
		rp.SetPosition(fromMount, fromDentry)
		if err := rp.PushSymlink(target); err != nil {
			return false, err
		}
		return false, nil
	}
	return rp.Done(), nil
}

// checkIntermediate enforces spec.md §4.4.1 step 3 against the dentry
// the walk is about to descend from: it must be a directory, and creds
// must hold execute permission on it.
func (rp *ResolvingPath) checkIntermediate() error {
	inode := rp.dentry.Inode()
	if inode == nil || !inode.Attrs().Mode().IsDir() {
		return errNotDir
	}
	return inode.CheckPermission(rp.creds, hostarch.Execute)
}
