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

package tmpfs

import (
	"sort"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// Directory is a tmpfs directory. Its entries are exactly its backing
// Dentry's children; Directory itself holds no independent state beyond
// the shared InodeAttrs, since the Dentry tree is already the
// authoritative name->child mapping (spec.md §4.4).
type Directory struct {
	vfs.InodeAttrs

	dentry *Dentry
}

// Dentry mirrors vfs.Dentry but lets this package reference the
// concrete type without importing vfs for more than the interfaces it
// already needs; tmpfs.Directory is always constructed with the same
// *vfs.Dentry that owns it.
type Dentry = vfs.Dentry

// NewDirectory constructs a directory inode bound to d, which must be
// the same Dentry this inode is installed under.
func NewDirectory(d *Dentry, ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, nowNsec int64) *Directory {
	dir := &Directory{dentry: d}
	vfs.InitInodeAttrs(&dir.InodeAttrs, ino, linux.ModeDirectory|mode.Perm(), uid, gid, nowNsec)
	dir.IncLinks() // "."
	return dir
}

// Attrs implements vfs.Inode.
func (d *Directory) Attrs() *vfs.InodeAttrs { return &d.InodeAttrs }

// CheckPermission implements vfs.Inode.
func (d *Directory) CheckPermission(creds *auth.Credentials, at hostarch.AccessType) error {
	return vfs.CheckPermission(&d.InodeAttrs, creds, at)
}

// ListAfter implements the vfs directoryBackend contract: it returns up
// to count entries whose names sort strictly after the cursor name
// "after" (empty meaning from the first entry; "." and ".." are not
// listed), plus the cursor to resume
// from. Entries are emitted in a fixed, name-sorted order so that the
// cursor remains meaningful across calls even if sibling entries are
// added or removed in between (spec.md §4.4's serialized-name-cursor
// requirement).
func (d *Directory) ListAfter(after string, count int) ([]linux.Dirent64, string) {
	names := d.dentry.ChildNames()
	sort.Strings(names)

	start := 0
	if after != "" {
		start = sort.SearchStrings(names, after)
		if start < len(names) && names[start] == after {
			start++
		}
	}

	var out []linux.Dirent64
	cursor := after
	for i := start; i < len(names) && len(out) < count; i++ {
		name := names[i]
		child, ok := d.dentry.Child(name)
		if !ok {
			continue
		}
		attrs := child.Inode().Attrs()
		out = append(out, linux.Dirent64{
			Ino:  attrs.Ino(),
			Off:  uint64(i + 1),
			Type: linux.DirentTypeFromFileMode(attrs.Mode()),
			Name: name,
		})
		cursor = name
	}
	return out, cursor
}
