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
	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// Symlink is a tmpfs symbolic link: an immutable target string fixed at
// creation, per symlink(2)'s semantics (there is no way to modify an
// existing symlink's target short of replacing it).
type Symlink struct {
	vfs.InodeAttrs

	target string
}

// NewSymlink constructs a symlink whose target is target.
func NewSymlink(target string, ino uint64, uid auth.KUID, gid auth.KGID, nowNsec int64) *Symlink {
	s := &Symlink{target: target}
	vfs.InitInodeAttrs(&s.InodeAttrs, ino, linux.ModeSymlink|0o777, uid, gid, nowNsec)
	return s
}

// Attrs implements vfs.Inode.
func (s *Symlink) Attrs() *vfs.InodeAttrs { return &s.InodeAttrs }

// CheckPermission implements vfs.Inode. Symlinks carry no meaningful
// permission bits of their own; readlink(2) only requires access to
// the directory that names them, already checked during path walk.
func (s *Symlink) CheckPermission(*auth.Credentials, hostarch.AccessType) error {
	return nil
}

// Target returns the symlink's target string, for readlink(2) and for
// ResolvingPath's PushSymlink.
func (s *Symlink) Target() string {
	return s.target
}
