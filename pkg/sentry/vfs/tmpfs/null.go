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
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// NullDevice implements /dev/null: every read reports EOF, every write
// reports success having consumed the whole buffer, there is no mmap
// and no readdir.
type NullDevice struct {
	vfs.InodeAttrs
}

// NewNullDevice constructs a null device inode.
func NewNullDevice(ino uint64, uid auth.KUID, gid auth.KGID, nowNsec int64) *NullDevice {
	n := &NullDevice{}
	vfs.InitInodeAttrs(&n.InodeAttrs, ino, linux.ModeCharDevice|0o666, uid, gid, nowNsec)
	return n
}

// Attrs implements vfs.Inode.
func (n *NullDevice) Attrs() *vfs.InodeAttrs { return &n.InodeAttrs }

// CheckPermission implements vfs.Inode.
func (n *NullDevice) CheckPermission(creds *auth.Credentials, at hostarch.AccessType) error {
	return vfs.CheckPermission(&n.InodeAttrs, creds, at)
}

// PRead implements the vfs regularBackend contract: every read reports
// EOF immediately, regardless of offset.
func (n *NullDevice) PRead([]byte, int64) (int, error) {
	return 0, kernerr.EOF
}

// PWrite implements the vfs regularBackend contract: every write
// reports having consumed its entire input.
func (n *NullDevice) PWrite(src []byte, _ int64) (int, error) {
	return len(src), nil
}

// Size implements the vfs regularBackend contract; /dev/null has no
// meaningful size.
func (n *NullDevice) Size() int64 { return 0 }

// Truncate implements the vfs regularBackend contract; truncating
// /dev/null is a no-op permitted by Linux.
func (n *NullDevice) Truncate(int64) error { return nil }
