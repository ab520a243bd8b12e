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

package linux

import (
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/kernel"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// atFDCWD mirrors AT_FDCWD: the *at syscalls' sentinel for "resolve
// relative to the calling task's current working directory".
const atFDCWD = -100

const pathMax = 4096

// copyInPath reads a NUL-terminated path string out of guest memory at
// addr, in bounded chunks, per spec.md §4.6's argument-marshaling
// contract (handlers never trust a guest-supplied length unchecked).
func copyInPath(t *kernel.Task, addr hostarch.Addr) (string, error) {
	const chunk = 64
	var buf []byte
	tmp := make([]byte, chunk)
	for len(buf) < pathMax {
		n, err := t.MM.CopyIn(addr+hostarch.Addr(len(buf)), tmp)
		if n == 0 && err != nil {
			return "", kernerr.Libc(unix.EFAULT)
		}
		for i := 0; i < n; i++ {
			if tmp[i] == 0 {
				return string(append(buf, tmp[:i]...)), nil
			}
		}
		buf = append(buf, tmp[:n]...)
		if n < chunk {
			break
		}
	}
	return "", kernerr.Libc(unix.ENAMETOOLONG)
}

// startDentry resolves the (mount, dentry) pair a relative path starting
// at dirfd should walk from: AT_FDCWD means the task's cwd; otherwise
// the dentry of the file open at dirfd (EBADF if none), paired with the
// task's cwd mount. It does not check that dirfd names a directory.
func startDentry(t *kernel.Task, dirfd int32) (*vfs.Mount, *vfs.Dentry, error) {
	if dirfd == atFDCWD {
		return t.CWDMnt, t.CWD, nil
	}
	fd, ok := t.FDs.Get(dirfd)
	if !ok {
		return nil, nil, kernerr.Libc(unix.EBADF)
	}
	return t.CWDMnt, fd.Dentry(), nil
}
