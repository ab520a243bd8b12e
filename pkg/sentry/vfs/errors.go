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
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/kernerr"
)

var (
	errPermission  = kernerr.Libc(unix.EACCES)
	errNotExist    = kernerr.Libc(unix.ENOENT)
	errExist       = kernerr.Libc(unix.EEXIST)
	errNotDir      = kernerr.Libc(unix.ENOTDIR)
	errIsDir       = kernerr.Libc(unix.EISDIR)
	errNotEmpty    = kernerr.Libc(unix.ENOTEMPTY)
	errLoop        = kernerr.Libc(unix.ELOOP)
	errNameTooLong = kernerr.Libc(unix.ENAMETOOLONG)
	errInvalid     = kernerr.Libc(unix.EINVAL)
	errBadF        = kernerr.Libc(unix.EBADF)
	errXDev        = kernerr.Libc(unix.EXDEV)
)
