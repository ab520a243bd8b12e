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
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// Factory implements vfs.InodeFactory, constructing tmpfs backends
// against a single shared pgalloc.MemoryFile — the same memory file
// every task's MemoryManager allocates anonymous mappings from, so
// mmap'd tmpfs files and process heaps are pages of the same pool.
type Factory struct {
	MemoryFile *pgalloc.MemoryFile
}

// NewRegularFile implements vfs.InodeFactory.
func (f *Factory) NewRegularFile(ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, nowNsec int64) vfs.Inode {
	return NewRegularFile(f.MemoryFile, ino, mode, uid, gid, nowNsec)
}

// NewDirectory implements vfs.InodeFactory.
func (f *Factory) NewDirectory(d *vfs.Dentry, ino uint64, mode linux.FileMode, uid auth.KUID, gid auth.KGID, nowNsec int64) vfs.Inode {
	return NewDirectory(d, ino, mode, uid, gid, nowNsec)
}

// NewSymlink implements vfs.InodeFactory.
func (f *Factory) NewSymlink(target string, ino uint64, uid auth.KUID, gid auth.KGID, nowNsec int64) vfs.Inode {
	return NewSymlink(target, ino, uid, gid, nowNsec)
}
