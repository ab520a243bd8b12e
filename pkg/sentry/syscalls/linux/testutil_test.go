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
	"testing"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/kernel"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
	"github.com/kestrelsentry/sentry/pkg/sentry/mm"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs/tmpfs"
)

type fixedEntropy struct{}

func (fixedEntropy) Fill(b []byte) error {
	for i := range b {
		b[i] = byte(i)
	}
	return nil
}

// newTestTask builds a Task with a real MemoryManager, FDTable, and a
// tmpfs-backed VirtualFilesystem rooted at "/", for exercising syscall
// handlers without a guest process.
func newTestTask(t *testing.T) *kernel.Task {
	t.Helper()

	mf, err := pgalloc.NewMemoryFile("syscalls-test", 2<<20)
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	t.Cleanup(func() { mf.Close() })
	layout, err := mm.NewMmapLayout(hostarch.Addr(0x10000), hostarch.Addr(0x10000000), 0x100000, fixedEntropy{})
	if err != nil {
		t.Fatalf("NewMmapLayout: %v", err)
	}
	memMgr := mm.NewMemoryManager(mf, layout)

	creds := auth.NewRootCredentials(auth.NewRootUserNamespace())
	task := kernel.NewTask(1, arch.NewContext(arch.NewFeatureSet()), memMgr, vfs.NewFDTable(), creds, creds.UserNamespace)

	factory := &tmpfs.Factory{MemoryFile: mf}
	vfsys := vfs.NewVirtualFilesystem(factory)
	ns := vfsys.NewMountNamespace(creds, 0)
	task.InitVFS(vfsys, ns)

	// Back the fixed scratch region every test writes guest buffers into
	// with a real anonymous mapping: CopyIn/CopyOut require an existing
	// vma, just as they would against a real guest's address space.
	if _, err := memMgr.MMap(memmap.MMapOpts{
		Length:   hostarch.PageSize,
		Addr:     scratchAddr,
		Fixed:    true,
		Perms:    hostarch.ReadWrite,
		MaxPerms: hostarch.AnyAccess,
		Private:  true,
	}); err != nil {
		t.Fatalf("MMap scratch region: %v", err)
	}

	return task
}

// writeGuestString copies s, NUL-terminated, into guest memory at addr.
func writeGuestString(t *testing.T, task *kernel.Task, addr hostarch.Addr, s string) {
	t.Helper()
	buf := append([]byte(s), 0)
	if _, err := task.MM.CopyOut(addr, buf); err != nil {
		t.Fatalf("CopyOut path: %v", err)
	}
}

const scratchAddr = hostarch.Addr(0x20000)
