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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	abilinux "github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/entropy"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/seclog"
	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/kernel"
	"github.com/kestrelsentry/sentry/pkg/sentry/mm"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
	sclinux "github.com/kestrelsentry/sentry/pkg/sentry/syscalls/linux"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs/tmpfs"
)

// atFDCWD mirrors AT_FDCWD: resolve relative to the task's current
// working directory rather than an open directory fd.
const atFDCWD = -100

// selftestCmd drives a single in-process Task through the syscall
// dispatcher end to end (mmap, openat, write, lseek, read, unlink),
// without a real ptraced guest, to smoke-test a build.
type selftestCmd struct{}

func (*selftestCmd) Name() string     { return "selftest" }
func (*selftestCmd) Synopsis() string { return "exercise core syscalls against an in-process task" }
func (*selftestCmd) Usage() string {
	return "selftest: create a task, dispatch a handful of syscalls against it, and report pass/fail.\n"
}
func (*selftestCmd) SetFlags(*flag.FlagSet) {}

func (c *selftestCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	log := seclog.Global()

	task, err := newSelftestTask()
	if err != nil {
		log.Errorf("building task: %v", err)
		return subcommands.ExitFailure
	}
	table := sclinux.NewSyscallTable()

	type step struct {
		name string
		run  func() error
	}
	var pathAddr, fileAddr uintptr
	var fd uintptr

	steps := []step{
		{"mmap scratch page", func() error {
			addr, err := dispatch(table, task, 9, 0, uintptr(hostarch.PageSize), 0x3, 0x22, ^uintptr(0), 0)
			if err != nil {
				return err
			}
			pathAddr = addr
			fileAddr = addr + 256
			return nil
		}},
		{"openat O_CREAT|O_RDWR", func() error {
			writeCString(task, hostarch.Addr(pathAddr), "/selftest.txt")
			got, err := dispatch(table, task, sysOpenatNo, uintptr(atFDCWD), pathAddr, uintptr(abilinux.O_CREAT|abilinux.O_RDWR), 0o644, 0, 0)
			fd = got
			return err
		}},
		{"write payload", func() error {
			writeCString(task, hostarch.Addr(fileAddr), "selftest-ok")
			n, err := dispatch(table, task, 1, fd, fileAddr, 11, 0, 0, 0)
			if err != nil {
				return err
			}
			if n != 11 {
				return fmt.Errorf("wrote %d bytes, want 11", n)
			}
			return nil
		}},
		{"lseek back to start", func() error {
			_, err := dispatch(table, task, 8, fd, 0, 0, 0, 0, 0)
			return err
		}},
		{"read payload back", func() error {
			n, err := dispatch(table, task, 0, fd, fileAddr+64, 16, 0, 0, 0)
			if err != nil {
				return err
			}
			if n != 11 {
				return fmt.Errorf("read %d bytes, want 11", n)
			}
			got := make([]byte, 11)
			if _, err := task.MM.CopyIn(hostarch.Addr(fileAddr+64), got); err != nil {
				return err
			}
			if string(got) != "selftest-ok" {
				return fmt.Errorf("read back %q, want %q", got, "selftest-ok")
			}
			return nil
		}},
		{"close", func() error {
			_, err := dispatch(table, task, 3, fd, 0, 0, 0, 0, 0)
			return err
		}},
		{"unlinkat", func() error {
			writeCString(task, hostarch.Addr(pathAddr), "/selftest.txt")
			_, err := dispatch(table, task, sysUnlinkatNo, uintptr(atFDCWD), pathAddr, 0, 0, 0, 0)
			return err
		}},
	}

	ok := true
	for _, s := range steps {
		if err := s.run(); err != nil {
			fmt.Printf("FAIL  %s: %v\n", s.name, err)
			ok = false
			continue
		}
		fmt.Printf("PASS  %s\n", s.name)
	}
	if !ok {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// Real Linux x86-64 syscall numbers for the two *at calls selftest
// drives; kept local since the dispatch table's own constants are
// unexported.
const (
	sysOpenatNo   = 257
	sysUnlinkatNo = 263
)

func newSelftestTask() (*kernel.Task, error) {
	mf, err := pgalloc.NewMemoryFile("sentryctl-selftest", 2<<20)
	if err != nil {
		return nil, fmt.Errorf("NewMemoryFile: %w", err)
	}
	layout, err := mm.NewMmapLayout(hostarch.Addr(0x10000), hostarch.Addr(0x10000000), 1<<32, entropy.Host{})
	if err != nil {
		return nil, fmt.Errorf("NewMmapLayout: %w", err)
	}
	memMgr := mm.NewMemoryManager(mf, layout)

	creds := auth.NewRootCredentials(auth.NewRootUserNamespace())
	task := kernel.NewTask(1, arch.NewContext(arch.NewFeatureSet()), memMgr, vfs.NewFDTable(), creds, creds.UserNamespace)

	factory := &tmpfs.Factory{MemoryFile: mf}
	vfsys := vfs.NewVirtualFilesystem(factory)
	ns := vfsys.NewMountNamespace(creds, 0)
	task.InitVFS(vfsys, ns)

	return task, nil
}

// dispatch loads args into task's registers as if a guest had just
// trapped into nr, runs the table against it, and decodes RAX back into
// a (value, error) pair the way a real syscall return would be read.
func dispatch(table kernel.Table, task *kernel.Task, nr uintptr, a0, a1, a2, a3, a4, a5 uintptr) (uintptr, error) {
	r := &task.Arch.Regs
	r.OrigRAX = uint64(nr)
	r.RDI, r.RSI, r.RDX, r.R10, r.R8, r.R9 = uint64(a0), uint64(a1), uint64(a2), uint64(a3), uint64(a4), uint64(a5)
	table.Dispatch(task)
	ret := int64(r.RAX)
	if ret < 0 {
		return 0, fmt.Errorf("errno %d", -ret)
	}
	return uintptr(ret), nil
}

func writeCString(task *kernel.Task, addr hostarch.Addr, s string) {
	buf := append([]byte(s), 0)
	_, _ = task.MM.CopyOut(addr, buf)
}
