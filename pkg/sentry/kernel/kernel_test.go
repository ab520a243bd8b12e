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

package kernel

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
)

func newTestTask() *Task {
	return NewTask(1, arch.NewContext(arch.NewFeatureSet()), nil, nil, nil, nil)
}

func TestDispatchUnknownSyscallReturnsENOSYS(t *testing.T) {
	task := newTestTask()
	task.Arch.Regs.OrigRAX = 999999
	tbl := NewTable(nil)
	tbl.Dispatch(task)
	if int64(task.Arch.Regs.RAX) != -int64(unix.ENOSYS) {
		t.Fatalf("RAX = %d, want -ENOSYS", int64(task.Arch.Regs.RAX))
	}
}

func TestDispatchSuccessEncodesReturnValue(t *testing.T) {
	task := newTestTask()
	task.Arch.Regs.OrigRAX = 1
	tbl := NewTable(map[uintptr]Handler{
		1: func(t *Task, args [6]uintptr) (uintptr, error) { return 42, nil },
	})
	tbl.Dispatch(task)
	if task.Arch.Regs.RAX != 42 {
		t.Fatalf("RAX = %d, want 42", task.Arch.Regs.RAX)
	}
}

func TestDispatchErrorEncodesNegativeErrno(t *testing.T) {
	task := newTestTask()
	task.Arch.Regs.OrigRAX = 2
	tbl := NewTable(map[uintptr]Handler{
		2: func(t *Task, args [6]uintptr) (uintptr, error) { return 0, kernerr.Libc(unix.EBADF) },
	})
	tbl.Dispatch(task)
	if int64(task.Arch.Regs.RAX) != -int64(unix.EBADF) {
		t.Fatalf("RAX = %d, want -EBADF", int64(task.Arch.Regs.RAX))
	}
}

func TestDispatchSyscallRestartRewindsRIP(t *testing.T) {
	task := newTestTask()
	task.Arch.Regs.OrigRAX = 3
	task.Arch.Regs.RIP = 0x2000
	tbl := NewTable(map[uintptr]Handler{
		3: func(t *Task, args [6]uintptr) (uintptr, error) { return 0, kernerr.SyscallRestart },
	})
	tbl.Dispatch(task)
	if task.Arch.Regs.RIP != 0x1FFE {
		t.Fatalf("RIP = %#x, want 0x1FFE", task.Arch.Regs.RIP)
	}
}
