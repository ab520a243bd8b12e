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
	"runtime/debug"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/seclog"
)

// Handler is a syscall implementation: it reads its arguments from t's
// registers and returns either a successful return value or an error,
// per spec.md §4.6's "fn(&mut Regs) -> Result<usize, Errno>" contract.
// Handlers needing to mutate registers beyond the return value (e.g.
// arch_prctl ARCH_SET_FS) do so directly through t.Arch.Regs.
type Handler func(t *Task, args [6]uintptr) (uintptr, error)

// Table maps a syscall number to its Handler.
type Table map[uintptr]Handler

// NewTable returns a Table pre-populated from handlers, a convenience
// for the syscalls/linux package to hand the kernel a complete table
// without the kernel package depending on it directly (the dependency
// runs the other way: syscalls/linux imports kernel for *Task).
func NewTable(handlers map[uintptr]Handler) Table {
	t := make(Table, len(handlers))
	for nr, h := range handlers {
		t[nr] = h
	}
	return t
}

// errNoSys is returned for syscall numbers absent from the table.
var errNoSys = kernerr.Libc(unix.ENOSYS)

// Dispatch executes the syscall numbered nr against t, encoding the
// result into t.Arch.Regs.RAX per spec.md §4.6: n on success, -errno on
// failure. A KindSyscallRestart error instead rewinds RIP so the
// instruction re-executes once the (bookkeeping-only) signal prologue
// has run; it does not touch RAX. A panic inside the handler is
// recovered, logged at error level with its stack trace, and encoded as
// -EINVAL.
func (tbl Table) Dispatch(t *Task) {
	nr := t.Arch.Regs.SyscallNo()
	args := t.Arch.Regs.SyscallArgs()

	h, ok := tbl[nr]
	if !ok {
		t.Arch.Regs.SetSyscallReturn(0, int(errNoSys.Code))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			seclog.Errorf("kernel: panic in handler for syscall %d: %v\n%s", nr, r, debug.Stack())
			t.Arch.Regs.SetSyscallReturn(0, int(unix.EINVAL))
		}
	}()
	n, err := h(t, args)
	if err == nil {
		t.Arch.Regs.SetSyscallReturn(n, 0)
		return
	}
	if kernerr.Is(err, kernerr.KindSyscallRestart) {
		t.Arch.Regs.RestartSyscall()
		return
	}
	t.Arch.Regs.SetSyscallReturn(0, int(kernerr.AsLibc(err)))
}
