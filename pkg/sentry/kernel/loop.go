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
	"github.com/kestrelsentry/sentry/pkg/seclog"
	"github.com/kestrelsentry/sentry/pkg/sentry/platform"
)

// Loop drives t's single-threaded cooperative syscall dispatch: it
// repeatedly waits for a guest syscall stop, dispatches through tbl
// on syscall entry, writes the result back, and resumes, per spec.md
// §5 — at most one syscall is ever in flight, and the only suspension
// points are inside individual handlers (poll_wait, clock.Sleep), not
// here. Loop returns when t.Exited is set by an exit/exit_group
// handler, or when guest reports an error.
func Loop(t *Task, guest platform.GuestController, tbl Table) error {
	for {
		enter, err := guest.AwaitSyscallStop()
		if err != nil {
			return err
		}
		if !enter {
			continue
		}
		if err := guest.TaskInitRegs(&t.Arch.Regs); err != nil {
			return err
		}

		tbl.Dispatch(t)
		if t.Exited {
			return nil
		}

		if err := guest.SetRegs(&t.Arch.Regs); err != nil {
			return err
		}
		seclog.Debugf("kernel: dispatched syscall %d -> rax=%#x", t.Arch.Regs.SyscallNo(), t.Arch.Regs.RAX)
	}
}
