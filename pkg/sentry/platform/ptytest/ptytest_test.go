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

package ptytest

import (
	"testing"

	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
)

// TestStartAndAwaitSyscallStop exercises the real ptrace path against
// /bin/true. It requires CAP_SYS_PTRACE (or an unconfined container)
// and is skipped when ptrace attach is unavailable, as it is in some
// sandboxed CI environments.
func TestStartAndAwaitSyscallStop(t *testing.T) {
	h, err := Start("/bin/true")
	if err != nil {
		t.Skipf("ptytest: ptrace unavailable in this environment: %v", err)
	}
	defer h.Close()

	if h.TID() <= 0 {
		t.Fatalf("TID() = %d, want > 0", h.TID())
	}

	enter, err := h.AwaitSyscallStop()
	if err != nil {
		t.Fatalf("AwaitSyscallStop: %v", err)
	}
	if !enter {
		t.Fatal("expected first syscall-stop to be an entry")
	}

	var regs arch.Regs
	if err := h.TaskInitRegs(&regs); err != nil {
		t.Fatalf("TaskInitRegs: %v", err)
	}
	if regs.SyscallNo() == 0 && regs.RIP == 0 {
		t.Fatal("TaskInitRegs left regs entirely zeroed")
	}

	if err := h.SetRegs(&regs); err != nil {
		t.Fatalf("SetRegs: %v", err)
	}
}
