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

// Package ptytest provides a platform.GuestController backed by a real
// ptraced child process attached to a pty, for exercising the guest
// controller contract end to end in tests without a production ptrace
// driver.
package ptytest

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/kr/pty"
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
)

// Harness attaches to a child process started under ptrace, with its
// stdio connected to a pty, and implements platform.GuestController
// against it.
type Harness struct {
	cmd    *exec.Cmd
	master *os.File
	pid    int

	inSyscall bool
}

// Start launches name(args...) under ptrace, attached to a fresh pty,
// and waits for its initial post-exec SIGTRAP stop.
func Start(name string, args ...string) (*Harness, error) {
	cmd := exec.Command(name, args...)
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("ptytest: opening pty: %w", err)
	}
	defer slave.Close()

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Ptrace:  true,
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		return nil, fmt.Errorf("ptytest: starting child: %w", err)
	}

	h := &Harness{cmd: cmd, master: master, pid: cmd.Process.Pid}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(h.pid, &ws, 0, nil); err != nil {
		h.Close()
		return nil, fmt.Errorf("ptytest: waiting for initial stop: %w", err)
	}
	if !ws.Stopped() {
		h.Close()
		return nil, fmt.Errorf("ptytest: child did not stop after exec, status=%v", ws)
	}

	if err := unix.PtraceSetOptions(h.pid, unix.PTRACE_O_TRACESYSGOOD|unix.PTRACE_O_EXITKILL); err != nil {
		h.Close()
		return nil, fmt.Errorf("ptytest: PtraceSetOptions: %w", err)
	}

	return h, nil
}

// Close releases the pty and kills the child if still alive.
func (h *Harness) Close() error {
	if h.cmd != nil && h.cmd.Process != nil {
		h.cmd.Process.Kill()
		h.cmd.Wait()
	}
	if h.master != nil {
		return h.master.Close()
	}
	return nil
}

// Master returns the pty master end, for tests that want to write
// input to or read output from the traced child.
func (h *Harness) Master() *os.File {
	return h.master
}

// TID implements platform.GuestController.
func (h *Harness) TID() int32 {
	return int32(h.pid)
}

// TaskInitRegs implements platform.GuestController.
func (h *Harness) TaskInitRegs(regs *arch.Regs) error {
	var pr unix.PtraceRegs
	if err := unix.PtraceGetRegs(h.pid, &pr); err != nil {
		return fmt.Errorf("ptytest: PtraceGetRegs: %w", err)
	}
	fromPtraceRegs(&pr, regs)
	return nil
}

// SetRegs implements platform.GuestController.
func (h *Harness) SetRegs(regs *arch.Regs) error {
	pr := toPtraceRegs(regs)
	if err := unix.PtraceSetRegs(h.pid, &pr); err != nil {
		return fmt.Errorf("ptytest: PtraceSetRegs: %w", err)
	}
	return nil
}

// SingleStep implements platform.GuestController.
func (h *Harness) SingleStep() error {
	if err := unix.PtraceSingleStep(h.pid); err != nil {
		return fmt.Errorf("ptytest: PtraceSingleStep: %w", err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(h.pid, &ws, 0, nil); err != nil {
		return fmt.Errorf("ptytest: waiting after single-step: %w", err)
	}
	return nil
}

// AwaitSyscallStop implements platform.GuestController: it resumes the
// child until the next syscall-stop (entry or exit, distinguished by
// PTRACE_O_TRACESYSGOOD's SIGTRAP|0x80 marker) and reports which.
func (h *Harness) AwaitSyscallStop() (enter bool, err error) {
	if err := unix.PtraceSyscall(h.pid, 0); err != nil {
		return false, fmt.Errorf("ptytest: PtraceSyscall: %w", err)
	}

	var ws unix.WaitStatus
	if _, err := unix.Wait4(h.pid, &ws, 0, nil); err != nil {
		return false, fmt.Errorf("ptytest: Wait4: %w", err)
	}
	if ws.Exited() || ws.Signaled() {
		return false, fmt.Errorf("ptytest: child exited, status=%v", ws)
	}
	if !ws.Stopped() {
		return false, nil
	}
	if ws.StopSignal() != (unix.SIGTRAP | 0x80) {
		// A non-syscall stop (e.g. a real signal); report no syscall
		// boundary crossed this round.
		return false, nil
	}

	h.inSyscall = !h.inSyscall
	return h.inSyscall, nil
}

func fromPtraceRegs(pr *unix.PtraceRegs, r *arch.Regs) {
	r.R15 = pr.R15
	r.R14 = pr.R14
	r.R13 = pr.R13
	r.R12 = pr.R12
	r.RBP = pr.Rbp
	r.RBX = pr.Rbx
	r.R11 = pr.R11
	r.R10 = pr.R10
	r.R9 = pr.R9
	r.R8 = pr.R8
	r.RAX = pr.Rax
	r.RCX = pr.Rcx
	r.RDX = pr.Rdx
	r.RSI = pr.Rsi
	r.RDI = pr.Rdi
	r.OrigRAX = pr.Orig_rax
	r.RIP = pr.Rip
	r.CS = pr.Cs
	r.EFlags = pr.Eflags
	r.RSP = pr.Rsp
	r.SS = pr.Ss
	r.FSBase = pr.Fs_base
	r.GSBase = pr.Gs_base
	r.DS = pr.Ds
	r.ES = pr.Es
	r.FS = pr.Fs
	r.GS = pr.Gs
}

func toPtraceRegs(r *arch.Regs) unix.PtraceRegs {
	return unix.PtraceRegs{
		R15:      r.R15,
		R14:      r.R14,
		R13:      r.R13,
		R12:      r.R12,
		Rbp:      r.RBP,
		Rbx:      r.RBX,
		R11:      r.R11,
		R10:      r.R10,
		R9:       r.R9,
		R8:       r.R8,
		Rax:      r.RAX,
		Rcx:      r.RCX,
		Rdx:      r.RDX,
		Rsi:      r.RSI,
		Rdi:      r.RDI,
		Orig_rax: r.OrigRAX,
		Rip:      r.RIP,
		Cs:       r.CS,
		Eflags:   r.EFlags,
		Rsp:      r.RSP,
		Ss:       r.SS,
		Fs_base:  r.FSBase,
		Gs_base:  r.GSBase,
		Ds:       r.DS,
		Es:       r.ES,
		Fs:       r.FS,
		Gs:       r.GS,
	}
}
