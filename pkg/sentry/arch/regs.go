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

// Package arch implements spec.md §4.5: the guest register snapshot,
// CPUID emulation against a fixed feature set, and the initial stack
// layout built for a freshly exec'd guest.
package arch

// Regs is the x86-64 general-purpose register snapshot ptrace
// GETREGS/SETREGS exchanges with the guest controller.
type Regs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	RBP      uint64
	RBX      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	RAX      uint64
	RCX      uint64
	RDX      uint64
	RSI      uint64
	RDI      uint64
	OrigRAX  uint64
	RIP      uint64
	CS       uint64
	EFlags   uint64
	RSP      uint64
	SS       uint64
	FSBase   uint64
	GSBase   uint64
	DS       uint64
	ES       uint64
	FS       uint64
	GS       uint64
}

// SyscallNo returns the syscall number, per the amd64 ABI's rax-at-entry
// convention (OrigRAX, since the dispatcher overwrites RAX with the
// return value before the guest resumes).
func (r *Regs) SyscallNo() uintptr {
	return uintptr(r.OrigRAX)
}

// SyscallArgs returns the six syscall argument registers in ABI order.
func (r *Regs) SyscallArgs() [6]uintptr {
	return [6]uintptr{
		uintptr(r.RDI),
		uintptr(r.RSI),
		uintptr(r.RDX),
		uintptr(r.R10),
		uintptr(r.R8),
		uintptr(r.R9),
	}
}

// SetSyscallReturn encodes a syscall result into RAX: n on success, or
// -errno on failure, matching the dispatcher contract of spec.md §4.6.
func (r *Regs) SetSyscallReturn(n uintptr, negErrno int) {
	if negErrno != 0 {
		r.RAX = uint64(int64(-negErrno))
		return
	}
	r.RAX = uint64(n)
}

// RestartSyscall rewinds RIP by the 2-byte syscall instruction and
// restores OrigRAX into RAX so the instruction re-executes, per
// spec.md §4.6's SyscallRestart.
func (r *Regs) RestartSyscall() {
	r.RIP -= 2
	r.RAX = r.OrigRAX
}

// ArchContext is the per-task architecture state: the register
// snapshot plus the feature set CPUID emulation answers from.
type ArchContext struct {
	Regs     Regs
	Features *FeatureSet
}

// NewContext returns a zeroed ArchContext using features.
func NewContext(features *FeatureSet) *ArchContext {
	return &ArchContext{Features: features}
}
