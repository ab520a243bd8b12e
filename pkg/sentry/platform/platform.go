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

// Package platform declares the guest controller interface of spec.md
// §6: the operations the core requires of whatever drives the guest
// process (a ptrace driver, or the ptytest harness used in tests). The
// core never talks to ptrace directly — it only ever calls through
// this interface, per spec.md §1's exclusion of "the ptrace driver
// loop" from the core itself.
package platform

import "github.com/kestrelsentry/sentry/pkg/sentry/arch"

// GuestController drives one guest task through ptrace (or an
// equivalent debugger-style control channel).
type GuestController interface {
	// TID returns the guest's thread/process id as seen by the host.
	TID() int32
	// TaskInitRegs reads the guest's current register state, as it
	// stands immediately after attach/exec, into regs.
	TaskInitRegs(regs *arch.Regs) error
	// SetRegs writes regs back into the guest's register state.
	SetRegs(regs *arch.Regs) error
	// SingleStep resumes the guest for exactly one instruction, then
	// stops it again. Used to step past a trapped CPUID.
	SingleStep() error
	// AwaitSyscallStop resumes the guest until it either enters or
	// exits a syscall (a ptrace syscall-stop) and reports which.
	AwaitSyscallStop() (enter bool, err error)
}
