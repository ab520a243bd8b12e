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

// Package kernel implements the per-guest execution context and the
// single-threaded cooperative syscall dispatch loop of spec.md §3 and
// §5: one guest task, at most one syscall in flight, with explicit
// yield points only at poll_wait and clock.Sleep.
package kernel

import (
	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/clock"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/mm"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

// RlimitSet is the task's resource limits, indexed by the RLIMIT_*
// constants of pkg/abi/linux.
type RlimitSet [linux.RLIMIT_NLIMITS]linux.Rlimit64

// SignalState is bookkeeping-only: the sentry tracks a guest's signal
// mask, pending set, and handler table for inspection (rt_sigprocmask,
// rt_sigaction) without ever delivering a signal, per spec.md's
// explicit Non-goal of signal delivery beyond bookkeeping.
type SignalState struct {
	Mask     linux.SigSet
	Pending  linux.SigSet
	Handlers [64]SigAction
}

// SigAction mirrors struct sigaction's fields the sentry tracks.
type SigAction struct {
	Handler uintptr
	Flags   uint64
	Mask    linux.SigSet
}

// SigaltstackDesc mirrors struct sigaltstack.
type SigaltstackDesc struct {
	Addr  hostarch.Addr
	Flags int32
	Size  uint64
}

// Task is the sentry's single guest execution context.
type Task struct {
	TID int32

	Arch *arch.ArchContext
	MM   *mm.MemoryManager
	FDs  *vfs.FDTable

	VFS     *vfs.VirtualFilesystem
	MountNS *vfs.MountNamespace
	RootMnt *vfs.Mount
	Root    *vfs.Dentry
	CWDMnt  *vfs.Mount
	CWD     *vfs.Dentry

	Creds  *auth.Credentials
	UserNS *auth.UserNamespace

	Clock clock.Clock

	Rlimits RlimitSet
	Signals SignalState

	Sigaltstack       SigaltstackDesc
	ParentDeathSignal int32
	ClearChildTID     hostarch.Addr
	RobustListHead    hostarch.Addr
	CPUAffinityMask   uint64

	ExitStatus int32
	Exited     bool
}

// NewTask constructs a Task with default resource limits.
func NewTask(tid int32, a *arch.ArchContext, m *mm.MemoryManager, fds *vfs.FDTable, creds *auth.Credentials, userNS *auth.UserNamespace) *Task {
	t := &Task{
		TID:    tid,
		Arch:   a,
		MM:     m,
		FDs:    fds,
		Creds:  creds,
		UserNS: userNS,
		Clock:  clock.NewHost(),
	}
	for i := range t.Rlimits {
		t.Rlimits[i] = linux.Rlimit64{Cur: linux.RlimInfinity, Max: linux.RlimInfinity}
	}
	return t
}

// InitVFS binds t to a mount namespace, with both its root and its
// initial working directory at that namespace's root. Callers that
// need a different starting cwd (e.g. after a chdir) mutate t.CWDMnt/
// t.CWD directly; vfs.VirtualFilesystem itself is namespace-agnostic
// about what a task calls "current".
func (t *Task) InitVFS(v *vfs.VirtualFilesystem, ns *vfs.MountNamespace) {
	t.VFS = v
	t.MountNS = ns
	t.RootMnt = ns.Root()
	t.Root = ns.Root().Root()
	t.CWDMnt = t.RootMnt
	t.CWD = t.Root
}
