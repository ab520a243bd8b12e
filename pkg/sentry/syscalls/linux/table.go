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

import "github.com/kestrelsentry/sentry/pkg/sentry/kernel"

// NewSyscallTable builds the complete x86-64 syscall table the sentry
// dispatches against. Syscall numbers absent here fall through to
// kernel.Table.Dispatch's own ENOSYS default.
func NewSyscallTable() kernel.Table {
	return kernel.NewTable(map[uintptr]kernel.Handler{
		sysRead:          read,
		sysWrite:         write,
		sysOpen:          open,
		sysClose:         closeFD,
		sysStat:          stat,
		sysFstat:         fstat,
		sysLstat:         lstat,
		sysLseek:         lseek,
		sysMmap:          mmap,
		sysMprotect:      mprotect,
		sysMunmap:        munmap,
		sysBrk:           brk,
		sysRtSigaction:   rtSigaction,
		sysRtSigprocmask: rtSigprocmask,
		sysMremap:        mremap,
		sysNanosleep:     nanosleep,
		sysGetpid:        getpid,
		sysExit:          exit,
		sysUname:         uname,
		sysMkdir:         mkdir,
		sysRmdir:         rmdir,
		sysUnlink:        unlink,
		sysSymlink:       symlink,
		sysReadlink:      readlink,
		sysGetuid:        getuid,
		sysGetgid:        getgid,
		sysGeteuid:       geteuid,
		sysGetegid:       getegid,
		sysSetuid:        setuid,
		sysSetgid:        setgid,
		sysSigaltstack:   sigaltstack,
		sysArchPrctl:     archPrctl,
		sysGetrlimit:     getrlimit,
		sysSetrlimit:     setrlimit,
		sysGetdents64:    getdents64,
		sysClockGettime:  clockGettime,
		sysExitGroup:     exitGroup,
		sysFutex:         futex,
		sysSetresuid:     setresuid,
		sysSetresgid:     setresgid,
		sysRename:        rename,
		sysRenameat:      renameat,
		sysLinkat:        linkat,
		sysOpenat:        openat,
		sysMkdirat:       mkdirat,
		sysUnlinkat:      unlinkat,
		sysSymlinkat:     symlinkat,
		sysReadlinkat:    readlinkat,
		sysSetgroups:     setgroups,
		sysPrlimit64:     prlimit64,
		sysGetrandom:     getrandom,
		sysCapset:        capset,
		sysFlock:         flock,
		sysFcntl:         fcntl,
	})
}
