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

// Package linux implements the Linux x86-64 syscall table of spec.md
// §4.6 against the core: each handler reads its arguments out of a
// kernel.Task's registers and returns a value/error pair for
// kernel.Table.Dispatch to encode.
package linux

// Syscall numbers, per the Linux x86-64 syscall ABI. Declared locally
// rather than taken from golang.org/x/sys/unix's SYS_* constants so
// this table only ever depends on the numbers it actually dispatches,
// not that package's full (and platform-varying) set.
const (
	sysRead          = 0
	sysWrite         = 1
	sysOpen          = 2
	sysClose         = 3
	sysStat          = 4
	sysFstat         = 5
	sysLstat         = 6
	sysLseek         = 8
	sysMmap          = 9
	sysMprotect      = 10
	sysMunmap        = 11
	sysBrk           = 12
	sysRtSigaction   = 13
	sysRtSigprocmask = 14
	sysIoctl         = 16
	sysPread64       = 17
	sysPwrite64      = 18
	sysAccess        = 21
	sysMremap        = 25
	sysDup           = 32
	sysDup2          = 33
	sysNanosleep     = 35
	sysGetpid        = 39
	sysSocket        = 41
	sysClone         = 56
	sysFork          = 57
	sysExecve        = 59
	sysExit          = 60
	sysUname         = 63
	sysFcntl         = 72
	sysFlock         = 73
	sysGetcwd        = 79
	sysRename        = 82
	sysMkdir         = 83
	sysRmdir         = 84
	sysUnlink        = 87
	sysSymlink       = 88
	sysReadlink      = 89
	sysChmod         = 90
	sysChown         = 92
	sysGetuid        = 102
	sysGetgid        = 104
	sysGeteuid       = 107
	sysGetegid       = 108
	sysSetuid        = 105
	sysSetgid        = 106
	sysSigaltstack   = 131
	sysArchPrctl     = 158
	sysGetrlimit     = 97
	sysSetrlimit     = 160
	sysGetdents64    = 217
	sysClockGettime  = 228
	sysExitGroup     = 231
	sysFutex         = 202
	sysSetresuid     = 117
	sysSetresgid     = 119
	sysRenameat      = 264
	sysLinkat        = 265
	sysOpenat        = 257
	sysMkdirat       = 258
	sysUnlinkat      = 263
	sysSymlinkat     = 266
	sysReadlinkat    = 267
	sysFchmodat      = 268
	sysFaccessat     = 269
	sysSetgroups     = 116
	sysPrlimit64     = 302
	sysGetrandom     = 318
	sysCapset        = 126
)
