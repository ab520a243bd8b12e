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

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/clock"
	"github.com/kestrelsentry/sentry/pkg/entropy"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/kernel"
)

// entropySource backs getrandom(2); tests may swap it for
// entropy.NewDeterministic to get reproducible bytes.
var entropySource entropy.Source = entropy.Host{}

// nowNsec is the wall-clock timestamp VFS mutations stamp onto inode
// atime/mtime/ctime fields.
func nowNsec() int64 {
	return time.Now().UnixNano()
}

// utsnameBytes flattens a Utsname struct into its 6*65-byte wire form.
func utsnameBytes(u *linux.Utsname) []byte {
	buf := make([]byte, 0, 6*65)
	buf = append(buf, u.Sysname[:]...)
	buf = append(buf, u.Nodename[:]...)
	buf = append(buf, u.Release[:]...)
	buf = append(buf, u.Version[:]...)
	buf = append(buf, u.Machine[:]...)
	buf = append(buf, u.Domainname[:]...)
	return buf
}

func exit(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	t.ExitStatus = int32(args[0])
	t.Exited = true
	return 0, nil
}

// exitGroup is exit's sole caller-visible difference (killing every
// thread in the group) which does not apply here: there is only ever
// one task, so the two share behavior.
func exitGroup(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return exit(t, args)
}

func getpid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return uintptr(t.TID), nil
}

func getuid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return uintptr(t.Creds.RealKUID), nil
}

func geteuid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return uintptr(t.Creds.EffectiveKUID), nil
}

func getgid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return uintptr(t.Creds.RealKGID), nil
}

func getegid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return uintptr(t.Creds.EffectiveKGID), nil
}

// setuid and the rest of the credential-mutating family fork t.Creds
// rather than mutating it in place, so any goroutine holding an earlier
// *auth.Credentials (e.g. mid-syscall in another task sharing the FD
// table) keeps seeing the pre-change identity.
func setuid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if !t.Creds.HasCapability(auth.CAP_SETUID) {
		return 0, kernerr.Libc(unix.EPERM)
	}
	c := t.Creds.Fork()
	uid := auth.KUID(args[0])
	c.EffectiveKUID = uid
	c.SavedKUID = uid
	t.Creds = c
	return 0, nil
}

func setgid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if !t.Creds.HasCapability(auth.CAP_SETGID) {
		return 0, kernerr.Libc(unix.EPERM)
	}
	c := t.Creds.Fork()
	gid := auth.KGID(args[0])
	c.EffectiveKGID = gid
	c.SavedKGID = gid
	t.Creds = c
	return 0, nil
}

func setresuid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if !t.Creds.HasCapability(auth.CAP_SETUID) {
		return 0, kernerr.Libc(unix.EPERM)
	}
	c := t.Creds.Fork()
	if ruid := int32(args[0]); ruid != -1 {
		c.RealKUID = auth.KUID(ruid)
	}
	if euid := int32(args[1]); euid != -1 {
		c.EffectiveKUID = auth.KUID(euid)
	}
	if suid := int32(args[2]); suid != -1 {
		c.SavedKUID = auth.KUID(suid)
	}
	t.Creds = c
	return 0, nil
}

func setresgid(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if !t.Creds.HasCapability(auth.CAP_SETGID) {
		return 0, kernerr.Libc(unix.EPERM)
	}
	c := t.Creds.Fork()
	if rgid := int32(args[0]); rgid != -1 {
		c.RealKGID = auth.KGID(rgid)
	}
	if egid := int32(args[1]); egid != -1 {
		c.EffectiveKGID = auth.KGID(egid)
	}
	if sgid := int32(args[2]); sgid != -1 {
		c.SavedKGID = auth.KGID(sgid)
	}
	t.Creds = c
	return 0, nil
}

func setgroups(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if !t.Creds.HasCapability(auth.CAP_SETGID) {
		return 0, kernerr.Libc(unix.EPERM)
	}
	n := int(args[0])
	buf := make([]byte, 4*n)
	if n > 0 {
		if _, err := t.MM.CopyIn(hostarch.Addr(args[1]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
	}
	gids := make([]auth.KGID, n)
	for i := 0; i < n; i++ {
		gids[i] = auth.KGID(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	c := t.Creds.Fork()
	c.ExtraKGIDs = gids
	t.Creds = c
	return 0, nil
}

// arch_prctl's subfunctions, per the x86-64 ABI.
const (
	archSetFS = 0x1002
	archGetFS = 0x1003
	archSetGS = 0x1001
	archGetGS = 0x1004
)

func archPrctl(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	switch args[0] {
	case archSetFS:
		t.Arch.Regs.FSBase = uint64(args[1])
		return 0, nil
	case archGetFS:
		if _, err := t.MM.CopyOut(hostarch.Addr(args[1]), u64le(t.Arch.Regs.FSBase)); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		return 0, nil
	case archSetGS:
		t.Arch.Regs.GSBase = uint64(args[1])
		return 0, nil
	case archGetGS:
		if _, err := t.MM.CopyOut(hostarch.Addr(args[1]), u64le(t.Arch.Regs.GSBase)); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		return 0, nil
	default:
		return 0, kernerr.Libc(unix.EINVAL)
	}
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func uname(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	var u linux.Utsname
	copy(u.Sysname[:], "Linux")
	copy(u.Nodename[:], "sentry")
	copy(u.Release[:], "5.0.0-sentry")
	copy(u.Version[:], "#1 SMP")
	copy(u.Machine[:], "x86_64")

	buf := utsnameBytes(&u)
	if _, err := t.MM.CopyOut(hostarch.Addr(args[0]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return 0, nil
}

func clockGettime(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	var id clock.ID
	switch int32(args[0]) {
	case 0: // CLOCK_REALTIME
		id = clock.Realtime
	default: // CLOCK_MONOTONIC and friends
		id = clock.Monotonic
	}
	c := t.Clock
	if c == nil {
		c = clock.NewHost()
	}
	ns := c.Now(id)
	ts := linux.Timespec{Sec: ns / 1e9, Nsec: ns % 1e9}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], uint64(ts.Sec))
	binary.LittleEndian.PutUint64(buf[8:], uint64(ts.Nsec))
	if _, err := t.MM.CopyOut(hostarch.Addr(args[1]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return 0, nil
}

func nanosleep(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	buf := make([]byte, 16)
	if _, err := t.MM.CopyIn(hostarch.Addr(args[0]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	sec := int64(binary.LittleEndian.Uint64(buf[0:]))
	nsec := int64(binary.LittleEndian.Uint64(buf[8:]))
	d := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond

	c := t.Clock
	if c == nil {
		c = clock.NewHost()
	}
	if woken := c.Sleep(d, nil); woken {
		return 0, kernerr.SyscallRestart
	}
	return 0, nil
}

func getrlimit(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	res := int(args[0])
	if res < 0 || res >= len(t.Rlimits) {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	rl := t.Rlimits[res]
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], rl.Cur)
	binary.LittleEndian.PutUint64(buf[8:], rl.Max)
	if _, err := t.MM.CopyOut(hostarch.Addr(args[1]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return 0, nil
}

func setrlimit(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	res := int(args[0])
	if res < 0 || res >= len(t.Rlimits) {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	buf := make([]byte, 16)
	if _, err := t.MM.CopyIn(hostarch.Addr(args[1]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	t.Rlimits[res] = linux.Rlimit64{
		Cur: binary.LittleEndian.Uint64(buf[0:]),
		Max: binary.LittleEndian.Uint64(buf[8:]),
	}
	return 0, nil
}

// prlimit64 only supports pid==0 (the calling task itself): there is
// no notion of a second task to target.
func prlimit64(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	pid := int32(args[0])
	if pid != 0 && pid != t.TID {
		return 0, kernerr.Libc(unix.ESRCH)
	}
	res := int(args[1])
	if res < 0 || res >= len(t.Rlimits) {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	if args[3] != 0 {
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint64(buf[0:], t.Rlimits[res].Cur)
		binary.LittleEndian.PutUint64(buf[8:], t.Rlimits[res].Max)
		if _, err := t.MM.CopyOut(hostarch.Addr(args[3]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
	}
	if args[2] != 0 {
		buf := make([]byte, 16)
		if _, err := t.MM.CopyIn(hostarch.Addr(args[2]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		t.Rlimits[res] = linux.Rlimit64{
			Cur: binary.LittleEndian.Uint64(buf[0:]),
			Max: binary.LittleEndian.Uint64(buf[8:]),
		}
	}
	return 0, nil
}

// capset returns ENOSYS and changes no state: the sentry grants every
// capability to root-equivalent credentials up front and has no
// per-task capability narrowing path.
func capset(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return 0, kernerr.Libc(unix.ENOSYS)
}

// stack_t is 24 bytes on x86-64: ss_sp@0 (8), ss_flags@8 (4, padded to
// 8), ss_size@16 (8).
func sigaltstack(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if args[1] != 0 {
		buf := make([]byte, 24)
		binary.LittleEndian.PutUint64(buf[0:], uint64(t.Sigaltstack.Addr))
		binary.LittleEndian.PutUint32(buf[8:], uint32(t.Sigaltstack.Flags))
		binary.LittleEndian.PutUint64(buf[16:], t.Sigaltstack.Size)
		if _, err := t.MM.CopyOut(hostarch.Addr(args[1]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
	}
	if args[0] != 0 {
		buf := make([]byte, 24)
		if _, err := t.MM.CopyIn(hostarch.Addr(args[0]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		t.Sigaltstack = kernel.SigaltstackDesc{
			Addr:  hostarch.Addr(binary.LittleEndian.Uint64(buf[0:])),
			Flags: int32(binary.LittleEndian.Uint32(buf[8:])),
			Size:  binary.LittleEndian.Uint64(buf[16:]),
		}
	}
	return 0, nil
}

// rtSigaction and rtSigprocmask are bookkeeping-only: spec.md's
// explicit Non-goal excludes actual signal delivery, so these handlers
// record the requested state and never arm a real handler.
func rtSigaction(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	sig := int(args[0])
	if sig < 0 || sig >= len(t.Signals.Handlers) {
		return 0, kernerr.Libc(unix.EINVAL)
	}
	if args[1] != 0 {
		buf := make([]byte, 24)
		if _, err := t.MM.CopyIn(hostarch.Addr(args[1]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		t.Signals.Handlers[sig] = kernel.SigAction{
			Handler: uintptr(binary.LittleEndian.Uint64(buf[0:])),
			Flags:   binary.LittleEndian.Uint64(buf[8:]),
		}
	}
	return 0, nil
}

func rtSigprocmask(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	how := args[0]
	if args[1] != 0 {
		buf := make([]byte, 8)
		if _, err := t.MM.CopyIn(hostarch.Addr(args[1]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		newMask := linux.SigSet(binary.LittleEndian.Uint64(buf))
		const (
			sigBlock   = 0
			sigUnblock = 1
			sigSetmask = 2
		)
		switch how {
		case sigBlock:
			t.Signals.Mask |= newMask
		case sigUnblock:
			t.Signals.Mask &^= newMask
		case sigSetmask:
			t.Signals.Mask = newMask
		}
	}
	return 0, nil
}

func getrandom(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	n := int(args[1])
	buf := make([]byte, n)
	src := entropySource
	if err := src.Fill(buf); err != nil {
		return 0, kernerr.Libc(unix.EIO)
	}
	if _, err := t.MM.CopyOut(hostarch.Addr(args[0]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return uintptr(n), nil
}
