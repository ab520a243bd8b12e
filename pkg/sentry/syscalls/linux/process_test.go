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
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/entropy"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
)

func TestExitSetsStatus(t *testing.T) {
	task := newTestTask(t)
	if _, err := exit(task, [6]uintptr{7}); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !task.Exited || task.ExitStatus != 7 {
		t.Errorf("Exited=%v ExitStatus=%d, want true/7", task.Exited, task.ExitStatus)
	}
}

func TestExitGroupSharesExitBehavior(t *testing.T) {
	task := newTestTask(t)
	if _, err := exitGroup(task, [6]uintptr{3}); err != nil {
		t.Fatalf("exit_group: %v", err)
	}
	if !task.Exited || task.ExitStatus != 3 {
		t.Errorf("Exited=%v ExitStatus=%d, want true/3", task.Exited, task.ExitStatus)
	}
}

func TestGetpidReturnsTID(t *testing.T) {
	task := newTestTask(t)
	got, err := getpid(task, [6]uintptr{})
	if err != nil {
		t.Fatalf("getpid: %v", err)
	}
	if got != 1 {
		t.Errorf("getpid = %d, want 1", got)
	}
}

func TestSetuidRequiresCapability(t *testing.T) {
	task := newTestTask(t)
	task.Creds = task.Creds.Fork()
	task.Creds.EffectiveCaps = 0
	if _, err := setuid(task, [6]uintptr{1000}); !kernerr.Is(err, kernerr.KindLibc) || kernerr.AsLibc(err) != unix.EPERM {
		t.Fatalf("setuid without CAP_SETUID = %v, want EPERM", err)
	}
}

func TestSetuidChangesEffectiveAndSavedUID(t *testing.T) {
	task := newTestTask(t)
	if _, err := setuid(task, [6]uintptr{1000}); err != nil {
		t.Fatalf("setuid: %v", err)
	}
	if got, err := geteuid(task, [6]uintptr{}); err != nil || got != 1000 {
		t.Errorf("geteuid = %d, %v, want 1000", got, err)
	}
	if task.Creds.SavedKUID != 1000 {
		t.Errorf("SavedKUID = %d, want 1000", task.Creds.SavedKUID)
	}
}

func TestArchPrctlSetAndGetFS(t *testing.T) {
	task := newTestTask(t)
	if _, err := archPrctl(task, [6]uintptr{archSetFS, 0xdeadbeef}); err != nil {
		t.Fatalf("arch_prctl SET_FS: %v", err)
	}
	if task.Arch.Regs.FSBase != 0xdeadbeef {
		t.Fatalf("FSBase = %#x, want 0xdeadbeef", task.Arch.Regs.FSBase)
	}
	if _, err := archPrctl(task, [6]uintptr{archGetFS, uintptr(scratchAddr)}); err != nil {
		t.Fatalf("arch_prctl GET_FS: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := task.MM.CopyIn(scratchAddr, buf); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if binary.LittleEndian.Uint64(buf) != 0xdeadbeef {
		t.Errorf("GET_FS wrote %#x, want 0xdeadbeef", binary.LittleEndian.Uint64(buf))
	}
}

func TestUnameFillsSysname(t *testing.T) {
	task := newTestTask(t)
	if _, err := uname(task, [6]uintptr{uintptr(scratchAddr)}); err != nil {
		t.Fatalf("uname: %v", err)
	}
	buf := make([]byte, 65)
	if _, err := task.MM.CopyIn(scratchAddr, buf); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	got := string(buf[:5])
	if got != "Linux" {
		t.Errorf("sysname = %q, want %q", got, "Linux")
	}
}

func TestClockGettimeReturnsNonzero(t *testing.T) {
	task := newTestTask(t)
	if _, err := clockGettime(task, [6]uintptr{0, uintptr(scratchAddr)}); err != nil {
		t.Fatalf("clock_gettime: %v", err)
	}
	buf := make([]byte, 16)
	if _, err := task.MM.CopyIn(scratchAddr, buf); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	sec := binary.LittleEndian.Uint64(buf[0:])
	nsec := binary.LittleEndian.Uint64(buf[8:])
	if sec == 0 && nsec == 0 {
		t.Error("clock_gettime wrote an all-zero timespec")
	}
}

func TestNanosleepCompletesWithoutRestart(t *testing.T) {
	task := newTestTask(t)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], 0)
	binary.LittleEndian.PutUint64(buf[8:], 1000) // 1 microsecond
	if _, err := task.MM.CopyOut(scratchAddr, buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if _, err := nanosleep(task, [6]uintptr{uintptr(scratchAddr)}); err != nil {
		t.Fatalf("nanosleep: %v", err)
	}
}

func TestGetrlimitRoundTripsSetrlimit(t *testing.T) {
	task := newTestTask(t)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:], 256)
	binary.LittleEndian.PutUint64(buf[8:], 1024)
	if _, err := task.MM.CopyOut(scratchAddr, buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if _, err := setrlimit(task, [6]uintptr{linux.RLIMIT_NOFILE, uintptr(scratchAddr)}); err != nil {
		t.Fatalf("setrlimit: %v", err)
	}
	if _, err := getrlimit(task, [6]uintptr{linux.RLIMIT_NOFILE, uintptr(scratchAddr + 64)}); err != nil {
		t.Fatalf("getrlimit: %v", err)
	}
	got := make([]byte, 16)
	if _, err := task.MM.CopyIn(scratchAddr+64, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if binary.LittleEndian.Uint64(got[0:]) != 256 || binary.LittleEndian.Uint64(got[8:]) != 1024 {
		t.Errorf("getrlimit = %v, want cur=256 max=1024", got)
	}
}

func TestSigaltstackRoundTrips(t *testing.T) {
	task := newTestTask(t)
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:], uint64(scratchAddr+256))
	binary.LittleEndian.PutUint32(buf[8:], 0)
	binary.LittleEndian.PutUint64(buf[16:], 8192)
	if _, err := task.MM.CopyOut(scratchAddr, buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if _, err := sigaltstack(task, [6]uintptr{uintptr(scratchAddr), 0}); err != nil {
		t.Fatalf("sigaltstack set: %v", err)
	}
	if task.Sigaltstack.Size != 8192 {
		t.Errorf("Sigaltstack.Size = %d, want 8192", task.Sigaltstack.Size)
	}

	if _, err := sigaltstack(task, [6]uintptr{0, uintptr(scratchAddr + 64)}); err != nil {
		t.Fatalf("sigaltstack get: %v", err)
	}
	got := make([]byte, 24)
	if _, err := task.MM.CopyIn(scratchAddr+64, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if binary.LittleEndian.Uint64(got[16:]) != 8192 {
		t.Errorf("returned ss_size = %d, want 8192", binary.LittleEndian.Uint64(got[16:]))
	}
}

func TestRtSigprocmaskSetAndBlock(t *testing.T) {
	task := newTestTask(t)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1<<2)
	if _, err := task.MM.CopyOut(scratchAddr, buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	const sigSetmask = 2
	if _, err := rtSigprocmask(task, [6]uintptr{sigSetmask, uintptr(scratchAddr)}); err != nil {
		t.Fatalf("rt_sigprocmask: %v", err)
	}
	if task.Signals.Mask != 1<<2 {
		t.Errorf("Signals.Mask = %#x, want %#x", task.Signals.Mask, uint64(1<<2))
	}

	binary.LittleEndian.PutUint64(buf, 1<<5)
	if _, err := task.MM.CopyOut(scratchAddr, buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	const sigBlock = 0
	if _, err := rtSigprocmask(task, [6]uintptr{sigBlock, uintptr(scratchAddr)}); err != nil {
		t.Fatalf("rt_sigprocmask SIG_BLOCK: %v", err)
	}
	if task.Signals.Mask != 1<<2|1<<5 {
		t.Errorf("Signals.Mask after SIG_BLOCK = %#x, want %#x", task.Signals.Mask, uint64(1<<2|1<<5))
	}
}

func TestGetrandomFillsBuffer(t *testing.T) {
	prev := entropySource
	entropySource = entropy.NewDeterministic(42)
	defer func() { entropySource = prev }()

	task := newTestTask(t)
	n, err := getrandom(task, [6]uintptr{uintptr(scratchAddr), 16, 0})
	if err != nil {
		t.Fatalf("getrandom: %v", err)
	}
	if n != 16 {
		t.Fatalf("getrandom = %d, want 16", n)
	}
	got := make([]byte, 16)
	if _, err := task.MM.CopyIn(scratchAddr, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	allZero := true
	for _, b := range got {
		if b != 0 {
			allZero = false
		}
	}
	if allZero {
		t.Error("getrandom wrote all-zero bytes")
	}
}
