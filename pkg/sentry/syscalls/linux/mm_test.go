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
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
)

func TestMmapAnonThenWriteReadBack(t *testing.T) {
	task := newTestTask(t)
	addr, err := mmap(task, [6]uintptr{
		0, uintptr(hostarch.PageSize), protRead | protWrite, mapPrivate | mapAnon, ^uintptr(0), 0,
	})
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	if addr == 0 {
		t.Fatal("mmap returned nil address")
	}

	buf := []byte("payload")
	if _, err := task.MM.CopyOut(hostarch.Addr(addr), buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	got := make([]byte, len(buf))
	if _, err := task.MM.CopyIn(hostarch.Addr(addr), got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("read back = %q, want %q", got, "payload")
	}
}

func TestMunmapThenAccessFaults(t *testing.T) {
	task := newTestTask(t)
	addr, err := mmap(task, [6]uintptr{
		0, uintptr(hostarch.PageSize), protRead | protWrite, mapPrivate | mapAnon, ^uintptr(0), 0,
	})
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	if _, err := munmap(task, [6]uintptr{addr, uintptr(hostarch.PageSize)}); err != nil {
		t.Fatalf("munmap: %v", err)
	}
	if _, err := task.MM.CopyOut(hostarch.Addr(addr), []byte("x")); err == nil {
		t.Error("CopyOut after munmap succeeded, want a fault")
	}
}

func TestMprotectRestrictsWrite(t *testing.T) {
	task := newTestTask(t)
	addr, err := mmap(task, [6]uintptr{
		0, uintptr(hostarch.PageSize), protRead | protWrite, mapPrivate | mapAnon, ^uintptr(0), 0,
	})
	if err != nil {
		t.Fatalf("mmap: %v", err)
	}
	if _, err := mprotect(task, [6]uintptr{addr, uintptr(hostarch.PageSize), protRead}); err != nil {
		t.Fatalf("mprotect: %v", err)
	}
	if _, err := task.MM.CopyOut(hostarch.Addr(addr), []byte("x")); err == nil {
		t.Error("CopyOut after read-only mprotect succeeded, want a fault")
	}
}

func TestBrkAlwaysSucceedsRegardlessOfRequest(t *testing.T) {
	task := newTestTask(t)
	base := hostarch.Addr(0x500000)
	task.MM.SetBrk(hostarch.AddrRange{Start: base, End: base})

	grown, err := brk(task, [6]uintptr{uintptr(base) + hostarch.PageSize})
	if err != nil {
		t.Fatalf("brk grow: %v", err)
	}
	if grown != uintptr(base)+hostarch.PageSize {
		t.Errorf("brk grow = %#x, want %#x", grown, uintptr(base)+hostarch.PageSize)
	}

	// A request below the current start leaves the break unchanged.
	got, err := brk(task, [6]uintptr{1})
	if err != nil {
		t.Fatalf("brk(1) returned an error: %v", err)
	}
	if got != grown {
		t.Errorf("brk(1) = %#x, want unchanged %#x", got, grown)
	}
}

func TestFutexReturnsENOSYS(t *testing.T) {
	task := newTestTask(t)
	if _, err := futex(task, [6]uintptr{}); !kernerr.Is(err, kernerr.KindLibc) || kernerr.AsLibc(err) != unix.ENOSYS {
		t.Fatalf("futex = %v, want ENOSYS", err)
	}
}
