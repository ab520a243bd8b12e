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

package mm

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
)

type fixedEntropy struct{}

func (fixedEntropy) Fill(b []byte) error {
	_, err := rand.Read(b)
	return err
}

func testLayout(t *testing.T) MmapLayout {
	t.Helper()
	layout, err := NewMmapLayout(hostarch.Addr(0x10000), hostarch.Addr(0x10000000), 0x100000, fixedEntropy{})
	if err != nil {
		t.Fatalf("NewMmapLayout: %v", err)
	}
	return layout
}

func TestNewMmapLayoutBounds(t *testing.T) {
	layout := testLayout(t)
	if layout.BottomUpBase < layout.MinAddr || layout.BottomUpBase > layout.MaxAddr {
		t.Errorf("BottomUpBase %#x out of [%#x, %#x]", layout.BottomUpBase, layout.MinAddr, layout.MaxAddr)
	}
	if layout.TopDownBase < layout.MinAddr || layout.TopDownBase > layout.MaxAddr {
		t.Errorf("TopDownBase %#x out of [%#x, %#x]", layout.TopDownBase, layout.MinAddr, layout.MaxAddr)
	}
}

func TestNewMmapLayoutInvalid(t *testing.T) {
	if _, err := NewMmapLayout(hostarch.Addr(0x1000), hostarch.Addr(0x100), 0, fixedEntropy{}); err == nil {
		t.Error("NewMmapLayout with min > max: got nil error, want non-nil")
	}
}

func newTestMM(t *testing.T) (*MemoryManager, *pgalloc.MemoryFile) {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile("mm-test", 2<<20)
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	t.Cleanup(func() { mf.Close() })
	return NewMemoryManager(mf, testLayout(t)), mf
}

func TestMMapAnonRoundTrip(t *testing.T) {
	mm, _ := newTestMM(t)
	addr, err := mm.MMap(memmap.MMapOpts{
		Length:    hostarch.PageSize,
		Perms:     hostarch.ReadWrite,
		MaxPerms:  hostarch.AnyAccess,
		Private:   true,
		MLockMode: memmap.MLockNone,
	})
	if err != nil {
		t.Fatalf("MMap: %v", err)
	}

	want := bytes.Repeat([]byte{0x42}, 64)
	if n, err := mm.CopyOut(addr, want); err != nil || n != len(want) {
		t.Fatalf("CopyOut: n=%d err=%v", n, err)
	}

	got := make([]byte, len(want))
	if n, err := mm.CopyIn(addr, got); err != nil || n != len(got) {
		t.Fatalf("CopyIn: n=%d err=%v", n, err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("CopyIn returned %v, want %v", got, want)
	}
}

func TestMunmapThenAccessFaults(t *testing.T) {
	mm, _ := newTestMM(t)
	addr, err := mm.MMap(memmap.MMapOpts{
		Length:   hostarch.PageSize,
		Perms:    hostarch.ReadWrite,
		MaxPerms: hostarch.AnyAccess,
		Private:  true,
	})
	if err != nil {
		t.Fatalf("MMap: %v", err)
	}
	if err := mm.Munmap(addr, hostarch.PageSize); err != nil {
		t.Fatalf("Munmap: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := mm.CopyIn(addr, buf); err == nil {
		t.Error("CopyIn after Munmap: got nil error, want a fault")
	}
}

func TestMprotectRejectsExceedingMaxPerms(t *testing.T) {
	mm, _ := newTestMM(t)
	addr, err := mm.MMap(memmap.MMapOpts{
		Length:   hostarch.PageSize,
		Perms:    hostarch.Read,
		MaxPerms: hostarch.Read,
		Private:  true,
	})
	if err != nil {
		t.Fatalf("MMap: %v", err)
	}
	err = mm.Mprotect(addr, hostarch.PageSize, hostarch.ReadWrite)
	if !kernerr.Is(err, kernerr.KindLibc) {
		t.Errorf("Mprotect beyond MaxPerms: got %v, want a Libc EACCES error", err)
	}
}

func TestMprotectWidensAccess(t *testing.T) {
	mm, _ := newTestMM(t)
	addr, err := mm.MMap(memmap.MMapOpts{
		Length:   hostarch.PageSize,
		Perms:    hostarch.Read,
		MaxPerms: hostarch.AnyAccess,
		Private:  true,
	})
	if err != nil {
		t.Fatalf("MMap: %v", err)
	}
	if err := mm.Mprotect(addr, hostarch.PageSize, hostarch.ReadWrite); err != nil {
		t.Fatalf("Mprotect: %v", err)
	}
	if n, err := mm.CopyOut(addr, []byte{1, 2, 3}); err != nil || n != 3 {
		t.Fatalf("CopyOut after widening Mprotect: n=%d err=%v", n, err)
	}
}

func TestBrkGrowsAndShrinks(t *testing.T) {
	mm, _ := newTestMM(t)
	base := hostarch.Addr(0x500000)
	mm.SetBrk(hostarch.AddrRange{Start: base, End: base})

	grown, err := mm.Brk(base + hostarch.PageSize)
	if err != nil {
		t.Fatalf("Brk grow: %v", err)
	}
	if grown != base+hostarch.PageSize {
		t.Errorf("Brk grow returned %#x, want %#x", grown, base+hostarch.PageSize)
	}

	shrunk, err := mm.Brk(base)
	if err != nil {
		t.Fatalf("Brk shrink: %v", err)
	}
	if shrunk != base {
		t.Errorf("Brk shrink returned %#x, want %#x", shrunk, base)
	}
}

func TestMRemapShrink(t *testing.T) {
	mm, _ := newTestMM(t)
	addr, err := mm.MMap(memmap.MMapOpts{
		Length:   4 * hostarch.PageSize,
		Perms:    hostarch.ReadWrite,
		MaxPerms: hostarch.AnyAccess,
		Private:  true,
	})
	if err != nil {
		t.Fatalf("MMap: %v", err)
	}
	newAddr, err := mm.MRemap(addr, 4*hostarch.PageSize, hostarch.PageSize, MRemapOpts{})
	if err != nil {
		t.Fatalf("MRemap shrink: %v", err)
	}
	if newAddr != addr {
		t.Errorf("MRemap shrink moved the mapping: got %#x, want %#x", newAddr, addr)
	}
	if mm.UsageAS() != hostarch.PageSize {
		t.Errorf("UsageAS after shrink = %d, want %d", mm.UsageAS(), uint64(hostarch.PageSize))
	}
}
