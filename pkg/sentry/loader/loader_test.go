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

package loader

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/mm"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
)

type fixedEntropy struct{}

func (fixedEntropy) Fill(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// buildMinimalELF assembles a single-PT_LOAD, non-PIE ELF64/x86-64
// executable embedding data at vaddr, with its entry point at the
// start of that segment.
func buildMinimalELF(vaddr uint64, data []byte) []byte {
	const ehsize = 64
	const phentsize = 56
	const phoff = ehsize

	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* ELFDATA2LSB */, 1, 0})
	buf.Write(make([]byte, 8)) // EI_PAD
	binary.Write(&buf, binary.LittleEndian, uint16(2))            // e_type = ET_EXEC
	binary.Write(&buf, binary.LittleEndian, uint16(62))           // e_machine = EM_X86_64
	binary.Write(&buf, binary.LittleEndian, uint32(1))            // e_version
	binary.Write(&buf, binary.LittleEndian, uint64(vaddr))        // e_entry
	binary.Write(&buf, binary.LittleEndian, uint64(phoff))        // e_phoff
	binary.Write(&buf, binary.LittleEndian, uint64(0))            // e_shoff
	binary.Write(&buf, binary.LittleEndian, uint32(0))            // e_flags
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))       // e_ehsize
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize))    // e_phentsize
	binary.Write(&buf, binary.LittleEndian, uint16(1))            // e_phnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))            // e_shentsize
	binary.Write(&buf, binary.LittleEndian, uint16(0))            // e_shnum
	binary.Write(&buf, binary.LittleEndian, uint16(0))            // e_shstrndx

	segOff := uint64(ehsize + phentsize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))             // p_type = PT_LOAD
	binary.Write(&buf, binary.LittleEndian, uint32(5))              // p_flags = R|X
	binary.Write(&buf, binary.LittleEndian, segOff)                 // p_offset
	binary.Write(&buf, binary.LittleEndian, vaddr)                  // p_vaddr
	binary.Write(&buf, binary.LittleEndian, vaddr)                  // p_paddr
	binary.Write(&buf, binary.LittleEndian, uint64(len(data)))      // p_filesz
	binary.Write(&buf, binary.LittleEndian, uint64(len(data)))      // p_memsz
	binary.Write(&buf, binary.LittleEndian, uint64(hostarch.PageSize)) // p_align

	buf.Write(data)
	return buf.Bytes()
}

func newTestMM(t *testing.T) *mm.MemoryManager {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile("loader-test", 2<<20)
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	t.Cleanup(func() { mf.Close() })
	layout, err := mm.NewMmapLayout(hostarch.Addr(0x10000), hostarch.Addr(0x10000000), 0x100000, fixedEntropy{})
	if err != nil {
		t.Fatalf("NewMmapLayout: %v", err)
	}
	return mm.NewMemoryManager(mf, layout)
}

func TestLoadELFMapsSegmentAtEntry(t *testing.T) {
	const vaddr = 0x400000
	code := []byte{0x90, 0x90, 0xc3} // nop; nop; ret
	img := buildMinimalELF(vaddr, code)

	m := newTestMM(t)
	result, err := LoadELF(m, img, nil)
	if err != nil {
		t.Fatalf("LoadELF: %v", err)
	}
	if result.Entry != hostarch.Addr(vaddr) {
		t.Errorf("Entry = %#x, want %#x", result.Entry, vaddr)
	}
	if result.BrkStart <= result.Entry {
		t.Errorf("BrkStart %#x should be above the loaded segment %#x", result.BrkStart, result.Entry)
	}

	got := make([]byte, len(code))
	if _, err := m.CopyIn(result.Entry, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if !bytes.Equal(got, code) {
		t.Errorf("segment contents = %v, want %v", got, code)
	}
}

type fakeVDSO struct {
	data []byte
}

func (v fakeVDSO) Bytes() []byte     { return v.data }
func (v fakeVDSO) EntryOffset() uint64 { return 0 }

func TestLoadELFPlacesVDSOAboveSegments(t *testing.T) {
	const vaddr = 0x400000
	img := buildMinimalELF(vaddr, []byte{0xc3})

	m := newTestMM(t)
	vdso := fakeVDSO{data: bytes.Repeat([]byte{0x90}, hostarch.PageSize)}
	result, err := LoadELF(m, img, vdso)
	if err != nil {
		t.Fatalf("LoadELF: %v", err)
	}
	if result.VDSOBase <= result.BrkStart {
		t.Errorf("VDSOBase %#x should be above BrkStart %#x", result.VDSOBase, result.BrkStart)
	}

	got := make([]byte, hostarch.PageSize)
	if _, err := m.CopyIn(result.VDSOBase, got); err != nil {
		t.Fatalf("CopyIn vdso: %v", err)
	}
	if !bytes.Equal(got, vdso.data) {
		t.Error("vdso contents mismatch")
	}
}

func TestBuildAuxVectorIncludesVDSOEntry(t *testing.T) {
	auxv := BuildAuxVector(0x400000, 0x400040, 56, 1, 0x500000)
	found := false
	for _, e := range auxv {
		if e.Key == 33 {
			found = true
			if e.Value != 0x500000 {
				t.Errorf("AT_SYSINFO_EHDR = %#x, want 0x500000", e.Value)
			}
		}
	}
	if !found {
		t.Error("AT_SYSINFO_EHDR missing from auxv")
	}
}

func TestBuildAuxVectorOmitsVDSOWhenAbsent(t *testing.T) {
	auxv := BuildAuxVector(0x400000, 0x400040, 56, 1, 0)
	for _, e := range auxv {
		if e.Key == 33 {
			t.Error("AT_SYSINFO_EHDR present despite no vdso")
		}
	}
}
