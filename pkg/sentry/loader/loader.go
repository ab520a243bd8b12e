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

// Package loader implements spec.md's ELF/VDSO loader (named in the
// core's module table but not otherwise detailed): it maps a
// statically-linked or PIE binary's PT_LOAD segments into a fresh
// MemoryManager, computes the PIE load bias, places brk immediately
// past the last segment, and places the VDSO and an auxiliary vector.
package loader

import (
	"debug/elf"
	"fmt"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/sentry/arch"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
	"github.com/kestrelsentry/sentry/pkg/sentry/mm"
)

// VDSOImage supplies the VDSO's bytes and entry point. Per spec.md §1,
// the VDSO ELF's actual bytes are an external collaborator's concern;
// the loader only decides where to map them.
type VDSOImage interface {
	// Bytes returns the VDSO image's raw ELF bytes.
	Bytes() []byte
	// EntryOffset is the VDSO's entry point, relative to its own base.
	EntryOffset() uint64
}

// LoadResult is everything the kernel needs to start the guest at its
// entry point: the entry address, the computed brk region, and (if a
// VDSO was loaded) its base address.
type LoadResult struct {
	Entry    hostarch.Addr
	BrkStart hostarch.Addr
	VDSOBase hostarch.Addr
}

const pageSize = uint64(hostarch.PageSize)

// pageRoundUp rounds n up to a page boundary.
func pageRoundUp(n uint64) uint64 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// LoadELF maps elfBytes' PT_LOAD segments into m, sets up brk, and
// optionally maps vdso one guard page above the highest loaded segment.
// It returns the (possibly PIE-biased) entry address.
func LoadELF(m *mm.MemoryManager, elfBytes []byte, vdso VDSOImage) (LoadResult, error) {
	f, err := elf.NewFile(bytesReaderAt(elfBytes))
	if err != nil {
		return LoadResult{}, fmt.Errorf("loader: parsing ELF: %w", err)
	}

	pie := f.Type == elf.ET_DYN
	var bias uint64
	if pie {
		// Place a PIE binary at a fixed, generous base; a production
		// loader would pick this randomly from the MM's layout, but
		// spec.md's ASLR testable property concerns mmap/brk bases,
		// not the main executable's.
		bias = 0x555555554000
	}

	var maxEnd uint64
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segStart := pageRoundUpToStart(bias + p.Vaddr)
		segEnd := pageRoundUp(bias + p.Vaddr + p.Memsz)
		length := segEnd - segStart

		perms := permsFor(p.Flags)
		addr, err := m.MMap(memmap.MMapOpts{
			Length:   length,
			Addr:     hostarch.Addr(segStart),
			Fixed:    true,
			Unmap:    true,
			Perms:    hostarch.ReadWrite,
			MaxPerms: hostarch.AnyAccess,
			Private:  true,
			Hint:     "[load]",
		})
		if err != nil {
			return LoadResult{}, fmt.Errorf("loader: mapping segment at %#x: %w", segStart, err)
		}

		data := make([]byte, p.Filesz)
		if _, err := p.ReadAt(data, 0); err != nil {
			return LoadResult{}, fmt.Errorf("loader: reading segment: %w", err)
		}
		fileOff := (bias + p.Vaddr) - segStart
		if _, err := m.CopyOut(addr+hostarch.Addr(fileOff), data); err != nil {
			return LoadResult{}, fmt.Errorf("loader: writing segment: %w", err)
		}

		if perms != hostarch.ReadWrite {
			if err := m.Mprotect(addr, length, perms); err != nil {
				return LoadResult{}, fmt.Errorf("loader: mprotect segment: %w", err)
			}
		}

		if segEnd > maxEnd {
			maxEnd = segEnd
		}
	}

	brkStart := hostarch.Addr(maxEnd)
	m.SetBrk(hostarch.AddrRange{Start: brkStart, End: brkStart})

	result := LoadResult{
		Entry:    hostarch.Addr(bias + f.Entry),
		BrkStart: brkStart,
	}

	if vdso != nil {
		vdsoBase := hostarch.Addr(pageRoundUp(maxEnd) + pageSize) // one guard page
		data := vdso.Bytes()
		length := pageRoundUp(uint64(len(data)))
		addr, err := m.MMap(memmap.MMapOpts{
			Length:   length,
			Addr:     vdsoBase,
			Fixed:    true,
			Unmap:    true,
			Perms:    hostarch.Read.Union(hostarch.Execute),
			MaxPerms: hostarch.Read.Union(hostarch.Execute),
			Private:  true,
			Hint:     "[vdso]",
		})
		if err != nil {
			return LoadResult{}, fmt.Errorf("loader: mapping vdso: %w", err)
		}
		if _, err := m.CopyOut(addr, data); err != nil {
			return LoadResult{}, fmt.Errorf("loader: writing vdso: %w", err)
		}
		result.VDSOBase = addr
	}

	return result, nil
}

func pageRoundUpToStart(addr uint64) uint64 {
	return addr &^ (pageSize - 1)
}

func permsFor(flags elf.ProgFlag) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    flags&elf.PF_R != 0,
		Write:   flags&elf.PF_W != 0,
		Execute: flags&elf.PF_X != 0,
	}
}

// BuildAuxVector assembles the standard auxiliary vector entries the
// C runtime expects at process start.
func BuildAuxVector(entry, phdrAddr hostarch.Addr, phentsize, phnum int, vdsoBase hostarch.Addr) []arch.AuxEntry {
	auxv := []arch.AuxEntry{
		{Key: 3, Value: uint64(phdrAddr)},     // AT_PHDR
		{Key: 4, Value: uint64(phentsize)},    // AT_PHENT
		{Key: 5, Value: uint64(phnum)},        // AT_PHNUM
		{Key: 6, Value: uint64(pageSize)},     // AT_PAGESZ
		{Key: 9, Value: uint64(entry)},        // AT_ENTRY
		{Key: 11, Value: 0},                   // AT_UID
		{Key: 12, Value: 0},                   // AT_EUID
		{Key: 13, Value: 0},                   // AT_GID
		{Key: 14, Value: 0},                   // AT_EGID
		{Key: 23, Value: 0},                   // AT_SECURE
	}
	if vdsoBase != 0 {
		auxv = append(auxv, arch.AuxEntry{Key: 33, Value: uint64(vdsoBase)}) // AT_SYSINFO_EHDR
	}
	return auxv
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, fmt.Errorf("loader: read past end of ELF image")
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, fmt.Errorf("loader: short read")
	}
	return n, nil
}
