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
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/kernel"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
	"github.com/kestrelsentry/sentry/pkg/sentry/mm"
)

const (
	protRead  = 0x1
	protWrite = 0x2
	protExec  = 0x4

	mapShared   = 0x1
	mapPrivate  = 0x2
	mapFixed    = 0x10
	mapAnon     = 0x20
	mapGrowsDown = 0x100
)

func accessFromProt(prot uintptr) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    prot&protRead != 0,
		Write:   prot&protWrite != 0,
		Execute: prot&protExec != 0,
	}
}

func mmap(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	length := uint64(args[1])
	prot := args[2]
	flags := args[3]

	perms := accessFromProt(prot)
	opts := memmap.MMapOpts{
		Length:    length,
		Addr:      hostarch.Addr(args[0]),
		Fixed:     flags&mapFixed != 0,
		Unmap:     flags&mapFixed != 0,
		GrowsDown: flags&mapGrowsDown != 0,
		Perms:     perms,
		MaxPerms:  hostarch.AnyAccess,
		Private:   flags&mapShared == 0,
	}
	addr, err := t.MM.MMap(opts)
	if err != nil {
		return 0, err
	}
	return uintptr(addr), nil
}

func munmap(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	if err := t.MM.Munmap(hostarch.Addr(args[0]), uint64(args[1])); err != nil {
		return 0, err
	}
	return 0, nil
}

func mprotect(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	perms := accessFromProt(args[2])
	if err := t.MM.Mprotect(hostarch.Addr(args[0]), uint64(args[1]), perms); err != nil {
		return 0, err
	}
	return 0, nil
}

const (
	mremapMaymove = 0x1
	mremapFixed   = 0x2
)

func mremap(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	flags := args[3]
	opts := mm.MRemapOpts{
		Move:      flags&mremapMaymove != 0,
		Fixed:     flags&mremapFixed != 0,
		FixedAddr: hostarch.Addr(args[4]),
	}
	addr, err := t.MM.MRemap(hostarch.Addr(args[0]), uint64(args[1]), uint64(args[2]), opts)
	if err != nil {
		return 0, err
	}
	return uintptr(addr), nil
}

// brk never surfaces an error to the guest: the raw brk(2) syscall
// always "succeeds", returning whatever the resulting break ended up
// being (unchanged, if the requested move was rejected).
func brk(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	newBrk, _ := t.MM.Brk(hostarch.Addr(args[0]))
	return uintptr(newBrk), nil
}

// futexGet/futexSet back a Futex type with somewhere to land once
// futex(2) grows real wait-queue semantics; the syscall itself stays a
// stub (ENOSYS) per spec.md §9's explicit guidance.
type Futex struct {
	word uint32
}

func (f *Futex) Get() uint32     { return f.word }
func (f *Futex) Set(v uint32)    { f.word = v }

func futex(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return 0, kernerr.Libc(unix.ENOSYS)
}
