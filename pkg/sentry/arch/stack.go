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

package arch

import (
	"encoding/binary"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
)

// memWriter is the subset of *mm.MemoryManager the stack builder needs;
// declared locally so this package doesn't import pkg/sentry/mm (which
// would create an import cycle, since mm's tests exercise arch-shaped
// inputs in spirit but arch must stay below mm in the dependency
// order the loader composes them in).
type memWriter interface {
	CopyOut(addr hostarch.Addr, src []byte) (int, error)
}

// AuxEntry is one (type, value) pair of the ELF auxiliary vector.
type AuxEntry struct {
	Key   uint64
	Value uint64
}

// StackLayout records the addresses of the argv and envp string data,
// per spec.md §4.5 step 6.
type StackLayout struct {
	ArgvStart, ArgvEnd hostarch.Addr
	EnvvStart, EnvvEnd hostarch.Addr
}

// Stack builds the initial process stack image below Bottom.
type Stack struct {
	MM     memWriter
	Bottom hostarch.Addr
}

// Load writes args, envv, and auxv onto the stack below s.Bottom and
// returns the new stack pointer along with the layout of the string
// data, following spec.md §4.5's six-step construction.
func (s *Stack) Load(args, envv []string, auxv []AuxEntry) (hostarch.Addr, StackLayout, error) {
	bottom := uint64(s.Bottom) &^ 15 // step 1: 16-byte align

	writeString := func(bottom uint64, str string) (uint64, hostarch.Addr, error) {
		b := append([]byte(str), 0)
		bottom -= uint64(len(b))
		addr := hostarch.Addr(bottom)
		if _, err := s.MM.CopyOut(addr, b); err != nil {
			return 0, 0, err
		}
		return bottom, addr, nil
	}

	// Step 2: environment strings, downward; record addresses in order.
	envvEnd := hostarch.Addr(bottom)
	envAddrs := make([]hostarch.Addr, len(envv))
	for i := len(envv) - 1; i >= 0; i-- {
		var addr hostarch.Addr
		var err error
		bottom, addr, err = writeString(bottom, envv[i])
		if err != nil {
			return 0, StackLayout{}, err
		}
		envAddrs[i] = addr
	}
	envvStart := hostarch.Addr(bottom)

	// Step 3: argument strings, downward.
	argAddrs := make([]hostarch.Addr, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		var addr hostarch.Addr
		var err error
		bottom, addr, err = writeString(bottom, args[i])
		if err != nil {
			return 0, StackLayout{}, err
		}
		argAddrs[i] = addr
	}
	argvEnd := envvStart
	argvStart := hostarch.Addr(bottom)

	// Step 4: total size of argc + argv[] + envp[] + auxv[], padded to a
	// 32-byte-aligned final bottom.
	argc := uint64(len(args))
	envc := uint64(len(envv))
	auxc := uint64(len(auxv))
	total := 8*(argc+1) + 8*(envc+1) + 8*2*(auxc+1) + 8
	bottom -= total
	bottom &^= 31

	cur := bottom
	write64 := func(v uint64) error {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		if _, err := s.MM.CopyOut(hostarch.Addr(cur), b[:]); err != nil {
			return err
		}
		cur += 8
		return nil
	}

	// Step 5a: argc.
	if err := write64(argc); err != nil {
		return 0, StackLayout{}, err
	}
	// Step 5b: argv pointer array, NUL-terminated.
	for _, a := range argAddrs {
		if err := write64(uint64(a)); err != nil {
			return 0, StackLayout{}, err
		}
	}
	if err := write64(0); err != nil {
		return 0, StackLayout{}, err
	}
	// Step 5c: envp pointer array, NUL-terminated.
	for _, a := range envAddrs {
		if err := write64(uint64(a)); err != nil {
			return 0, StackLayout{}, err
		}
	}
	if err := write64(0); err != nil {
		return 0, StackLayout{}, err
	}
	// Step 5d: auxv, flattened key,value pairs terminated by (0,0).
	for _, e := range auxv {
		if err := write64(e.Key); err != nil {
			return 0, StackLayout{}, err
		}
		if err := write64(e.Value); err != nil {
			return 0, StackLayout{}, err
		}
	}
	if err := write64(0); err != nil {
		return 0, StackLayout{}, err
	}
	if err := write64(0); err != nil {
		return 0, StackLayout{}, err
	}

	return hostarch.Addr(bottom), StackLayout{
		ArgvStart: argvStart,
		ArgvEnd:   argvEnd,
		EnvvStart: envvStart,
		EnvvEnd:   envvEnd,
	}, nil
}
