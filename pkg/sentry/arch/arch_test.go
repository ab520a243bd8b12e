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
	"testing"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
)

func TestEmulateCPUIDVendorString(t *testing.T) {
	ctx := NewContext(NewFeatureSet())
	ctx.Regs.RAX = 0
	ctx.Regs.RCX = 0
	ctx.EmulateCPUID()
	if ctx.Regs.RAX == 0 {
		t.Fatalf("expected nonzero max leaf in RAX")
	}
	if ctx.Regs.RBX != 0x756e6547 {
		t.Fatalf("RBX = %#x, want Intel vendor string prefix", ctx.Regs.RBX)
	}
}

func TestSetSyscallReturnAndRestart(t *testing.T) {
	var r Regs
	r.OrigRAX = 42
	r.RIP = 0x1000
	r.SetSyscallReturn(7, 0)
	if r.RAX != 7 {
		t.Fatalf("RAX = %d, want 7", r.RAX)
	}
	r.SetSyscallReturn(0, 9) // -EBADF
	if int64(r.RAX) != -9 {
		t.Fatalf("RAX = %d, want -9", int64(r.RAX))
	}
	r.RestartSyscall()
	if r.RIP != 0x0FFE || r.RAX != 42 {
		t.Fatalf("RestartSyscall: RIP=%#x RAX=%d", r.RIP, r.RAX)
	}
}

type fakeMM struct {
	mem map[hostarch.Addr][]byte
}

func (m *fakeMM) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	if m.mem == nil {
		m.mem = make(map[hostarch.Addr][]byte)
	}
	cp := append([]byte(nil), src...)
	m.mem[addr] = cp
	return len(src), nil
}

func (m *fakeMM) readAt(addr hostarch.Addr, n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		b, ok := m.mem[addr+hostarch.Addr(len(out))]
		if !ok {
			break
		}
		out = append(out, b...)
	}
	return out
}

func TestStackLoadLayout(t *testing.T) {
	mm := &fakeMM{}
	s := &Stack{MM: mm, Bottom: hostarch.Addr(0x7fff00000000)}
	sp, layout, err := s.Load([]string{"/bin/true", "-x"}, []string{"HOME=/root"}, []AuxEntry{{Key: 1, Value: 2}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sp == 0 || sp%32 != 0 {
		t.Fatalf("stack pointer %#x not 32-byte aligned", sp)
	}
	if layout.ArgvStart == 0 || layout.EnvvStart == 0 {
		t.Fatalf("unexpected zero layout: %+v", layout)
	}

	argc := binary.LittleEndian.Uint64(mm.readAt(sp, 8))
	if argc != 2 {
		t.Fatalf("argc = %d, want 2", argc)
	}
}
