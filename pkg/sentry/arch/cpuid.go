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

// FeatureSet is the fixed, sentry-chosen CPUID leaf/subleaf table the
// guest observes in lieu of the host's own CPUID instruction — the
// guest may not execute CPUID itself (it traps), so every leaf it
// could possibly query must have a canned answer here.
type FeatureSet struct {
	leaves map[cpuidKey]cpuidResult
}

type cpuidKey struct {
	eax uint32
	ecx uint32
}

type cpuidResult struct {
	eax, ebx, ecx, edx uint32
}

// NewFeatureSet returns a FeatureSet with a minimal, conservative leaf
// table: leaf 0 (highest leaf, vendor string "GenuineIntel"), leaf 1
// (family/model/stepping plus SSE2 only — no AVX, no hypervisor bit),
// and leaf 0x80000000/0x80000001 (no extended features advertised).
func NewFeatureSet() *FeatureSet {
	fs := &FeatureSet{leaves: make(map[cpuidKey]cpuidResult)}
	fs.leaves[cpuidKey{eax: 0}] = cpuidResult{eax: 1, ebx: 0x756e6547, edx: 0x49656e69, ecx: 0x6c65746e} // "GenuineIntel"
	fs.leaves[cpuidKey{eax: 1}] = cpuidResult{eax: 0x000006FB, ebx: 0, ecx: 0, edx: 1 << 26}             // EDX bit 26 = SSE2
	fs.leaves[cpuidKey{eax: 0x80000000}] = cpuidResult{eax: 0x80000001}
	fs.leaves[cpuidKey{eax: 0x80000001}] = cpuidResult{}
	return fs
}

// lookup returns the canned result for (eax, ecx), falling back to the
// all-zero leaf for anything unrecognized (matching real CPUID
// behavior past the maximum supported leaf).
func (fs *FeatureSet) lookup(eax, ecx uint32) cpuidResult {
	if r, ok := fs.leaves[cpuidKey{eax: eax, ecx: ecx}]; ok {
		return r
	}
	if r, ok := fs.leaves[cpuidKey{eax: eax}]; ok {
		return r
	}
	return cpuidResult{}
}

// EmulateCPUID services a trapped CPUID instruction: it reads the
// leaf/subleaf from Regs.RAX/RCX and writes the result into
// RAX/RBX/RCX/RDX, per spec.md §4.5. The caller (the guest controller
// loop) is responsible for single-stepping past the 2-byte CPUID
// instruction afterward.
func (a *ArchContext) EmulateCPUID() {
	r := a.Features.lookup(uint32(a.Regs.RAX), uint32(a.Regs.RCX))
	a.Regs.RAX = uint64(r.eax)
	a.Regs.RBX = uint64(r.ebx)
	a.Regs.RCX = uint64(r.ecx)
	a.Regs.RDX = uint64(r.edx)
}
