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
	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/segment"
)

// SetNUMAPolicy records the NUMA policy and nodemask for [addr,
// addr+length) as set by mbind(2). Per spec.md §4.2 this is bookkeeping
// only: there is a single guest-visible NUMA node, so no migration is
// ever triggered.
func (mm *MemoryManager) SetNUMAPolicy(addr hostarch.Addr, length uint64, policy int32, nodemask uint64) error {
	la, ok := hostarch.Addr(length).RoundUp()
	if !ok {
		return kernerr.Libc(unix.EINVAL)
	}
	ar := hostarch.AddrRange{Start: addr.RoundDown(), End: addr.RoundDown() + hostarch.Addr(la)}
	if !ar.WellFormed() {
		return kernerr.Libc(unix.EINVAL)
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	r := toRange(ar)
	mm.vmas.Isolate(r)
	var segs []segment.Segment[vma]
	covered := uint64(0)
	mm.vmas.ForEachInRange(r, func(seg segment.Segment[vma]) bool {
		segs = append(segs, seg)
		covered += seg.Range.Length()
		return true
	})
	if covered != r.Length() {
		return kernerr.Libc(unix.EFAULT)
	}
	for _, seg := range segs {
		mm.vmas.Remove(seg.Range)
		seg.Value.numaPolicy = policy
		seg.Value.numaNodemask = nodemask
		mm.vmas.Add(seg.Range, seg.Value)
	}
	return nil
}

// NUMAPolicy returns the policy and nodemask most recently set by
// SetNUMAPolicy over the page containing addr, per get_mempolicy(2).
func (mm *MemoryManager) NUMAPolicy(addr hostarch.Addr) (int32, uint64, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	seg, ok := mm.vmas.FindSegment(uint64(addr))
	if !ok {
		return 0, 0, kernerr.Libc(unix.EFAULT)
	}
	return seg.Value.numaPolicy, seg.Value.numaNodemask, nil
}
