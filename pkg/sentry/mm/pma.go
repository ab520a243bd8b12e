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
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/segment"
	"github.com/kestrelsentry/sentry/pkg/sentry/memmap"
)

// pma is the value type of MemoryManager.pmas: a platform-mapped
// physical-memory-area backing some sub-range of a vma with concrete
// storage in a memmap.File (spec.md §3 "PMA" / §4.2).
type pma struct {
	file      memmap.File
	off       uint64
	perms     hostarch.AccessType
	needCOW   bool
	translated bool
}

// pmaPolicy implements segment.Policy[pma]: adjacent pmas merge iff they
// reference contiguous ranges of the same file with identical
// permissions and copy-on-write state.
type pmaPolicy struct{}

func (pmaPolicy) Merge(r1 segment.Range, v1 pma, _ segment.Range, v2 pma) (pma, bool) {
	if v1.file != v2.file || v1.perms != v2.perms || v1.needCOW != v2.needCOW || v1.translated != v2.translated {
		return pma{}, false
	}
	if v1.off+r1.Length() != v2.off {
		return pma{}, false
	}
	return v1, true
}

func (pmaPolicy) Split(r segment.Range, v pma, at uint64) (pma, pma) {
	left, right := v, v
	right.off = v.off + (at - r.Start)
	return left, right
}

func newPMASet() *segment.Set[pma] {
	return segment.NewSet[pma](pmaPolicy{})
}
