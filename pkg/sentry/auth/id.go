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

package auth

import "github.com/kestrelsentry/sentry/pkg/segment"

// KUID is a UID in the root user namespace's ID space (a "kernel UID").
type KUID uint32

// KGID is a GID in the root user namespace's ID space.
type KGID uint32

// NoID is returned by a mapping lookup that falls outside any configured
// range, per spec.md's "Id map round trip" testable property.
const NoID = 0xFFFFFFFF

// idMapPolicy merges adjacent entries (innerStart1, outerStart1, len1)
// and (innerStart2, outerStart2, len2) iff outerStart1 + len1 ==
// outerStart2 — spec.md §4.1's "merge succeeds iff v1 + r1.len = v2".
type idMapPolicy struct{}

func (idMapPolicy) Merge(r1 segment.Range, v1 uint32, r2 segment.Range, v2 uint32) (uint32, bool) {
	if uint64(v1)+r1.Length() == uint64(v2) {
		return v1, true
	}
	return 0, false
}

func (idMapPolicy) Split(r segment.Range, v uint32, at uint64) (uint32, uint32) {
	offset := at - r.Start
	return v, v + uint32(offset)
}

// IDMap is a segment map from one ID space to another, keyed by the
// source space (either "from-namespace" or "to-namespace" id). It backs
// one of UserNamespace's four ID-map segment sets.
type IDMap struct {
	set *segment.Set[uint32]
}

// NewIDMap returns an empty IDMap.
func NewIDMap() *IDMap {
	return &IDMap{set: segment.NewSet[uint32](idMapPolicy{})}
}

// AddRange installs a mapping of [srcStart, srcStart+length) to
// [dstStart, dstStart+length). It returns false if the source range
// overlaps an existing entry.
func (m *IDMap) AddRange(srcStart, dstStart, length uint32) bool {
	return m.set.Add(segment.Range{Start: uint64(srcStart), End: uint64(srcStart) + uint64(length)}, dstStart)
}

// Lookup translates id through the map, returning NoID if id falls
// outside every configured range.
func (m *IDMap) Lookup(id uint32) uint32 {
	seg, ok := m.set.FindSegment(uint64(id))
	if !ok {
		return NoID
	}
	return seg.Value + uint32(uint64(id)-seg.Range.Start)
}

// identityIDMap returns an IDMap that maps [0, ^uint32(0)) identically,
// as the root user namespace's maps must (spec.md §3 invariant).
func identityIDMap() *IDMap {
	m := NewIDMap()
	m.AddRange(0, 0, 0xFFFFFFFF)
	return m
}
