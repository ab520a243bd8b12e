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

// Package segment implements the generic ordered interval map described in
// spec.md §4.1: a sorted, non-overlapping map from Range to a value type,
// parameterized by a merge/split Policy and reused for VMAs, pmas, and
// user-namespace ID maps alike. It is backed by github.com/google/btree,
// the off-the-shelf equivalent of the order-statistics tree gvisor's
// historical code generator produced before generics existed.
package segment

// Range is a half-open key interval [Start, End) over a uint64 key space.
// Callers key this by guest address (VMAs/pmas) or by uid/gid (ID maps).
type Range struct {
	Start uint64
	End   uint64
}

// Length returns End - Start.
func (r Range) Length() uint64 {
	return r.End - r.Start
}

// WellFormed returns true iff Start <= End.
func (r Range) WellFormed() bool {
	return r.Start <= r.End
}

// Contains returns true iff key lies in [Start, End).
func (r Range) Contains(key uint64) bool {
	return r.Start <= key && key < r.End
}

// Overlaps returns true iff r and other share any point.
func (r Range) Overlaps(other Range) bool {
	return r.Start < other.End && other.Start < r.End
}

// IsSupersetOf returns true iff r contains all of other.
func (r Range) IsSupersetOf(other Range) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// CanSplitAt returns true iff key is a strictly interior point of r.
func (r Range) CanSplitAt(key uint64) bool {
	return r.Contains(key) && key != r.Start
}

// Intersect returns the intersection of r and other; if they don't
// overlap the result is not WellFormed (Start > End or Start == End).
func (r Range) Intersect(other Range) Range {
	if r.Start < other.Start {
		r.Start = other.Start
	}
	if r.End > other.End {
		r.End = other.End
	}
	return r
}
