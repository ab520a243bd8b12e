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

package segment

import (
	"github.com/google/btree"
)

// Policy supplies the merge/split behavior for a Set[V], per spec.md
// §4.1. Merge is consulted whenever two segments become adjacent;
// returning false leaves them distinct. Split distributes a value across
// a break introduced at an interior key.
type Policy[V any] interface {
	// Merge attempts to combine two adjacent segments (r1 immediately
	// followed by r2). It returns the combined value and true if they
	// should be coalesced into one segment.
	Merge(r1 Range, v1 V, r2 Range, v2 V) (V, bool)
	// Split divides v, covering r, at the interior key 'at', returning
	// the values for [r.Start, at) and [at, r.End) respectively.
	Split(r Range, v V, at uint64) (V, V)
}

// Segment is one (Range, Value) pair stored in a Set.
type Segment[V any] struct {
	Range Range
	Value V
}

// Set is a sorted interval-to-value map in canonical form: after any
// mutation, segments are pairwise non-overlapping, ordered by Start, and
// maximally merged under the Set's Policy.
type Set[V any] struct {
	policy Policy[V]
	tree   *btree.BTreeG[Segment[V]]
}

func segLess[V any](a, b Segment[V]) bool {
	return a.Range.Start < b.Range.Start
}

// NewSet returns an empty Set governed by policy.
func NewSet[V any](policy Policy[V]) *Set[V] {
	return &Set[V]{
		policy: policy,
		tree:   btree.NewG[Segment[V]](16, segLess[V]),
	}
}

func pivotAt[V any](key uint64) Segment[V] {
	return Segment[V]{Range: Range{Start: key}}
}

// Len returns the number of segments currently in the set.
func (s *Set[V]) Len() int {
	return s.tree.Len()
}

// FindSegment returns the segment containing key, if any.
func (s *Set[V]) FindSegment(key uint64) (Segment[V], bool) {
	var found Segment[V]
	ok := false
	s.tree.DescendLessOrEqual(pivotAt[V](key), func(item Segment[V]) bool {
		if item.Range.Contains(key) {
			found = item
			ok = true
		}
		return false
	})
	return found, ok
}

// Value returns the value of the segment containing key, if any.
func (s *Set[V]) Value(key uint64) (V, bool) {
	seg, ok := s.FindSegment(key)
	return seg.Value, ok
}

// OverlapsAny reports whether any segment in the set intersects r.
func (s *Set[V]) OverlapsAny(r Range) bool {
	return s.overlapsAny(r)
}

func (s *Set[V]) overlapsAny(r Range) bool {
	overlap := false
	s.tree.AscendRange(pivotAt[V](r.Start), pivotAt[V](r.End), func(item Segment[V]) bool {
		overlap = true
		return false
	})
	if overlap {
		return true
	}
	var prev Segment[V]
	hasPrev := false
	s.tree.DescendLessOrEqual(pivotAt[V](r.Start), func(item Segment[V]) bool {
		prev, hasPrev = item, true
		return false
	})
	return hasPrev && prev.Range.End > r.Start
}

// Add inserts (r, v), merging with adjacent mergeable segments. It
// returns false without modifying the set if r overlaps any existing
// segment, or if r is not a well-formed non-empty range.
func (s *Set[V]) Add(r Range, v V) bool {
	if !r.WellFormed() || r.Length() == 0 {
		return false
	}
	if s.overlapsAny(r) {
		return false
	}
	s.insertMerged(r, v)
	return true
}

func (s *Set[V]) insertMerged(r Range, v V) {
	var left Segment[V]
	hasLeft := false
	s.tree.DescendLessOrEqual(pivotAt[V](r.Start), func(item Segment[V]) bool {
		left, hasLeft = item, true
		return false
	})
	if hasLeft && left.Range.End == r.Start {
		if merged, ok := s.policy.Merge(left.Range, left.Value, r, v); ok {
			s.tree.Delete(left)
			r = Range{Start: left.Range.Start, End: r.End}
			v = merged
		}
	}

	var right Segment[V]
	hasRight := false
	s.tree.AscendGreaterOrEqual(pivotAt[V](r.End), func(item Segment[V]) bool {
		right, hasRight = item, true
		return false
	})
	if hasRight && right.Range.Start == r.End {
		if merged, ok := s.policy.Merge(r, v, right.Range, right.Value); ok {
			s.tree.Delete(right)
			r = Range{Start: r.Start, End: right.Range.End}
			v = merged
		}
	}

	s.tree.ReplaceOrInsert(Segment[V]{Range: r, Value: v})
}

// SplitAt splits the segment containing key (if any) into two segments
// at key, using the Set's Policy. It is a no-op (returns true) if key is
// already a segment boundary, and returns false if no segment contains
// key at all.
func (s *Set[V]) SplitAt(key uint64) bool {
	seg, ok := s.FindSegment(key)
	if !ok {
		return false
	}
	if seg.Range.Start == key {
		return true
	}
	v1, v2 := s.policy.Split(seg.Range, seg.Value, key)
	s.tree.Delete(seg)
	s.tree.ReplaceOrInsert(Segment[V]{Range: Range{Start: seg.Range.Start, End: key}, Value: v1})
	s.tree.ReplaceOrInsert(Segment[V]{Range: Range{Start: key, End: seg.Range.End}, Value: v2})
	return true
}

// Isolate splits the segments at the boundaries of r so that every
// segment whose range intersects r is entirely contained within r.
// Callers iterating or removing a sub-range must Isolate it first.
func (s *Set[V]) Isolate(r Range) {
	s.SplitAt(r.Start)
	s.SplitAt(r.End)
}

// Remove deletes the exact segment identified by r (which must currently
// be a segment boundary, e.g. after Isolate). It is a no-op if no such
// segment exists.
func (s *Set[V]) Remove(r Range) {
	if seg, ok := s.FindSegment(r.Start); ok && seg.Range == r {
		s.tree.Delete(seg)
	}
}

// RemoveRange isolates r and deletes every segment now fully contained
// within it.
func (s *Set[V]) RemoveRange(r Range) {
	s.Isolate(r)
	var doomed []Segment[V]
	s.tree.AscendRange(pivotAt[V](r.Start), pivotAt[V](r.End), func(item Segment[V]) bool {
		doomed = append(doomed, item)
		return true
	})
	for _, item := range doomed {
		s.tree.Delete(item)
	}
}

// ForEach calls f for every segment in ascending Start order, stopping
// early if f returns false.
func (s *Set[V]) ForEach(f func(Segment[V]) bool) {
	s.tree.Ascend(func(item Segment[V]) bool {
		return f(item)
	})
}

// ForEachInRange calls f for every segment whose Start lies in
// [r.Start, r.End), in ascending order. Callers that need every segment
// overlapping a sub-range (including one that merely straddles r.Start)
// must Isolate(r) first so such a segment is split at the boundary.
func (s *Set[V]) ForEachInRange(r Range, f func(Segment[V]) bool) {
	s.tree.AscendRange(pivotAt[V](r.Start), pivotAt[V](r.End), func(item Segment[V]) bool {
		return f(item)
	})
}

// LowerBoundGap returns the start of the first gap of at least minLen
// bytes at or after 'from', scanning upward. ok is false if no such gap
// exists below limit.
func (s *Set[V]) LowerBoundGap(from, limit, minLen uint64) (uint64, bool) {
	cursor := from
	if seg, found := s.FindSegment(from); found {
		cursor = seg.Range.End
	}
	ok := false
	var result uint64
	s.tree.AscendGreaterOrEqual(pivotAt[V](from), func(item Segment[V]) bool {
		if item.Range.Start > cursor && item.Range.Start-cursor >= minLen {
			result, ok = cursor, true
			return false
		}
		if item.Range.End > cursor {
			cursor = item.Range.End
		}
		return true
	})
	if ok {
		return result, true
	}
	if limit-cursor >= minLen && cursor <= limit {
		return cursor, true
	}
	return 0, false
}

// UpperBoundGap returns the start of the highest gap of at least minLen
// bytes at or below 'upto', scanning downward from upto.
func (s *Set[V]) UpperBoundGap(upto, floor, minLen uint64) (uint64, bool) {
	cursor := upto
	ok := false
	var result uint64
	s.tree.DescendLessOrEqual(pivotAt[V](upto), func(item Segment[V]) bool {
		if item.Range.End < cursor && cursor-item.Range.End >= minLen {
			result, ok = cursor-minLen, true
			return false
		}
		if item.Range.Start < cursor {
			cursor = item.Range.Start
		}
		return true
	})
	if ok {
		return result, true
	}
	if cursor-floor >= minLen {
		return cursor - minLen, true
	}
	return 0, false
}
