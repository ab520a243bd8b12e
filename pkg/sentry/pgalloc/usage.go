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

package pgalloc

import "sync"

// Kind categorizes the use a range of the memory file is put to, for
// sysinfo(2) and /proc/meminfo-equivalent accounting (spec.md §4.3).
type Kind int

const (
	// KindSystem backs sentry-internal allocations.
	KindSystem Kind = iota
	// KindAnonymous backs anonymous (non-file-backed) guest mappings.
	KindAnonymous
	// KindPageCache backs file-backed guest mappings.
	KindPageCache
	// KindTmpfs backs tmpfs regular file contents.
	KindTmpfs
)

// usage is the process-wide memory-file accounting singleton named in
// spec.md §5 ("the memory-file accounting are process-wide and guarded
// by a mutex"). Tests construct their own via newUsage so they don't
// share global state.
type usage struct {
	mu        sync.Mutex
	bytes     [4]uint64 // indexed by Kind
	totalSize uint64
}

func newUsage() *usage {
	return &usage{}
}

func (u *usage) add(kind Kind, n uint64) {
	u.mu.Lock()
	u.bytes[kind] += n
	u.mu.Unlock()
}

func (u *usage) sub(kind Kind, n uint64) {
	u.mu.Lock()
	u.bytes[kind] -= n
	u.mu.Unlock()
}

func (u *usage) setTotalSize(n uint64) {
	u.mu.Lock()
	u.totalSize = n
	u.mu.Unlock()
}

// Total returns the sum of all accounted bytes (the "used" share of the
// memory file).
func (u *usage) Total() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	var sum uint64
	for _, b := range u.bytes {
		sum += b
	}
	return sum
}

// TotalSize returns the current size of the backing memfd.
func (u *usage) TotalSize() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totalSize
}
