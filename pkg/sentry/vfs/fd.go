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

package vfs

import "sync"

// FDTable is a task's open file descriptor table, per spec.md §4.4:
// new descriptors are assigned the smallest available number at or
// above the caller's requested floor (dup2/fcntl(F_DUPFD) semantics).
type FDTable struct {
	mu    sync.Mutex
	files map[int32]*FileDescription
}

// NewFDTable returns an empty FDTable.
func NewFDTable() *FDTable {
	return &FDTable{files: make(map[int32]*FileDescription)}
}

// NewFD installs file at the smallest unused descriptor number >= lowest
// and returns it.
func (t *FDTable) NewFD(file *FileDescription, lowest int32) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := lowest
	for {
		if _, used := t.files[fd]; !used {
			break
		}
		fd++
	}
	t.files[fd] = file
	return fd
}

// SetFD installs file at exactly fd, per dup2(2), replacing any
// previous occupant (the caller is responsible for closing it).
func (t *FDTable) SetFD(fd int32, file *FileDescription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[fd] = file
}

// Get returns the file installed at fd, if any.
func (t *FDTable) Get(fd int32) (*FileDescription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return f, ok
}

// Remove detaches fd from the table and returns the file that had been
// installed there, if any. The caller is responsible for releasing it.
func (t *FDTable) Remove(fd int32) (*FileDescription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	if ok {
		delete(t.files, fd)
	}
	return f, ok
}

// ForEach calls f for every (descriptor, file) pair, e.g. at exec(2) to
// close CLOEXEC descriptors.
func (t *FDTable) ForEach(f func(fd int32, file *FileDescription)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, file := range t.files {
		f(fd, file)
	}
}
