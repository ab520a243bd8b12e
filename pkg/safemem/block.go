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

// Package safemem provides the contiguous-byte-span and gather/scatter
// vocabulary used to move bytes between the guest and pages mapped out of
// the memory file, without committing to a particular I/O source.
package safemem

// Block is a contiguous span of bytes, typically a window into a chunk
// that pgalloc.MemoryFile has mmap'd into the sentry's own address space.
type Block struct {
	data []byte
}

// BlockFromSafeSlice wraps an existing Go slice (e.g. an mmap'd region) as
// a Block. The caller is responsible for ensuring the slice outlives the
// Block.
func BlockFromSafeSlice(b []byte) Block {
	return Block{data: b}
}

// Len returns the length of the block in bytes.
func (b Block) Len() int {
	return len(b.data)
}

// ToSlice returns the block's contents as a Go slice.
func (b Block) ToSlice() []byte {
	return b.data
}

// DropFirst returns b with the first n bytes removed.
func (b Block) DropFirst(n int) Block {
	return Block{data: b.data[n:]}
}

// TakeFirst returns b truncated to its first n bytes.
func (b Block) TakeFirst(n int) Block {
	if n > len(b.data) {
		n = len(b.data)
	}
	return Block{data: b.data[:n]}
}

// Copy copies min(dst.Len(), src.Len()) bytes from src to dst and returns
// the number of bytes copied.
func Copy(dst, src Block) int {
	return copy(dst.data, src.data)
}

// ZeroOut zeroes the first n bytes of b and returns the number of bytes
// zeroed.
func ZeroOut(dst Block, n int) int {
	if n > dst.Len() {
		n = dst.Len()
	}
	clear(dst.data[:n])
	return n
}
