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

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/safemem"
)

// sliceAddr returns the address of the first byte of an mmap'd slice, so
// it can be cached and later reconstructed with unsafeBlockAt.
func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// unsafeBlockAt reconstructs a []byte of the given length starting at
// addr, and wraps it as a safemem.Block. addr must point into a mapping
// the MemoryFile holds open for at least as long as the Block is used.
func unsafeBlockAt(addr uintptr, length int) safemem.Block {
	if length == 0 {
		return safemem.BlockFromSafeSlice(nil)
	}
	s := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	return safemem.BlockFromSafeSlice(s)
}

// mmapFixed re-maps the chunk-sized region at addr with MAP_FIXED,
// upgrading a read-only chunk mapping to read-write without changing
// its address — spec.md §4.3's "upgrading a read-only chunk to
// read-write re-maps in place with MAP_FIXED".
func mmapFixed(addr uintptr, length, prot, fd int, offset int64) (uintptr, error) {
	ret, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(prot),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED),
		uintptr(fd),
		uintptr(offset),
	)
	if errno != 0 {
		return 0, fmt.Errorf("mmap(MAP_FIXED) at %#x: %w", addr, errno)
	}
	return ret, nil
}
