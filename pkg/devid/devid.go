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

// Package devid implements the process-wide anonymous device-ID
// registry named by spec.md §5's "Shared resources": it hands out
// distinct minor numbers under Linux's anonymous major (0), the same way
// Linux's get_anon_bdev does. No mount in this tree requests one; stat(2)
// reports st_dev 0 for every inode.
package devid

import "sync"

// AnonMajor is the device major number Linux reserves for anonymous
// (non-block-device-backed) filesystems.
const AnonMajor = 0

// Registry allocates and retires minor numbers under AnonMajor.
type Registry struct {
	mu      sync.Mutex
	next    uint32
	freed   []uint32
	issued  map[uint32]bool
}

// NewRegistry returns an empty registry. Minor 0 is never issued,
// mirroring Linux's anonymous devices starting at 1.
func NewRegistry() *Registry {
	return &Registry{next: 1, issued: make(map[uint32]bool)}
}

// Alloc returns a new device id (AnonMajor and a minor, packed by
// DeviceID) unused by any currently-live allocation.
func (r *Registry) Alloc() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var minor uint32
	if n := len(r.freed); n > 0 {
		minor = r.freed[n-1]
		r.freed = r.freed[:n-1]
	} else {
		minor = r.next
		r.next++
	}
	r.issued[minor] = true
	return DeviceID(AnonMajor, minor)
}

// Free releases a device id previously returned by Alloc, making its
// minor number available for reuse.
func (r *Registry) Free(id uint64) {
	_, minor := SplitDeviceID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issued[minor] {
		delete(r.issued, minor)
		r.freed = append(r.freed, minor)
	}
}

// DeviceID packs a (major, minor) pair into a glibc-style dev_t: the
// low 8 bits of minor in bits 0-7, the low 8 bits of major in bits 8-15,
// the remaining bits of minor from bit 20 up and the remaining bits of
// major from bit 40 up — enough to keep every (major, minor) pair issued
// by this registry distinct and round-trippable.
func DeviceID(major, minor uint32) uint64 {
	return uint64(major&0xFF)<<8 | uint64(minor&0xFF) | uint64(minor&0xFFFFFF00)<<12 | uint64(major&0xFFFFFF00)<<32
}

// SplitDeviceID unpacks a dev_t produced by DeviceID back into
// (major, minor).
func SplitDeviceID(dev uint64) (major, minor uint32) {
	major = uint32((dev>>8)&0xFF) | uint32((dev>>32)&0xFFFFFF00)
	minor = uint32(dev&0xFF) | uint32((dev>>12)&0xFFFFFF00)
	return major, minor
}
