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

// Package memmap defines the interfaces that let the memory manager treat
// VFS files, anonymous memory, and the pgalloc memory file uniformly: a
// Mappable can be translated into file ranges, a File provides pageable
// storage, and a MappingIdentity controls the lifetime of a mapping for
// /proc/[pid]/maps purposes.
package memmap

import (
	"github.com/kestrelsentry/sentry/pkg/hostarch"
)

// MLockMode describes the mlock state of a vma.
type MLockMode int

const (
	// MLockNone is an unlocked mapping.
	MLockNone MLockMode = iota
	// MLockEager is mlock(2) without MLOCK_ONFAULT: populated eagerly.
	MLockEager
	// MLockLazy is mlock(2) with MLOCK_ONFAULT: populated on fault.
	MLockLazy
)

// FileRange is a range of offsets into a File.
type FileRange struct {
	Start uint64
	End   uint64
}

// Length returns the length of the range.
func (fr FileRange) Length() uint64 {
	return fr.End - fr.Start
}

// File is pageable storage, implemented by pgalloc.MemoryFile and
// consulted by the memory manager wherever spec.md §3's "Memory file"
// contract is needed.
type File interface {
	// IncRef increments the reference count on all pages in fr.
	IncRef(fr FileRange)
	// DecRef decrements the reference count on all pages in fr.
	DecRef(fr FileRange)
}

// MappingSpace is the address space a Mappable is mapped into — the
// memory manager, from the Mappable's point of view.
type MappingSpace interface {
	// Invalidate is called when a Translation previously returned for an
	// AddrRange is no longer valid.
	Invalidate(ar hostarch.AddrRange, opts InvalidateOpts)
}

// InvalidateOpts configures MappingSpace.Invalidate.
type InvalidateOpts struct {
	// InvalidatePrivate is true if private (copy-on-write) pmas must be
	// invalidated as well as shared ones.
	InvalidatePrivate bool
}

// Translation is a Mappable's answer to "what file range backs this part
// of the mapping, and with what permissions".
type Translation struct {
	Source FileRange
	File   File
	Perms  hostarch.AccessType
}

// Mappable is a virtual memory object that can be mapped into a
// MemoryManager via a vma — the analogue of a Linux struct
// address_space. A regular tmpfs file and an anonymous mapping's backing
// both satisfy this interface in their respective ways (an anonymous
// vma simply carries a nil Mappable).
type Mappable interface {
	// AddMapping notifies the Mappable of a new mapping from ms, with
	// the given offset and writability.
	AddMapping(ms MappingSpace, ar hostarch.AddrRange, offset uint64, writable bool) error
	// RemoveMapping notifies the Mappable that a mapping has been removed.
	RemoveMapping(ms MappingSpace, ar hostarch.AddrRange, offset uint64, writable bool)
	// Translate returns the Translations for required, which must be a
	// subset of optional; optional is provided to permit returning a
	// larger Translation than strictly necessary, amortizing the cost of
	// future translations of adjacent ranges.
	Translate(required, optional FileRange, at hostarch.AccessType) ([]Translation, error)
}

// MappingIdentity controls the lifetime and /proc/[pid]/maps identity of
// a mapping, held by a vma when present.
type MappingIdentity interface {
	// MappedName returns the name to display for this mapping in
	// /proc/[pid]/maps.
	MappedName() string
	// DeviceID and InodeID identify the mapping's backing object for
	// /proc/[pid]/maps' dev/inode columns.
	DeviceID() uint64
	InodeID() uint64
}

// MMapOpts configures mm.MemoryManager.MMap, per spec.md §4.2.
type MMapOpts struct {
	// Length is the length of the mapping in bytes; must be page-aligned
	// and non-zero.
	Length uint64
	// Addr is the address hint (or, if Fixed, the required address).
	Addr hostarch.Addr
	// Fixed requires the mapping to be placed at exactly Addr.
	Fixed bool
	// Unmap is only meaningful with Fixed: remove any existing mappings
	// in [Addr, Addr+Length) before mapping.
	Unmap bool
	// Map32Bit restricts the mapping to [1GiB, 2GiB).
	Map32Bit bool
	// GrowsDown marks the vma as an automatically-extending stack.
	GrowsDown bool
	// Perms are the initial access permissions.
	Perms hostarch.AccessType
	// MaxPerms bounds what Perms may ever become via mprotect.
	MaxPerms hostarch.AccessType
	// Private is true for MAP_PRIVATE; false for MAP_SHARED.
	Private bool
	// Mappable is the backing object; nil for an anonymous mapping.
	Mappable Mappable
	// MappingIdentity, if non-nil, is held by the vma and shown in
	// /proc/[pid]/maps.
	MappingIdentity MappingIdentity
	// Offset is the offset into Mappable at which the mapping begins.
	Offset uint64
	// MLockMode is the initial mlock state.
	MLockMode MLockMode
	// Precommit requests immediate pma allocation rather than lazily on
	// first fault.
	Precommit bool
	// Hint, if non-empty, is shown in /proc/[pid]/maps in place of
	// MappingIdentity.MappedName.
	Hint string
}
