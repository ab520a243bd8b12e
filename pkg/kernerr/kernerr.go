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

// Package kernerr implements the sentry's error-kind vocabulary (spec.md
// §7): every condition a syscall handler can encounter is tagged with a
// Kind, and only Libc ever crosses the dispatcher boundary into the
// guest's rax. Kinds compose with the standard errors package rather than
// forming a parallel hierarchy.
package kernerr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind tags the meaning of an Error, per spec.md §7.
type Kind int

const (
	// KindLibc is returned directly as -code in rax.
	KindLibc Kind = iota
	// KindNix wraps a golang.org/x/sys/unix error, converted via Errno().
	KindNix
	// KindEOF is internal; read/getdents loops convert it to a short
	// count or zero rather than surfacing it.
	KindEOF
	// KindExceedsFileSizeLimit surfaces as EFBIG.
	KindExceedsFileSizeLimit
	// KindWouldBlock surfaces as EAGAIN on a non-blocking FD, or drives
	// poll_wait and a retry otherwise.
	KindWouldBlock
	// KindSegFault is a guest fault; it never reaches rax, it is handed
	// to the guest controller for signal injection.
	KindSegFault
	// KindSyscallRestart causes the dispatcher to re-enter the handler
	// after the signal prologue runs.
	KindSyscallRestart
	// KindResolveViaReadLink is an internal signal inside path walk
	// meaning the just-walked node is a symlink that must be followed.
	KindResolveViaReadLink
	// KindStdIo wraps a stdlib I/O error, mapped to a best-fit libc code
	// but preserved (via Unwrap) for logging.
	KindStdIo
)

// Error is the sentry's internal error representation. Only a KindLibc
// Error (or one reducible to a Libc code) is ever returned across a
// syscall handler boundary to the dispatcher.
type Error struct {
	Kind Kind
	// Code is the libc errno (valid for KindLibc, KindExceedsFileSizeLimit,
	// KindWouldBlock once resolved, and any Kind reduced via AsLibc).
	Code unix.Errno
	// Addr is set for KindSegFault.
	Addr uintptr
	// Wrapped is the underlying error for KindNix/KindStdIo, preserved
	// for logging but never unwrapped into rax.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindSegFault:
		return fmt.Sprintf("segfault at %#x", e.Addr)
	case KindSyscallRestart:
		return "syscall restart"
	case KindResolveViaReadLink:
		return "resolve via readlink"
	case KindEOF:
		return "EOF"
	default:
		if e.Wrapped != nil {
			return fmt.Sprintf("%s: %v", e.Code, e.Wrapped)
		}
		return e.Code.Error()
	}
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Libc constructs a plain errno Error.
func Libc(code unix.Errno) *Error {
	return &Error{Kind: KindLibc, Code: code}
}

// FromNix converts a golang.org/x/sys/unix error (or any error satisfying
// the unix.Errno interface) into a KindNix Error.
func FromNix(err error) *Error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return &Error{Kind: KindNix, Code: errno, Wrapped: err}
	}
	return &Error{Kind: KindNix, Code: unix.EIO, Wrapped: err}
}

// FromStdIo converts a stdlib I/O error to a best-fit libc code, keeping
// the original error available via Unwrap for logging.
func FromStdIo(err error) *Error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return &Error{Kind: KindStdIo, Code: errno, Wrapped: err}
	}
	return &Error{Kind: KindStdIo, Code: unix.EIO, Wrapped: err}
}

// EOF is the sentinel returned by internal read paths at end-of-file.
var EOF = &Error{Kind: KindEOF}

// ExceedsFileSizeLimit surfaces as EFBIG.
var ExceedsFileSizeLimit = &Error{Kind: KindExceedsFileSizeLimit, Code: unix.EFBIG}

// WouldBlock surfaces as EAGAIN on a non-blocking FD.
var WouldBlock = &Error{Kind: KindWouldBlock, Code: unix.EAGAIN}

// SyscallRestart signals the dispatcher to re-enter the handler.
var SyscallRestart = &Error{Kind: KindSyscallRestart}

// ResolveViaReadLink signals path walk to follow a symlink.
var ResolveViaReadLink = &Error{Kind: KindResolveViaReadLink}

// SegFault builds a KindSegFault Error for the given faulting address.
func SegFault(addr uintptr) *Error {
	return &Error{Kind: KindSegFault, Addr: addr}
}

// AsLibc reduces err to the libc errno that should be encoded in rax.
// Internal kinds (EOF, ResolveViaReadLink, SyscallRestart, SegFault) must
// never reach this function from the dispatcher's perspective; callers
// that might see them should have already special-cased them. If err is
// not a *Error at all, it is treated as an opaque internal fault (EIO) —
// a panic would also be defensible, but handlers may still be wrapping
// plain errors from helper code during migration.
func AsLibc(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var ke *Error
	if errors.As(err, &ke) {
		switch ke.Kind {
		case KindLibc, KindNix, KindExceedsFileSizeLimit, KindWouldBlock, KindStdIo:
			return ke.Code
		}
	}
	return unix.EIO
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}
