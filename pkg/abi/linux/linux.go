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

// Package linux defines the Linux ABI wire-format types and constants
// the sentry marshals to and from guest memory: file modes, statx,
// dirent64, rlimit, sysinfo, and the syscall-facing NUMA policy values.
// It deliberately only carries what spec.md's external interfaces
// actually name — not the whole of Linux's uapi surface.
package linux

// FileMode is the st_mode-style bitfield: file type in the high bits,
// permission bits in the low 12.
type FileMode uint16

const (
	ModeSocket     FileMode = 0o140000
	ModeSymlink    FileMode = 0o120000
	ModeRegular    FileMode = 0o100000
	ModeBlockDev   FileMode = 0o060000
	ModeDirectory  FileMode = 0o040000
	ModeCharDevice FileMode = 0o020000
	ModeNamedPipe  FileMode = 0o010000
	ModeTypeMask   FileMode = 0o170000
	ModePermMask   FileMode = 0o007777
)

// FileType returns the file-type bits of m.
func (m FileMode) FileType() FileMode { return m & ModeTypeMask }

// Perm returns the permission bits of m.
func (m FileMode) Perm() FileMode { return m & ModePermMask }

// IsDir, IsRegular, IsSymlink report the file type of m.
func (m FileMode) IsDir() bool     { return m.FileType() == ModeDirectory }
func (m FileMode) IsRegular() bool { return m.FileType() == ModeRegular }
func (m FileMode) IsSymlink() bool { return m.FileType() == ModeSymlink }

// Dirent64 mirrors struct linux_dirent64, the wire format returned by
// getdents64(2).
type Dirent64 struct {
	Ino    uint64
	Off    uint64
	Reclen uint16
	Type   uint8
	Name   string
}

// Dirent file type values (d_type), distinct from FileMode's bits.
const (
	DT_UNKNOWN = 0
	DT_FIFO    = 1
	DT_CHR     = 2
	DT_DIR     = 4
	DT_BLK     = 6
	DT_REG     = 8
	DT_LNK     = 10
	DT_SOCK    = 12
)

// DirentTypeFromFileMode converts a FileMode's type bits to a getdents64
// d_type value.
func DirentTypeFromFileMode(m FileMode) uint8 {
	switch m.FileType() {
	case ModeDirectory:
		return DT_DIR
	case ModeRegular:
		return DT_REG
	case ModeSymlink:
		return DT_LNK
	case ModeCharDevice:
		return DT_CHR
	case ModeBlockDev:
		return DT_BLK
	case ModeNamedPipe:
		return DT_FIFO
	case ModeSocket:
		return DT_SOCK
	default:
		return DT_UNKNOWN
	}
}

// Statx mirrors the subset of struct statx the sentry populates.
type Statx struct {
	Mask           uint32
	Blksize        uint32
	Attributes     uint64
	Nlink          uint32
	UID            uint32
	GID            uint32
	Mode           uint16
	Ino            uint64
	Size           uint64
	Blocks         uint64
	AttributesMask uint64
	AtimeSec       int64
	AtimeNsec      uint32
	BtimeSec       int64
	BtimeNsec      uint32
	CtimeSec       int64
	CtimeNsec      uint32
	MtimeSec       int64
	MtimeNsec      uint32
	RdevMajor      uint32
	RdevMinor      uint32
	DevMajor       uint32
	DevMinor       uint32
}

// STATX_* mask bits (only those the sentry ever sets).
const (
	STATX_TYPE   = 0x001
	STATX_MODE   = 0x002
	STATX_NLINK  = 0x004
	STATX_UID    = 0x008
	STATX_GID    = 0x010
	STATX_ATIME  = 0x020
	STATX_MTIME  = 0x040
	STATX_CTIME  = 0x080
	STATX_INO    = 0x100
	STATX_SIZE   = 0x200
	STATX_BLOCKS = 0x400
	STATX_BASIC_STATS = 0x7ff
)

// NumaPolicy is an mbind(2)/set_mempolicy(2) policy value.
type NumaPolicy int32

const (
	MPOL_DEFAULT NumaPolicy = iota
	MPOL_PREFERRED
	MPOL_BIND
	MPOL_INTERLEAVE
	MPOL_LOCAL
)

// Rlimit64 mirrors struct rlimit64.
type Rlimit64 struct {
	Cur uint64
	Max uint64
}

// Resource limit indices, as used by getrlimit/setrlimit/prlimit64.
const (
	RLIMIT_CPU = iota
	RLIMIT_FSIZE
	RLIMIT_DATA
	RLIMIT_STACK
	RLIMIT_CORE
	RLIMIT_RSS
	RLIMIT_NPROC
	RLIMIT_NOFILE
	RLIMIT_MEMLOCK
	RLIMIT_AS
	RLIMIT_LOCKS
	RLIMIT_SIGPENDING
	RLIMIT_MSGQUEUE
	RLIMIT_NICE
	RLIMIT_RTPRIO
	RLIMIT_RTTIME
	RLIMIT_NLIMITS
)

// RlimInfinity is RLIM_INFINITY.
const RlimInfinity = ^uint64(0)

// Sysinfo mirrors struct sysinfo for the sysinfo(2) syscall.
type Sysinfo struct {
	Uptime   int64
	Loads    [3]uint64
	TotalRAM uint64
	FreeRAM  uint64
	Procs    uint16
}

// Utsname mirrors struct utsname for the uname(2) syscall; each field
// is NUL-terminated within a 65-byte array on the wire.
type Utsname struct {
	Sysname    [65]byte
	Nodename   [65]byte
	Release    [65]byte
	Version    [65]byte
	Machine    [65]byte
	Domainname [65]byte
}

// Timespec mirrors struct timespec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// ToNsec converts a Timespec to nanoseconds since its epoch.
func (t Timespec) ToNsec() int64 {
	return t.Sec*1e9 + t.Nsec
}

// PollFD mirrors struct pollfd for poll(2)/ppoll(2).
type PollFD struct {
	FD      int32
	Events  int16
	REvents int16
}

// Poll event bits.
const (
	POLLIN   = 0x0001
	POLLPRI  = 0x0002
	POLLOUT  = 0x0004
	POLLERR  = 0x0008
	POLLHUP  = 0x0010
	POLLNVAL = 0x0020
)

// SigSet is a 64-bit signal mask (one bit per signal number).
type SigSet uint64

// Open(2) flags the sentry's VFS layer interprets directly.
const (
	O_RDONLY    = 0o0
	O_WRONLY    = 0o1
	O_RDWR      = 0o2
	O_ACCMODE   = 0o3
	O_CREAT     = 0o100
	O_EXCL      = 0o200
	O_NOCTTY    = 0o400
	O_TRUNC     = 0o1000
	O_APPEND    = 0o2000
	O_NONBLOCK  = 0o4000
	O_DIRECTORY = 0o200000
	O_NOFOLLOW  = 0o400000
	O_CLOEXEC   = 0o2000000
)

// Seek(2) whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)
