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

package linux

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/hostarch"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/kernel"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
)

func openat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	dirfd := int32(args[0])
	path, err := copyInPath(t, hostarch.Addr(args[1]))
	if err != nil {
		return 0, err
	}
	flags := uint32(args[2])
	mode := linux.FileMode(args[3])

	mount, start, err := startDentry(t, dirfd)
	if err != nil {
		return 0, err
	}
	file, err := t.VFS.OpenAt(t.Creds, mount, start, t.RootMnt, t.Root, path, flags, mode, nowNsec())
	if err != nil {
		return 0, err
	}
	return uintptr(t.FDs.NewFD(file, 0)), nil
}

func open(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return openat(t, [6]uintptr{uintptr(atFDCWD), args[0], args[1], args[2]})
}

func closeFD(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd := int32(args[0])
	if _, ok := t.FDs.Remove(fd); !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	return 0, nil
}

func read(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	count := args[2]
	buf := make([]byte, count)
	n, err := fd.Read(buf)
	if err != nil && n == 0 {
		if kernerr.Is(err, kernerr.KindEOF) {
			return 0, nil
		}
		return 0, err
	}
	if _, werr := t.MM.CopyOut(hostarch.Addr(args[1]), buf[:n]); werr != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return uintptr(n), nil
}

func write(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	count := args[2]
	buf := make([]byte, count)
	if _, err := t.MM.CopyIn(hostarch.Addr(args[1]), buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	n, err := fd.Write(buf)
	if err != nil && n == 0 {
		return 0, err
	}
	return uintptr(n), nil
}

func lseek(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	off, err := fd.Seek(int64(args[1]), int32(args[2]))
	if err != nil {
		return 0, err
	}
	return uintptr(off), nil
}

func mkdirat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	dirfd := int32(args[0])
	path, err := copyInPath(t, hostarch.Addr(args[1]))
	if err != nil {
		return 0, err
	}
	mode := linux.FileMode(args[2])
	mount, start, err := startDentry(t, dirfd)
	if err != nil {
		return 0, err
	}
	if err := t.VFS.MkdirAt(t.Creds, mount, start, t.RootMnt, t.Root, path, mode, nowNsec()); err != nil {
		return 0, err
	}
	return 0, nil
}

func mkdir(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return mkdirat(t, [6]uintptr{uintptr(atFDCWD), args[0], args[1]})
}

func unlinkat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	dirfd := int32(args[0])
	path, err := copyInPath(t, hostarch.Addr(args[1]))
	if err != nil {
		return 0, err
	}
	mount, start, err := startDentry(t, dirfd)
	if err != nil {
		return 0, err
	}
	const AT_REMOVEDIR = 0x200
	if uint32(args[2])&AT_REMOVEDIR != 0 {
		return 0, t.VFS.RmdirAt(t.Creds, mount, start, t.RootMnt, t.Root, path)
	}
	return 0, t.VFS.UnlinkAt(t.Creds, mount, start, t.RootMnt, t.Root, path)
}

func unlink(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return unlinkat(t, [6]uintptr{uintptr(atFDCWD), args[0], 0})
}

func rmdir(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	path, err := copyInPath(t, hostarch.Addr(args[0]))
	if err != nil {
		return 0, err
	}
	return 0, t.VFS.RmdirAt(t.Creds, t.CWDMnt, t.CWD, t.RootMnt, t.Root, path)
}

func symlinkat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	target, err := copyInPath(t, hostarch.Addr(args[0]))
	if err != nil {
		return 0, err
	}
	dirfd := int32(args[1])
	path, err := copyInPath(t, hostarch.Addr(args[2]))
	if err != nil {
		return 0, err
	}
	mount, start, err := startDentry(t, dirfd)
	if err != nil {
		return 0, err
	}
	return 0, t.VFS.SymlinkAt(t.Creds, mount, start, t.RootMnt, t.Root, path, target, nowNsec())
}

func symlink(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return symlinkat(t, [6]uintptr{args[0], uintptr(atFDCWD), args[1]})
}

func readlinkat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	dirfd := int32(args[0])
	path, err := copyInPath(t, hostarch.Addr(args[1]))
	if err != nil {
		return 0, err
	}
	mount, start, err := startDentry(t, dirfd)
	if err != nil {
		return 0, err
	}
	target, err := t.VFS.ReadlinkAt(t.Creds, mount, start, t.RootMnt, t.Root, path)
	if err != nil {
		return 0, err
	}
	bufsz := int(args[3])
	if len(target) > bufsz {
		target = target[:bufsz]
	}
	n, werr := t.MM.CopyOut(hostarch.Addr(args[2]), []byte(target))
	if werr != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return uintptr(n), nil
}

func readlink(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return readlinkat(t, [6]uintptr{uintptr(atFDCWD), args[0], args[1], args[2]})
}

func renameat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	// VirtualFilesystem.RenameAt resolves both paths from one (mount,
	// start): the two *at directory fds are honored only when they
	// agree, matching EXDEV's single-mount-namespace contract here.
	oldDirfd := int32(args[0])
	oldPath, err := copyInPath(t, hostarch.Addr(args[1]))
	if err != nil {
		return 0, err
	}
	newDirfd := int32(args[2])
	newPath, err := copyInPath(t, hostarch.Addr(args[3]))
	if err != nil {
		return 0, err
	}
	mount, start, err := startDentry(t, oldDirfd)
	if err != nil {
		return 0, err
	}
	if newDirfd != oldDirfd {
		newMount, newStart, err := startDentry(t, newDirfd)
		if err != nil {
			return 0, err
		}
		if newMount != mount || newStart != start {
			return 0, kernerr.Libc(unix.EXDEV)
		}
	}
	return 0, t.VFS.RenameAt(t.Creds, mount, start, t.RootMnt, t.Root, oldPath, newPath)
}

func rename(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	return renameat(t, [6]uintptr{uintptr(atFDCWD), args[0], uintptr(atFDCWD), args[1]})
}

func linkat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	oldDirfd := int32(args[0])
	oldPath, err := copyInPath(t, hostarch.Addr(args[1]))
	if err != nil {
		return 0, err
	}
	newDirfd := int32(args[2])
	newPath, err := copyInPath(t, hostarch.Addr(args[3]))
	if err != nil {
		return 0, err
	}
	oldMount, oldStart, err := startDentry(t, oldDirfd)
	if err != nil {
		return 0, err
	}
	newMount, newStart, err := startDentry(t, newDirfd)
	if err != nil {
		return 0, err
	}
	return 0, t.VFS.LinkAt(t.Creds, oldMount, oldStart, newMount, newStart, t.RootMnt, t.Root, oldPath, newPath)
}

func statCommon(t *kernel.Task, mount *vfs.Mount, start *vfs.Dentry, path string, nofollow bool, statAddr hostarch.Addr) (uintptr, error) {
	res, err := t.VFS.StatAt(t.Creds, mount, start, t.RootMnt, t.Root, path, nofollow)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 144) // struct stat (x86-64) size
	binary.LittleEndian.PutUint64(buf[0:], 0)                        // st_dev
	binary.LittleEndian.PutUint64(buf[8:], res.Ino)                  // st_ino
	binary.LittleEndian.PutUint64(buf[16:], uint64(res.Nlink))       // st_nlink
	binary.LittleEndian.PutUint32(buf[24:], uint32(res.Mode))        // st_mode
	binary.LittleEndian.PutUint32(buf[28:], uint32(res.UID))         // st_uid
	binary.LittleEndian.PutUint32(buf[32:], uint32(res.GID))         // st_gid
	binary.LittleEndian.PutUint64(buf[48:], uint64(res.Size))        // st_size
	binary.LittleEndian.PutUint64(buf[72:], uint64(res.Atime/1e9))   // st_atime
	binary.LittleEndian.PutUint64(buf[80:], uint64(res.Atime%1e9))   // st_atime_nsec
	binary.LittleEndian.PutUint64(buf[88:], uint64(res.Mtime/1e9))   // st_mtime
	binary.LittleEndian.PutUint64(buf[96:], uint64(res.Mtime%1e9))   // st_mtime_nsec
	binary.LittleEndian.PutUint64(buf[104:], uint64(res.Ctime/1e9))  // st_ctime
	binary.LittleEndian.PutUint64(buf[112:], uint64(res.Ctime%1e9))  // st_ctime_nsec
	if _, err := t.MM.CopyOut(statAddr, buf); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return 0, nil
}

func stat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	path, err := copyInPath(t, hostarch.Addr(args[0]))
	if err != nil {
		return 0, err
	}
	return statCommon(t, t.CWDMnt, t.CWD, path, false, hostarch.Addr(args[1]))
}

func lstat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	path, err := copyInPath(t, hostarch.Addr(args[0]))
	if err != nil {
		return 0, err
	}
	return statCommon(t, t.CWDMnt, t.CWD, path, true, hostarch.Addr(args[1]))
}

func fstat(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	return statCommon(t, t.CWDMnt, fd.Dentry(), "", false, hostarch.Addr(args[1]))
}

func getdents64(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	bufSize := int(args[2])
	entries, err := fd.Readdir(bufSize / 24)
	if err != nil {
		return 0, err
	}
	var out []byte
	for _, e := range entries {
		reclen := (19 + len(e.Name) + 1 + 7) &^ 7
		rec := make([]byte, reclen)
		binary.LittleEndian.PutUint64(rec[0:], e.Ino)
		binary.LittleEndian.PutUint64(rec[8:], e.Off)
		binary.LittleEndian.PutUint16(rec[16:], uint16(reclen))
		rec[18] = e.Type
		copy(rec[19:], e.Name)
		if len(out)+len(rec) > bufSize {
			break
		}
		out = append(out, rec...)
	}
	if _, err := t.MM.CopyOut(hostarch.Addr(args[1]), out); err != nil {
		return 0, kernerr.Libc(unix.EFAULT)
	}
	return uintptr(len(out)), nil
}

// flock(2) operation bits, per the man page (LOCK_SH|LOCK_EX|LOCK_UN,
// ORed with LOCK_NB).
const (
	lockSH = 1
	lockEX = 2
	lockNB = 4
	lockUN = 8
)

func flock(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	op := int(args[1])
	nonblock := op&lockNB != 0
	var mode vfs.LockMode
	switch op &^ lockNB {
	case lockSH:
		mode = vfs.LockShared
	case lockEX:
		mode = vfs.LockExclusive
	case lockUN:
		mode = vfs.LockUnlock
	default:
		return 0, kernerr.Libc(unix.EINVAL)
	}
	if err := fd.Flock(mode, nonblock); err != nil {
		return 0, err
	}
	return 0, nil
}

// fcntl(2) commands this sentry understands; anything else is ENOSYS
// rather than silently succeeding.
const (
	fSetLK  = 6
	fSetLKW = 7
)

func fcntl(t *kernel.Task, args [6]uintptr) (uintptr, error) {
	fd, ok := t.FDs.Get(int32(args[0]))
	if !ok {
		return 0, kernerr.Libc(unix.EBADF)
	}
	cmd := int(args[1])
	switch cmd {
	case fSetLK, fSetLKW:
		// struct flock: l_type@0 (2), l_whence@2 (2), l_start@8 (8),
		// l_len@16 (8). Only whole-file advisory locks (l_type
		// F_RDLCK/F_WRLCK/F_UNLCK) are honored.
		buf := make([]byte, 24)
		if _, err := t.MM.CopyIn(hostarch.Addr(args[2]), buf); err != nil {
			return 0, kernerr.Libc(unix.EFAULT)
		}
		lType := binary.LittleEndian.Uint16(buf[0:])
		var mode vfs.LockMode
		switch lType {
		case unix.F_RDLCK:
			mode = vfs.LockShared
		case unix.F_WRLCK:
			mode = vfs.LockExclusive
		case unix.F_UNLCK:
			mode = vfs.LockUnlock
		default:
			return 0, kernerr.Libc(unix.EINVAL)
		}
		if err := fd.Flock(mode, cmd == fSetLK); err != nil {
			return 0, err
		}
		return 0, nil
	default:
		return 0, kernerr.Libc(unix.ENOSYS)
	}
}
