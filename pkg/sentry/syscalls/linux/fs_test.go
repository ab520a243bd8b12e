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
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
)

func TestOpenatCreatesAndWritesFile(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "/hello.txt")

	fd, err := openat(task, [6]uintptr{
		uintptr(atFDCWD), uintptr(scratchAddr),
		uintptr(linux.O_CREAT | linux.O_RDWR), 0o644,
	})
	if err != nil {
		t.Fatalf("openat: %v", err)
	}

	writeGuestString(t, task, scratchAddr+64, "hi")
	n, err := write(task, [6]uintptr{fd, uintptr(scratchAddr + 64), 2})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 2 {
		t.Fatalf("write = %d, want 2", n)
	}

	if _, err := lseek(task, [6]uintptr{fd, 0, unix.SEEK_SET}); err != nil {
		t.Fatalf("lseek: %v", err)
	}
	n, err = read(task, [6]uintptr{fd, uintptr(scratchAddr + 128), 8})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("read = %d, want 2", n)
	}
	got := make([]byte, 2)
	if _, err := task.MM.CopyIn(scratchAddr+128, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("read contents = %q, want %q", got, "hi")
	}
}

func TestCloseUnknownFDReturnsEBADF(t *testing.T) {
	task := newTestTask(t)
	if _, err := closeFD(task, [6]uintptr{99}); !kernerr.Is(err, kernerr.KindLibc) || kernerr.AsLibc(err) != unix.EBADF {
		t.Fatalf("closeFD = %v, want EBADF", err)
	}
}

func TestMkdiratAndGetdents64(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "/dir")
	if _, err := mkdirat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr), 0o755}); err != nil {
		t.Fatalf("mkdirat: %v", err)
	}

	writeGuestString(t, task, scratchAddr+64, "/dir/file")
	fd, err := openat(task, [6]uintptr{
		uintptr(atFDCWD), uintptr(scratchAddr + 64),
		uintptr(linux.O_CREAT | linux.O_RDWR), 0o644,
	})
	if err != nil {
		t.Fatalf("openat file: %v", err)
	}
	if _, err := closeFD(task, [6]uintptr{fd}); err != nil {
		t.Fatalf("closeFD: %v", err)
	}

	writeGuestString(t, task, scratchAddr+128, "/dir")
	dirFD, err := openat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr + 128), uintptr(linux.O_RDONLY), 0})
	if err != nil {
		t.Fatalf("openat dir: %v", err)
	}

	n, err := getdents64(task, [6]uintptr{dirFD, uintptr(scratchAddr + 256), 2048})
	if err != nil {
		t.Fatalf("getdents64: %v", err)
	}
	if n == 0 {
		t.Error("getdents64 returned 0 bytes, want at least one entry")
	}

	buf := make([]byte, n)
	if _, err := task.MM.CopyIn(scratchAddr+256, buf); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	var off int
	for off < len(buf) {
		reclen := int(buf[off+16]) | int(buf[off+17])<<8
		if reclen == 0 || reclen%8 != 0 {
			t.Fatalf("entry at offset %d has d_reclen %d, want a nonzero multiple of 8", off, reclen)
		}
		if off+reclen > len(buf) {
			t.Fatalf("entry at offset %d claims d_reclen %d, overruns buffer of %d bytes", off, reclen, len(buf))
		}
		off += reclen
	}
	if off != len(buf) {
		t.Fatalf("entries covered %d bytes, want exactly %d", off, len(buf))
	}
}

func TestUnlinkatRemovesFile(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "/gone.txt")
	fd, err := openat(task, [6]uintptr{
		uintptr(atFDCWD), uintptr(scratchAddr),
		uintptr(linux.O_CREAT | linux.O_RDWR), 0o644,
	})
	if err != nil {
		t.Fatalf("openat: %v", err)
	}
	closeFD(task, [6]uintptr{fd})

	writeGuestString(t, task, scratchAddr+64, "/gone.txt")
	if _, err := unlinkat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr + 64), 0}); err != nil {
		t.Fatalf("unlinkat: %v", err)
	}

	writeGuestString(t, task, scratchAddr+128, "/gone.txt")
	if _, err := openat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr + 128), uintptr(linux.O_RDONLY), 0}); err == nil {
		t.Error("openat succeeded on unlinked file, want an error")
	}
}

func TestSymlinkatAndReadlinkat(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "target")
	writeGuestString(t, task, scratchAddr+64, "/link")
	if _, err := symlinkat(task, [6]uintptr{uintptr(scratchAddr), uintptr(atFDCWD), uintptr(scratchAddr + 64)}); err != nil {
		t.Fatalf("symlinkat: %v", err)
	}

	writeGuestString(t, task, scratchAddr+128, "/link")
	n, err := readlinkat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr + 128), uintptr(scratchAddr + 256), 32})
	if err != nil {
		t.Fatalf("readlinkat: %v", err)
	}
	got := make([]byte, n)
	if _, err := task.MM.CopyIn(scratchAddr+256, got); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if string(got) != "target" {
		t.Errorf("readlinkat target = %q, want %q", got, "target")
	}
}

func TestRenameatRejectsMismatchedDirFDs(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "/a.txt")
	fd, err := openat(task, [6]uintptr{
		uintptr(atFDCWD), uintptr(scratchAddr),
		uintptr(linux.O_CREAT | linux.O_RDWR), 0o644,
	})
	if err != nil {
		t.Fatalf("openat: %v", err)
	}

	writeGuestString(t, task, scratchAddr+64, "/a.txt")
	writeGuestString(t, task, scratchAddr+128, "/b.txt")
	_, err = renameat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr + 64), uintptr(fd), uintptr(scratchAddr + 128)})
	if !kernerr.Is(err, kernerr.KindLibc) || kernerr.AsLibc(err) != unix.EXDEV {
		t.Fatalf("renameat mismatched dirfds = %v, want EXDEV", err)
	}
}

func TestStatReportsSize(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "/sized.txt")
	fd, err := openat(task, [6]uintptr{
		uintptr(atFDCWD), uintptr(scratchAddr),
		uintptr(linux.O_CREAT | linux.O_RDWR), 0o644,
	})
	if err != nil {
		t.Fatalf("openat: %v", err)
	}
	writeGuestString(t, task, scratchAddr+64, "abcd")
	if _, err := write(task, [6]uintptr{fd, uintptr(scratchAddr + 64), 4}); err != nil {
		t.Fatalf("write: %v", err)
	}

	writeGuestString(t, task, scratchAddr+128, "/sized.txt")
	if _, err := stat(task, [6]uintptr{uintptr(scratchAddr + 128), uintptr(scratchAddr + 256)}); err != nil {
		t.Fatalf("stat: %v", err)
	}
	buf := make([]byte, 144)
	if _, err := task.MM.CopyIn(scratchAddr+256, buf); err != nil {
		t.Fatalf("CopyIn stat buf: %v", err)
	}
	var size uint64
	for i := 0; i < 8; i++ {
		size |= uint64(buf[48+i]) << (8 * i)
	}
	if size != 4 {
		t.Errorf("st_size = %d, want 4", size)
	}
}

func TestFlockExclusiveBlocksSecondHolder(t *testing.T) {
	task := newTestTask(t)
	writeGuestString(t, task, scratchAddr, "/locked.txt")
	fd1, err := openat(task, [6]uintptr{
		uintptr(atFDCWD), uintptr(scratchAddr),
		uintptr(linux.O_CREAT | linux.O_RDWR), 0o644,
	})
	if err != nil {
		t.Fatalf("openat: %v", err)
	}

	writeGuestString(t, task, scratchAddr+64, "/locked.txt")
	fd2, err := openat(task, [6]uintptr{uintptr(atFDCWD), uintptr(scratchAddr + 64), uintptr(linux.O_RDWR), 0})
	if err != nil {
		t.Fatalf("openat (second fd): %v", err)
	}

	if _, err := flock(task, [6]uintptr{fd1, lockEX}); err != nil {
		t.Fatalf("flock(fd1, LOCK_EX): %v", err)
	}
	if _, err := flock(task, [6]uintptr{fd2, lockEX | lockNB}); !kernerr.Is(err, kernerr.KindWouldBlock) {
		t.Fatalf("flock(fd2, LOCK_EX|LOCK_NB) while fd1 holds it = %v, want WouldBlock", err)
	}

	if _, err := flock(task, [6]uintptr{fd1, lockUN}); err != nil {
		t.Fatalf("flock(fd1, LOCK_UN): %v", err)
	}
	if _, err := flock(task, [6]uintptr{fd2, lockEX | lockNB}); err != nil {
		t.Fatalf("flock(fd2, LOCK_EX|LOCK_NB) after fd1 unlocked: %v", err)
	}
}
