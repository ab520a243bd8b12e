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

package vfs_test

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kestrelsentry/sentry/pkg/abi/linux"
	"github.com/kestrelsentry/sentry/pkg/kernerr"
	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs/tmpfs"
)

func newTestVFS(t *testing.T) (*vfs.VirtualFilesystem, *vfs.Mount, *vfs.Dentry, *auth.Credentials) {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile("vfs-test", 64*1024)
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	t.Cleanup(func() { mf.Close() })

	factory := &tmpfs.Factory{MemoryFile: mf}
	v := vfs.NewVirtualFilesystem(factory)
	creds := auth.NewRootCredentials(auth.NewRootUserNamespace())
	ns := v.NewMountNamespace(creds, 1000)
	return v, ns.Root(), ns.Root().Root(), creds
}

func TestOpenAtCreatesRegularFile(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)

	fd, err := v.OpenAt(creds, mount, root, mount, root, "hello.txt", linux.O_CREAT|linux.O_RDWR, 0o644, 1001)
	if err != nil {
		t.Fatalf("OpenAt create: %v", err)
	}
	n, err := fd.Write([]byte("hi"))
	if err != nil || n != 2 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	fd2, err := v.OpenAt(creds, mount, root, mount, root, "hello.txt", linux.O_RDONLY, 0, 1002)
	if err != nil {
		t.Fatalf("OpenAt reopen: %v", err)
	}
	buf := make([]byte, 16)
	n, err = fd2.Read(buf)
	if err != nil || string(buf[:n]) != "hi" {
		t.Fatalf("Read got %q err=%v", buf[:n], err)
	}
}

func TestOpenAtExclFailsIfExists(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if _, err := v.OpenAt(creds, mount, root, mount, root, "f", linux.O_CREAT, 0o644, 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := v.OpenAt(creds, mount, root, mount, root, "f", linux.O_CREAT|linux.O_EXCL, 0o644, 1000); err == nil {
		t.Fatalf("expected EEXIST, got nil")
	}
}

func TestMkdirAtAndReaddir(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if err := v.MkdirAt(creds, mount, root, mount, root, "dir", 0o755, 1000); err != nil {
		t.Fatalf("MkdirAt: %v", err)
	}
	if _, err := v.OpenAt(creds, mount, root, mount, root, "dir/a", linux.O_CREAT, 0o644, 1000); err != nil {
		t.Fatalf("create dir/a: %v", err)
	}
	if _, err := v.OpenAt(creds, mount, root, mount, root, "dir/b", linux.O_CREAT, 0o644, 1000); err != nil {
		t.Fatalf("create dir/b: %v", err)
	}

	dfd, err := v.OpenAt(creds, mount, root, mount, root, "dir", linux.O_RDONLY, 0, 1000)
	if err != nil {
		t.Fatalf("open dir: %v", err)
	}
	entries, err := dfd.Readdir(10)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if more, err := dfd.Readdir(10); err != nil || len(more) != 0 {
		t.Fatalf("expected no more entries, got %+v err=%v", more, err)
	}
}

func TestSymlinkAndReadlink(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if err := v.SymlinkAt(creds, mount, root, mount, root, "link", "target", 1000); err != nil {
		t.Fatalf("SymlinkAt: %v", err)
	}
	target, err := v.ReadlinkAt(creds, mount, root, mount, root, "link")
	if err != nil || target != "target" {
		t.Fatalf("ReadlinkAt: target=%q err=%v", target, err)
	}
}

func TestRenameAt(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if _, err := v.OpenAt(creds, mount, root, mount, root, "old", linux.O_CREAT, 0o644, 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.RenameAt(creds, mount, root, mount, root, "old", "new"); err != nil {
		t.Fatalf("RenameAt: %v", err)
	}
	if _, err := v.StatAt(creds, mount, root, mount, root, "new", false); err != nil {
		t.Fatalf("stat new: %v", err)
	}
	if _, err := v.StatAt(creds, mount, root, mount, root, "old", false); err == nil {
		t.Fatalf("expected old to be gone")
	}
}

func TestUnlinkAndRmdir(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if _, err := v.OpenAt(creds, mount, root, mount, root, "f", linux.O_CREAT, 0o644, 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.UnlinkAt(creds, mount, root, mount, root, "f"); err != nil {
		t.Fatalf("UnlinkAt: %v", err)
	}
	if err := v.MkdirAt(creds, mount, root, mount, root, "d", 0o755, 1000); err != nil {
		t.Fatalf("MkdirAt: %v", err)
	}
	if err := v.RmdirAt(creds, mount, root, mount, root, "d"); err != nil {
		t.Fatalf("RmdirAt: %v", err)
	}
}

func TestOpenAtThroughNonDirectoryReturnsENOTDIR(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if _, err := v.OpenAt(creds, mount, root, mount, root, "f", linux.O_CREAT, 0o644, 1000); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := v.OpenAt(creds, mount, root, mount, root, "f/x", linux.O_CREAT, 0o644, 1000)
	if !kernerr.Is(err, kernerr.KindLibc) || kernerr.AsLibc(err) != unix.ENOTDIR {
		t.Fatalf("OpenAt through non-directory = %v, want ENOTDIR", err)
	}
}

func TestOpenAtDeniesMissingExecuteOnIntermediateDir(t *testing.T) {
	v, mount, root, creds := newTestVFS(t)
	if err := v.MkdirAt(creds, mount, root, mount, root, "d", 0o700, 1000); err != nil {
		t.Fatalf("MkdirAt: %v", err)
	}

	unpriv := &auth.Credentials{
		EffectiveKUID: 1000,
		EffectiveKGID: 1000,
		UserNamespace: creds.UserNamespace,
	}
	_, err := v.OpenAt(unpriv, mount, root, mount, root, "d/x", linux.O_CREAT, 0o644, 1000)
	if !kernerr.Is(err, kernerr.KindLibc) || kernerr.AsLibc(err) != unix.EACCES {
		t.Fatalf("OpenAt through unreadable intermediate dir = %v, want EACCES", err)
	}
}
