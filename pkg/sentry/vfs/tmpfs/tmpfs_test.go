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

package tmpfs_test

import (
	"testing"

	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	"github.com/kestrelsentry/sentry/pkg/sentry/pgalloc"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs"
	"github.com/kestrelsentry/sentry/pkg/sentry/vfs/tmpfs"
)

func TestRegularFileWriteGrowsAndReadsBack(t *testing.T) {
	mf, err := pgalloc.NewMemoryFile("tmpfs-test", 64*1024)
	if err != nil {
		t.Fatalf("NewMemoryFile: %v", err)
	}
	defer mf.Close()

	f := tmpfs.NewRegularFile(mf, 1, 0o644, auth.KUID(0), auth.KGID(0), 1000)
	if n, err := f.PWrite([]byte("hello world"), 0); err != nil || n != 11 {
		t.Fatalf("PWrite: n=%d err=%v", n, err)
	}
	if f.Size() != 11 {
		t.Fatalf("Size() = %d, want 11", f.Size())
	}

	buf := make([]byte, 5)
	n, err := f.PRead(buf, 6)
	if err != nil || string(buf[:n]) != "world" {
		t.Fatalf("PRead: got %q err=%v", buf[:n], err)
	}

	if err := f.Truncate(4); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if f.Size() != 4 {
		t.Fatalf("Size() after truncate = %d, want 4", f.Size())
	}
	n, err = f.PRead(buf, 0)
	if err != nil || string(buf[:n]) != "hell" {
		t.Fatalf("PRead after truncate: got %q err=%v", buf[:n], err)
	}
}

func TestNullDeviceReadsEOFWritesSink(t *testing.T) {
	n := tmpfs.NewNullDevice(1, auth.KUID(0), auth.KGID(0), 1000)
	buf := make([]byte, 8)
	if _, err := n.PRead(buf, 0); err == nil {
		t.Fatalf("expected EOF from null device read")
	}
	written, err := n.PWrite([]byte("discarded"), 0)
	if err != nil || written != len("discarded") {
		t.Fatalf("PWrite: n=%d err=%v", written, err)
	}
}

func TestDirectoryListAfterCursor(t *testing.T) {
	root := vfs.NewDentry("", nil, nil)
	dir := tmpfs.NewDirectory(root, 1, 0o755, auth.KUID(0), auth.KGID(0), 1000)
	_ = dir
	for _, name := range []string{"c", "a", "b"} {
		child := vfs.NewDentry(name, root, tmpfs.NewNullDevice(2, auth.KUID(0), auth.KGID(0), 1000))
		root.AddChild(name, child)
	}

	entries, cursor := dir.ListAfter("", 2)
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Fatalf("unexpected first page: %+v", entries)
	}
	entries, cursor = dir.ListAfter(cursor, 2)
	if len(entries) != 1 || entries[0].Name != "c" {
		t.Fatalf("unexpected second page: %+v", entries)
	}
	entries, _ = dir.ListAfter(cursor, 2)
	if len(entries) != 0 {
		t.Fatalf("expected no more entries, got %+v", entries)
	}
}
