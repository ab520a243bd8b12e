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

package vfs

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/kestrelsentry/sentry/pkg/kernerr"
)

// LockMode is the requested mode of an flock(2) call.
type LockMode int

const (
	// LockShared corresponds to LOCK_SH.
	LockShared LockMode = iota
	// LockExclusive corresponds to LOCK_EX.
	LockExclusive
	// LockUnlock corresponds to LOCK_UN.
	LockUnlock
)

var (
	lockPathMu  sync.Mutex
	lockPaths   = map[Inode]string{}
	lockCounter uint64
)

// pathFor returns the host lock file backing inode's flock(2) state,
// creating one on first use. Every FileDescription opened against the
// same inode locks through this same path but with its own *flock.Flock
// handle, so the host kernel's own flock() semantics apply: distinct
// open file descriptions contend for the lock exactly as they would
// over a real file, rather than one in-process mutex standing in for
// every holder.
func pathFor(inode Inode) string {
	lockPathMu.Lock()
	defer lockPathMu.Unlock()
	if p, ok := lockPaths[inode]; ok {
		return p
	}
	lockCounter++
	p := fmt.Sprintf("%s/sentry-advisory-lock-%d-%d", os.TempDir(), os.Getpid(), lockCounter)
	lockPaths[inode] = p
	return p
}

// Flock applies LOCK_SH/LOCK_EX/LOCK_UN to the inode this file was
// opened from, blocking unless nonblock is set (LOCK_NB), in which case
// WouldBlock is returned instead of blocking.
func (fd *FileDescription) Flock(mode LockMode, nonblock bool) error {
	fd.mu.Lock()
	if fd.lock == nil {
		fd.lock = flock.New(pathFor(fd.dentry.Inode()))
	}
	l := fd.lock
	fd.mu.Unlock()

	switch mode {
	case LockUnlock:
		return l.Unlock()
	case LockShared:
		if nonblock {
			ok, err := l.TryRLock()
			if err != nil {
				return err
			}
			if !ok {
				return kernerr.WouldBlock
			}
			return nil
		}
		return l.RLock()
	case LockExclusive:
		if nonblock {
			ok, err := l.TryLock()
			if err != nil {
				return err
			}
			if !ok {
				return kernerr.WouldBlock
			}
			return nil
		}
		return l.Lock()
	default:
		return errInvalid
	}
}
