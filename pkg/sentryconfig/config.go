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

// Package sentryconfig loads the tunables spec.md leaves as constants in
// prose (symlink budget, MAX_MMAP_RAND, chunk size, ...) from a TOML
// document.
package sentryconfig

import (
	"github.com/BurntSushi/toml"
)

// Config holds the sentry's tunables other than hard physical constants
// (hostarch.PageSize is a real compile-time constant and is not
// configurable). Only cmd/sentryctl's inspect command loads a Config;
// the core packages keep their own constants and do not read it.
type Config struct {
	// MaxSymlinkTraversals is the traversal budget handed to find_link /
	// find_inode. Default 40.
	MaxSymlinkTraversals int `toml:"max_symlink_traversals"`

	// MaxMmapRand bounds the one-time per-MM address space layout
	// randomization draw.
	MaxMmapRand uint64 `toml:"max_mmap_rand"`

	// ChunkSizeBytes is the granularity pgalloc.MemoryFile uses when
	// mmap-ing ranges of the backing memfd into the sentry. Must be a
	// power of two multiple of hostarch.PageSize. Default 2MiB.
	ChunkSizeBytes uint64 `toml:"chunk_size_bytes"`

	// DefaultNoFile is the default RLIMIT_NOFILE soft/hard value used
	// when a task's limit set isn't otherwise configured.
	DefaultNoFileSoft uint64 `toml:"default_nofile_soft"`
	DefaultNoFileHard uint64 `toml:"default_nofile_hard"`

	// MaxNoFile caps RLIMIT_NOFILE regardless of what's requested.
	MaxNoFile uint64 `toml:"max_nofile"`

	// NumaNode is the single NUMA node id the sentry advertises.
	NumaNode uint64 `toml:"numa_node"`

	// DentryNameMax is the maximum directory entry name length.
	DentryNameMax int `toml:"dentry_name_max"`
}

// Default returns the configuration matching spec.md's stated constants.
func Default() *Config {
	return &Config{
		MaxSymlinkTraversals: 40,
		MaxMmapRand:          1 << 32,
		ChunkSizeBytes:       2 << 20,
		DefaultNoFileSoft:    1024,
		DefaultNoFileHard:    1048576,
		MaxNoFile:            1048576,
		NumaNode:             0,
		DentryNameMax:        255,
	}
}

// LoadFile parses a TOML document at path into a Config seeded with
// Default() values, so a partial file only overrides what it names.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadString parses a TOML document from a string, as LoadFile does from
// a path.
func LoadString(doc string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(doc, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
