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

package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/google/subcommands"

	"github.com/kestrelsentry/sentry/pkg/sentry/auth"
	sclinux "github.com/kestrelsentry/sentry/pkg/sentry/syscalls/linux"
	"github.com/kestrelsentry/sentry/pkg/sentryconfig"
)

// inspectCmd prints build-time state a developer would otherwise have
// to reconstruct by reading source: the tunables a config file can
// override, the full capability name table, and every syscall number
// this build's dispatch table answers for.
type inspectCmd struct {
	configPath string
}

func (*inspectCmd) Name() string     { return "inspect" }
func (*inspectCmd) Synopsis() string { return "print tunables, capability names, and the syscall table" }
func (*inspectCmd) Usage() string {
	return "inspect [-config path]: print the effective configuration, the full capability name table, and registered syscall numbers.\n"
}

func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a sentryconfig TOML file (defaults unmodified if empty)")
}

func (c *inspectCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := sentryconfig.Default()
	if c.configPath != "" {
		loaded, err := sentryconfig.LoadFile(c.configPath)
		if err != nil {
			fmt.Printf("loading %s: %v\n", c.configPath, err)
			return subcommands.ExitFailure
		}
		cfg = loaded
	}

	fmt.Println("tunables:")
	fmt.Printf("  max_symlink_traversals = %d\n", cfg.MaxSymlinkTraversals)
	fmt.Printf("  max_mmap_rand          = %d\n", cfg.MaxMmapRand)
	fmt.Printf("  chunk_size_bytes       = %d\n", cfg.ChunkSizeBytes)
	fmt.Printf("  default_nofile         = %d/%d\n", cfg.DefaultNoFileSoft, cfg.DefaultNoFileHard)
	fmt.Printf("  max_nofile             = %d\n", cfg.MaxNoFile)
	fmt.Printf("  numa_node              = %d\n", cfg.NumaNode)
	fmt.Printf("  dentry_name_max        = %d\n", cfg.DentryNameMax)

	fmt.Printf("\ncapabilities (0-%d): %s\n", auth.LastCap, auth.AllCapabilities().String())

	table := sclinux.NewSyscallTable()
	nrs := make([]int, 0, len(table))
	for nr := range table {
		nrs = append(nrs, int(nr))
	}
	sort.Ints(nrs)
	fmt.Printf("\nsyscalls (%d registered):\n", len(nrs))
	for _, nr := range nrs {
		fmt.Printf("  %d\n", nr)
	}

	return subcommands.ExitSuccess
}
