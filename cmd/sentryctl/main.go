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

// Command sentryctl is a developer tool for exercising the sentry
// outside of a real ptraced guest: it drives the syscall dispatcher
// directly against an in-process task and inspects build-time state
// (capability table, tunables, registered syscalls). It is never
// reachable from kernel.Loop.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/kestrelsentry/sentry/pkg/seclog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&selftestCmd{}, "")
	subcommands.Register(&inspectCmd{}, "")

	var verbose bool
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	seclog.Init(false, level)

	os.Exit(int(subcommands.Execute(context.Background())))
}
