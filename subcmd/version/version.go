// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package version provides version subcommand.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/maruel/subcommands"
)

func Cmd(ver string) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "version",
		ShortDesc: "prints the executable version",
		LongDesc:  "Prints the executable version and the build information recorded by the Go toolchain.",
		CommandRun: func() subcommands.CommandRun {
			return &versionRun{version: ver}
		},
	}
}

type versionRun struct {
	subcommands.CommandRunBase
	version string
}

func (c *versionRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n", a.GetName())
		return 1
	}
	fmt.Fprintln(a.GetOut(), c.version)
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return 0
	}
	if buildInfo.GoVersion != "" {
		fmt.Fprintf(a.GetOut(), "go\t%s\n", buildInfo.GoVersion)
	}
	for _, s := range buildInfo.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			fmt.Fprintf(a.GetOut(), "build\t%s=%s\n", s.Key, s.Value)
		}
	}
	return 0
}
