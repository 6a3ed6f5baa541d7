// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Panda schedules compiler-driven analysis tools over the translation
// units of a compilation database, and captures compilation databases
// from arbitrary builds via the libpanda preload shim.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"github.com/Snape3058/panda/subcmd/capture"
	"github.com/Snape3058/panda/subcmd/run"
	"github.com/Snape3058/panda/subcmd/version"
)

const pandaVersion = "2.0"

func main() {
	os.Exit(pandaMain())
}

func pandaMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.SetReportTimestamp(false)
	if os.Getenv("PANDA_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
	}

	app := &subcommands.DefaultApplication{
		Name:  "panda",
		Title: "Panda: a parallel analysis scheduler over compilation databases.",
		Commands: []*subcommands.Command{
			run.Cmd(ctx),
			capture.Cmd(ctx),
			version.Cmd(pandaVersion),
			subcommands.CmdHelp,
		},
	}
	return subcommands.Run(app, nil)
}
