// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package capture is the capture subcommand. It runs an arbitrary
// build with the libpanda shim preloaded and synthesizes a
// compilation database from the intercepted process-creation records.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/intercept"
)

const (
	exitOK          = 0
	exitBuildFailed = 1
	exitConfigErr   = 2
)

func Cmd(ctx context.Context) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "capture [-o dir] [-preload libpanda.so] [build command...]",
		ShortDesc: "synthesize a compilation database from an observed build",
		LongDesc: `Synthesize a compilation database from an observed build.

The build command (default: make) runs with libpanda.so preloaded;
every process it creates is recorded, compiler invocations are
filtered out and written to <dir>/compile_commands.json.

 $ panda capture -o /tmp/panda -- make -j 8
`,
		CommandRun: func() subcommands.CommandRun {
			c := &captureCmd{ctx: ctx}
			c.init()
			return c
		},
	}
}

type captureCmd struct {
	subcommands.CommandRunBase
	ctx context.Context

	outDir  string
	preload string
	jobs    int
}

func (c *captureCmd) init() {
	c.Flags.StringVar(&c.outDir, "o", "panda-output", "output directory")
	c.Flags.StringVar(&c.preload, "preload", "", "path to libpanda.so (default: next to the panda executable)")
	c.Flags.IntVar(&c.jobs, "j", 1, "parallel jobs for the default make command")
}

func (c *captureCmd) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	build := args
	if len(build) == 0 {
		build = []string{"make"}
		if c.jobs > 1 {
			build = append(build, "-j", strconv.Itoa(c.jobs))
		}
	}
	code, err := c.run(c.ctx, build)
	if err != nil {
		log.Errorf("%v", err)
	}
	return code
}

func (c *captureCmd) run(ctx context.Context, build []string) (int, error) {
	outDir, err := filepath.Abs(c.outDir)
	if err != nil {
		return exitConfigErr, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return exitConfigErr, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writable(outDir); err != nil {
		return exitConfigErr, fmt.Errorf("output directory %s is not writable: %w", outDir, err)
	}
	lib, err := c.shimPath()
	if err != nil {
		return exitConfigErr, err
	}
	recordDir := filepath.Join(outDir, time.Now().Format("20060102_150405")+".build")
	if err := os.MkdirAll(recordDir, 0o755); err != nil {
		return exitConfigErr, fmt.Errorf("failed to create record directory: %w", err)
	}

	log.Infof("compiling the project: %q", build)
	cmd := exec.CommandContext(ctx, build[0], build[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"LD_PRELOAD="+lib,
		intercept.OutputDirEnv+"="+recordDir)
	buildErr := cmd.Run()
	if buildErr != nil {
		log.Warnf("build command failed: %v", buildErr)
	}

	db, err := c.synthesize(recordDir)
	if err != nil {
		return exitConfigErr, err
	}
	cdbPath := filepath.Join(outDir, "compile_commands.json")
	if err := compdb.Save(db, cdbPath); err != nil {
		return exitConfigErr, fmt.Errorf("failed to write %s: %w", cdbPath, err)
	}
	log.Infof("captured %d compile entries into %s", len(db), cdbPath)
	if buildErr != nil {
		return exitBuildFailed, nil
	}
	return exitOK, nil
}

// shimPath resolves the shim library, defaulting to libpanda.so next
// to the panda executable.
func (c *captureCmd) shimPath() (string, error) {
	lib := c.preload
	if lib == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", err
		}
		lib = filepath.Join(filepath.Dir(exe), "libpanda.so")
	}
	lib, err := filepath.Abs(lib)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(lib); err != nil {
		return "", fmt.Errorf("shim library not found: %w", err)
	}
	return lib, nil
}

// synthesize traverses the record directory and filters the compiler
// invocations into an ordered database. A later record of the same
// translation unit replaces an earlier one.
func (c *captureCmd) synthesize(recordDir string) (compdb.DB, error) {
	type unit struct {
		dir, file string
	}
	index := make(map[unit]int)
	var db compdb.DB
	err := filepath.WalkDir(recordDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rec, err := intercept.Parse(buf)
		if err != nil {
			// Not fatal: a record truncated by a dying build
			// process loses one entry, not the whole capture.
			log.Warnf("skipping record %s: %v", path, err)
			return nil
		}
		for _, entry := range entries(rec) {
			key := unit{entry.Directory, entry.File}
			if i, ok := index[key]; ok {
				db[i] = entry
				continue
			}
			index[key] = len(db)
			db = append(db, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to traverse records: %w", err)
	}
	if len(db) == 0 {
		return nil, errors.New("no compiler invocations captured")
	}
	return db, nil
}
