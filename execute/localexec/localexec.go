// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package localexec implements local command execution.
package localexec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Snape3058/panda/execute"
)

// Run runs a cmd locally, waiting for the child to terminate, and
// returns its result. The returned error wraps *execute.ExitError for
// a non-zero exit, so a recorded failure can be told apart from a
// spawn failure; in both cases the result carries valid timings.
func Run(ctx context.Context, cmd *execute.Cmd) (execute.Result, error) {
	if len(cmd.Args) == 0 {
		return execute.Result{}, fmt.Errorf("no arguments in the command. ID: %s", cmd.ID)
	}
	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir

	var out *os.File
	if cmd.Capture != execute.CaptureNone {
		if err := os.MkdirAll(filepath.Dir(cmd.OutputFile), 0o755); err != nil {
			return execute.Result{}, fmt.Errorf("failed to prepare output dir: %w", err)
		}
		var err error
		out, err = os.Create(cmd.OutputFile)
		if err != nil {
			return execute.Result{}, fmt.Errorf("failed to create output: %w", err)
		}
		defer out.Close()
	} else if cmd.OutputFile != "" {
		// The child writes the artifact itself; make sure the
		// directory exists before it runs.
		if err := os.MkdirAll(filepath.Dir(cmd.OutputFile), 0o755); err != nil {
			return execute.Result{}, fmt.Errorf("failed to prepare output dir: %w", err)
		}
	}
	switch cmd.Capture {
	case execute.CaptureStdout:
		c.Stdout = out
		c.Stderr = os.Stderr
	case execute.CaptureStderr:
		c.Stdout = os.Stdout
		c.Stderr = out
	default:
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
	}

	s := time.Now()
	err := c.Start()
	if err != nil {
		e := time.Now()
		return execute.Result{ExitCode: 1, Start: s, End: e}, fmt.Errorf("failed to spawn %s: %w", cmd.Args[0], err)
	}
	err = c.Wait()
	e := time.Now()

	res := execute.Result{
		ExitCode: exitCode(err),
		Start:    s,
		End:      e,
		MaxRSS:   maxRSS(c),
	}
	log.Debugf("%s exit=%d dur=%s", cmd.ID, res.ExitCode, res.Duration())
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%s: %w", cmd.ID, &execute.ExitError{ExitCode: res.ExitCode})
	}
	return res, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var eerr *exec.ExitError
	if !errors.As(err, &eerr) {
		return 1
	}
	return waitExitCode(eerr)
}
