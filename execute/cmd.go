// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package execute describes commands run by the execution engine.
package execute

import (
	"fmt"
	"time"

	"github.com/Snape3058/panda/compdb"
)

// Capture designates which stream of the child process is captured
// into the output artifact.
type Capture int

const (
	// CaptureNone leaves both streams attached to the parent; the
	// child writes the artifact itself through its -o option.
	CaptureNone Capture = iota
	// CaptureStdout redirects the child's stdout to the artifact.
	CaptureStdout
	// CaptureStderr redirects the child's stderr to the artifact.
	CaptureStderr
)

// Cmd includes all the information required to run one job's child
// process. It is created by the worklist builder and never mutated
// after creation.
type Cmd struct {
	// ID is a unique identifier for the job in logs.
	ID string

	// Desc is a short human-readable description shown as progress.
	Desc string

	// ActionName is the name of the action that generated this cmd.
	ActionName string

	// Args holds command line arguments.
	Args []string

	// Dir is the working directory of the cmd.
	Dir string

	// Env specifies the environment of the process.
	// nil means inheriting the current process environment.
	Env []string

	// OutputFile is the artifact path the job produces.
	OutputFile string

	// Capture selects the stream captured into OutputFile.
	Capture Capture
}

// Command returns a command line string for logging.
func (c *Cmd) Command() string {
	return compdb.Join(c.Args)
}

func (c *Cmd) String() string {
	return c.ID
}

// Result is the outcome of one executed cmd.
type Result struct {
	// ExitCode is the child's exit status; 128+signal when the child
	// was terminated by a signal.
	ExitCode int

	// Start and End are the wall-clock bounds of the execution.
	Start time.Time
	End   time.Time

	// MaxRSS is the child's maximum resident set size in kilobytes,
	// when the platform reports one.
	MaxRSS int64
}

// Duration returns the wall-clock duration of the execution.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// ExitError is an error of cmd exit.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit=%d", e.ExitCode)
}
