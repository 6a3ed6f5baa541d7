// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runner expands a compilation database crossed with selected
// action configs into a flat worklist, orders it per the active sort
// strategy and drains it with a fixed pool of workers. Jobs carry no
// dependency relation; that is the simplification that makes the pool
// embarrassingly parallel.
package runner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/Snape3058/panda/action"
	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/execute"
)

// Strategy selects the worklist ordering.
type Strategy string

const (
	// FIFO preserves the expansion order, entry-major.
	FIFO Strategy = "fifo"
	// LJF sorts longest job first by the configured key, stable, so
	// equal keys keep their fifo order.
	LJF Strategy = "ljf"
)

// ParseStrategy validates a strategy name from the command line.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case FIFO, LJF:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown sort strategy %q (want fifo or ljf)", s)
}

// Key selects the job weight metric scanned from the entry's source.
type Key string

const (
	// KeySemicolon counts statement terminators. The default; a better
	// duration proxy than raw line count for machine generated sources.
	KeySemicolon Key = "semicolon"
	// KeyLine counts source lines.
	KeyLine Key = "line"
)

// ParseKey validates a sort key name from the command line.
func ParseKey(s string) (Key, error) {
	switch Key(s) {
	case KeySemicolon, KeyLine:
		return Key(s), nil
	}
	return "", fmt.Errorf("unknown sort key %q (want semicolon or line)", s)
}

// Job is one (entry, action) execution unit. Created by BuildWorklist,
// claimed exactly once by one worker, never mutated after creation.
type Job struct {
	// Seq is the fifo expansion position, the tie breaker under ljf.
	Seq int
	// Entry is the compile entry; zero value for aggregate jobs.
	Entry compdb.Entry
	// Config is the action that generated the job, shared read-only.
	Config action.Config
	// Cmd is the resolved child invocation; nil for aggregate jobs,
	// which run in-process.
	Cmd *execute.Cmd
	// Output is the artifact path.
	Output string
	// Key is the scanned sort weight; 0 for aggregates and for
	// entries whose source cannot be scanned.
	Key int64
}

// ID identifies the job in logs.
func (j Job) ID() string {
	if j.Config.Aggregate() {
		return j.Config.Name()
	}
	return j.Config.Name() + ":" + j.Entry.File
}

// Aggregate reports whether the job transforms the whole database.
func (j Job) Aggregate() bool { return j.Config.Aggregate() }

// DuplicateOutputError reports two jobs resolving to the same artifact
// path. It is a configuration error detected before scheduling starts.
type DuplicateOutputError struct {
	Output string
	Jobs   [2]string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("jobs %s and %s both write %s", e.Jobs[0], e.Jobs[1], e.Output)
}

// Options configures worklist construction.
type Options struct {
	// OutRoot is the run's output root directory.
	OutRoot string
	// Strategy orders the worklist. Empty means fifo.
	Strategy Strategy
	// Key is the ljf weight metric. Empty means semicolon count.
	Key Key
	// FmName overrides the external definition map artifact name.
	FmName string
}

func (o Options) strategy() Strategy {
	if o.Strategy == "" {
		return FIFO
	}
	return o.Strategy
}

func (o Options) key() Key {
	if o.Key == "" {
		return KeySemicolon
	}
	return o.Key
}

// BuildWorklist expands db crossed with configs into an ordered job
// sequence. Per-entry configs contribute one job per entry, entry-major
// in database order; aggregate configs contribute exactly one job each,
// appended after the per-entry jobs in selection order. An empty
// database yields only the aggregate jobs.
func BuildWorklist(db compdb.DB, configs []action.Config, opts Options) ([]Job, error) {
	for _, cfg := range configs {
		if err := action.Validate(cfg); err != nil {
			return nil, err
		}
	}
	var jobs []Job
	outputs := make(map[string]string)
	keys := make(map[string]int64)
	for _, entry := range db {
		for _, cfg := range configs {
			if cfg.Aggregate() {
				continue
			}
			job, err := entryJob(entry, cfg, opts)
			if err != nil {
				return nil, err
			}
			if prev, ok := outputs[job.Output]; ok {
				return nil, &DuplicateOutputError{Output: job.Output, Jobs: [2]string{prev, job.ID()}}
			}
			outputs[job.Output] = job.ID()
			if _, ok := keys[entry.File]; !ok {
				keys[entry.File] = scanKey(entry.File, opts.key())
			}
			job.Seq = len(jobs)
			job.Key = keys[entry.File]
			jobs = append(jobs, job)
		}
	}
	for _, cfg := range configs {
		cdb, ok := cfg.(*action.Cdb)
		if !ok {
			continue
		}
		output := filepath.Join(opts.OutRoot, cdb.OutputFile(opts.FmName))
		job := Job{Seq: len(jobs), Config: cfg, Output: output}
		if prev, ok := outputs[output]; ok {
			return nil, &DuplicateOutputError{Output: output, Jobs: [2]string{prev, job.ID()}}
		}
		outputs[output] = job.ID()
		jobs = append(jobs, job)
	}
	if opts.strategy() == LJF {
		sort.SliceStable(jobs, func(i, j int) bool {
			return jobs[i].Key > jobs[j].Key
		})
	}
	log.Debugf("worklist: %d jobs (%s, key=%s)", len(jobs), opts.strategy(), opts.key())
	return jobs, nil
}

// entryJob resolves the concrete invocation for one per-entry job.
func entryJob(entry compdb.Entry, cfg action.Config, opts Options) (Job, error) {
	ext := action.ExtensionFor(cfg, entry)
	output := action.OutputPath(opts.OutRoot, entry, ext)
	cmd := &execute.Cmd{
		ActionName: cfg.Name(),
		Desc:       cfg.Prompt() + " " + entry.File,
		Dir:        entry.Directory,
		OutputFile: output,
	}
	switch c := cfg.(type) {
	case *action.Compiler:
		cmd.Args = c.Command(entry, output)
		cmd.Capture = execute.CaptureNone
	case *action.Frontend:
		cmd.Args = c.Command(entry)
		cmd.Capture = execute.CaptureStdout
		if c.Stream == action.CaptureStderr {
			cmd.Capture = execute.CaptureStderr
		}
	default:
		return Job{}, fmt.Errorf("action %s: not a per-entry action", cfg.Name())
	}
	job := Job{Entry: entry, Config: cfg, Cmd: cmd, Output: output}
	cmd.ID = job.ID()
	return job, nil
}

// scanKey computes the job weight from the entry's source file. An
// unreadable source weighs 0 and sorts last under ljf; it is not an
// error, the job itself may still succeed.
func scanKey(fname string, key Key) int64 {
	buf, err := os.ReadFile(fname)
	if err != nil {
		log.Debugf("sort key: cannot scan %s: %v", fname, err)
		return 0
	}
	switch key {
	case KeyLine:
		n := bytes.Count(buf, []byte("\n"))
		if len(buf) > 0 && buf[len(buf)-1] != '\n' {
			n++
		}
		return int64(n)
	default:
		return int64(bytes.Count(buf, []byte(";")))
	}
}
