// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Snape3058/panda/action"
	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/execute"
	"github.com/Snape3058/panda/execute/localexec"
	"github.com/Snape3058/panda/ui"
)

// ErrJobFailed is returned by Run when FailFast is set and a job
// failed. Callers map it to the job-failure exit code.
var ErrJobFailed = errors.New("job failed")

// Runner drains an ordered worklist with a fixed pool of workers.
// Workers claim jobs through a shared monotonic index, so claim order
// always matches worklist order even though completion order does not.
type Runner struct {
	// DB is the full database, read by aggregate jobs.
	DB compdb.DB
	// Worklist is the ordered job sequence from BuildWorklist.
	Worklist []Job
	// OutRoot is the run's output root directory.
	OutRoot string
	// CDBPath is the compilation database file, passed to tools that
	// take a -p option.
	CDBPath string
	// Toolchain resolves the helper tools aggregate jobs invoke.
	Toolchain action.Toolchain
	// Workers is the pool size J. Values below 1 mean sequential.
	Workers int
	// FailFast stops dispatching after the first failed job.
	// In-flight jobs still finish and get their records.
	FailFast bool
	// Log receives one WorkRecord per completed job.
	Log *Log
	// RunID tags the records of this run. Empty means a fresh uuid.
	RunID string

	started time.Time
	next    atomic.Int64
	done    atomic.Int64
	fails   atomic.Int64
	stop    atomic.Bool

	mu       sync.Mutex
	firstErr error
}

// Run executes the worklist to completion. A non-zero child exit is
// recorded, not propagated, unless FailFast is set. The returned error
// is nil on a completed run, ErrJobFailed (wrapped) under FailFast,
// the context error on cancellation, or a log write failure, which is
// fatal since results would be silently lost.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	r.started = time.Now()
	log.Infof("run %s: %d jobs on %d workers", r.RunID, len(r.Worklist), workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			return r.work(gctx, worker)
		})
	}
	err := g.Wait()
	ui.Default.PrintLines("")
	stats := r.stats()
	if err != nil {
		return stats, err
	}
	r.mu.Lock()
	firstErr := r.firstErr
	r.mu.Unlock()
	if r.FailFast && firstErr != nil {
		return stats, firstErr
	}
	return stats, nil
}

// work is one worker loop. It claims the next unclaimed job until the
// worklist drains, the context is cancelled or a FailFast stop is
// requested. Per-job failures never abort the loop; only log write
// failures and cancellation do.
func (r *Runner) work(ctx context.Context, worker int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.stop.Load() {
			return nil
		}
		i := int(r.next.Add(1) - 1)
		if i >= len(r.Worklist) {
			return nil
		}
		if err := r.runJob(ctx, worker, r.Worklist[i]); err != nil {
			return err
		}
	}
}

// runJob executes one job and appends its WorkRecord.
func (r *Runner) runJob(ctx context.Context, worker int, job Job) error {
	r.progress(job)
	var res execute.Result
	var err error
	if job.Aggregate() {
		res, err = r.runAggregate(ctx, job)
	} else {
		res, err = localexec.Run(ctx, job.Cmd)
	}
	if res.Start.IsZero() {
		// The job failed before the clock started.
		now := time.Now()
		res.Start, res.End = now, now
	}
	rec := WorkRecord{
		RunID:      r.RunID,
		JobID:      job.ID(),
		Action:     job.Config.Name(),
		Worker:     worker,
		Start:      IntervalMetric(res.Start.Sub(r.started)),
		End:        IntervalMetric(res.End.Sub(r.started)),
		Duration:   IntervalMetric(res.Duration()),
		ExitStatus: res.ExitCode,
		Output:     job.Output,
	}
	if err != nil {
		rec.Err = err.Error()
	}
	r.done.Add(1)
	if err != nil {
		r.fails.Add(1)
		log.Warnf("job %s failed: %v", job.ID(), err)
		r.fail(job, err)
	}
	if lerr := r.Log.Write(rec); lerr != nil {
		return lerr
	}
	return nil
}

// fail records the first failure and requests a drain-and-stop when
// FailFast is set.
func (r *Runner) fail(job Job, err error) {
	r.mu.Lock()
	if r.firstErr == nil {
		r.firstErr = fmt.Errorf("job %s: %w: %v", job.ID(), ErrJobFailed, err)
	}
	r.mu.Unlock()
	if r.FailFast {
		r.stop.Store(true)
	}
}

// progress prints the transient one-line status.
func (r *Runner) progress(job Job) {
	desc := job.Config.Prompt()
	if !job.Aggregate() {
		desc = job.Cmd.Desc
	}
	ui.Default.PrintLines(fmt.Sprintf("[%d/%d] %s %s",
		r.done.Load(), len(r.Worklist), ui.FormatDuration(time.Since(r.started)), desc))
}

// Stats summarizes a run.
type Stats struct {
	// Total is the worklist length.
	Total int
	// Done is the number of jobs that ran, failed ones included.
	Done int
	// Fails is the number of jobs that spawned but exited non-zero,
	// or failed to spawn.
	Fails int
	// Skipped is the number of jobs never dispatched because the run
	// stopped early.
	Skipped int
}

func (r *Runner) stats() Stats {
	done := int(r.done.Load())
	return Stats{
		Total:   len(r.Worklist),
		Done:    done,
		Fails:   int(r.fails.Load()),
		Skipped: len(r.Worklist) - done,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("%d done %d failed %d skipped (total %d)",
		s.Done, s.Fails, s.Skipped, s.Total)
}
