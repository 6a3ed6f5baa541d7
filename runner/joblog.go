// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// IntervalMetric is a duration serialized as seconds.
type IntervalMetric time.Duration

func (i IntervalMetric) String() string {
	return time.Duration(i).String()
}

// MarshalJSON marshals the interval in seconds.
func (i IntervalMetric) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(i).Seconds())
}

// UnmarshalJSON unmarshals a seconds value into the interval.
func (i *IntervalMetric) UnmarshalJSON(b []byte) error {
	var sec float64
	if err := json.Unmarshal(b, &sec); err != nil {
		return err
	}
	*i = IntervalMetric(sec * float64(time.Second))
	return nil
}

// WorkRecord is one execution log entry, appended when its job
// completes. Log order is completion order, not schedule order.
// Start and End are offsets from the run start, so the log replays as
// a Gantt chart without clock context.
type WorkRecord struct {
	RunID      string         `json:"run_id"`
	JobID      string         `json:"job_id"`
	Action     string         `json:"action"`
	Worker     int            `json:"worker"`
	Start      IntervalMetric `json:"start"`
	End        IntervalMetric `json:"end"`
	Duration   IntervalMetric `json:"duration"`
	ExitStatus int            `json:"exit_status"`
	Err        string         `json:"err,omitempty"`
	Output     string         `json:"output,omitempty"`
}

// Log is the append-only execution log, one JSON line per WorkRecord.
// Writes are mutex-serialized so concurrent workers never interleave
// partial lines; a partial log after an interrupt stays parseable.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// LogName returns the per-run log file name. The strategy, key and
// start timestamp keep repeated runs from colliding.
func LogName(strategy Strategy, key Key, start time.Time) string {
	return fmt.Sprintf("logs-%s-%s-%s", strategy, key, start.Format("20060102_150405"))
}

// NewLog creates the run's execution log under outRoot. Runs started
// within the same second get a numeric suffix instead of clobbering
// each other. Failure is fatal to the run: results would otherwise be
// silently lost.
func NewLog(outRoot string, strategy Strategy, key Key, start time.Time) (*Log, error) {
	if err := os.MkdirAll(outRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}
	base := LogName(strategy, key, start)
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(outRoot, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err == nil {
			return &Log{f: f, path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) || i >= 1000 {
			return nil, fmt.Errorf("failed to create execution log: %w", err)
		}
	}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Write appends one record.
func (l *Log) Write(rec WorkRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(buf); err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}
	return nil
}

// Close flushes and closes the log.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadLog parses an execution log back into records. Used by the
// summary report; external chart renderers read the same format.
func ReadLog(path string) ([]WorkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var recs []WorkRecord
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		var rec WorkRecord
		if err := json.Unmarshal(s.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("malformed execution log %s: %w", path, err)
		}
		recs = append(recs, rec)
	}
	return recs, s.Err()
}
