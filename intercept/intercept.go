// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package intercept builds and persists the records emitted by the
// libpanda preload shim. One record is written per intercepted
// process-creation call, to a uniquely named file in the directory
// named by PANDA_TEMPORARY_OUTPUT_DIR.
package intercept

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Environment variables configuring the shim. They are captured once
// per process into an immutable Config snapshot.
const (
	OutputDirEnv = "PANDA_TEMPORARY_OUTPUT_DIR"
	TemplateEnv  = "PANDA_TEMPORARY_OUTPUT_TEMPLATE"
)

// DefaultTemplate is the record file name template. The run of X
// characters is replaced by a unique suffix per call.
const DefaultTemplate = "panda-exec.XXXXXX"

// Config is the immutable per-process configuration snapshot.
type Config struct {
	// OutputDir is the directory record files are written to.
	OutputDir string
	// Template is the mkstemp-style record file name template.
	Template string
}

// FromEnv captures the shim configuration from the process
// environment and validates that the output directory is writable.
// It fails when the required variables are missing: continuing
// without an output side channel would silently drop records.
func FromEnv() (Config, error) {
	dir := os.Getenv(OutputDirEnv)
	if dir == "" {
		return Config{}, fmt.Errorf("environment variable `%s' is not available", OutputDirEnv)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return Config{}, fmt.Errorf("cannot open directory %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return Config{}, fmt.Errorf("%s is not a directory", dir)
	}
	cfg := Config{OutputDir: dir, Template: DefaultTemplate}
	if tmpl := os.Getenv(TemplateEnv); tmpl != "" {
		cfg.Template = tmpl
	}
	return cfg, nil
}

// Record describes one intercepted process-creation call.
type Record struct {
	// Method is the name of the intercepted entry point.
	Method string `json:"method"`
	// PPID and PID identify the calling process and its parent.
	PPID int `json:"ppid"`
	PID  int `json:"pid"`
	// Dir is the working directory of the call.
	Dir string `json:"pwd"`
	// Arguments is the full argument vector, unmodified.
	Arguments []string `json:"arguments"`
}

// NewRecord builds a record for the current process.
func NewRecord(method string, argv []string) Record {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	return Record{
		Method:    method,
		PPID:      os.Getppid(),
		PID:       os.Getpid(),
		Dir:       wd,
		Arguments: argv,
	}
}

// Marshal renders the record as a single JSON line. Control
// characters, quotes and backslashes in arguments are escaped such
// that any JSON parser reconstructs the original strings exactly.
func (r Record) Marshal() ([]byte, error) {
	buf, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// Write persists the record to a uniquely named file under the
// configured output directory. The file is created exclusively, so
// concurrent calls from any number of processes never interleave.
func (r Record) Write(cfg Config) (string, error) {
	buf, err := r.Marshal()
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(cfg.OutputDir, tempPattern(cfg.Template))
	if err != nil {
		return "", fmt.Errorf("cannot create record file: %w", err)
	}
	name := f.Name()
	_, werr := f.Write(buf)
	cerr := f.Close()
	if werr != nil {
		return name, werr
	}
	return name, cerr
}

// tempPattern converts a mkstemp template like "panda-exec.XXXXXX"
// into an os.CreateTemp pattern. A template without an X run gets the
// unique suffix appended.
func tempPattern(tmpl string) string {
	i := strings.Index(tmpl, "XXXXXX")
	if i < 0 {
		return tmpl + ".*"
	}
	return tmpl[:i] + "*" + tmpl[i+len("XXXXXX"):]
}

// Parse reads a record back from its JSON form.
func Parse(buf []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(buf, &r); err != nil {
		return Record{}, fmt.Errorf("malformed exec record: %w", err)
	}
	return r, nil
}
