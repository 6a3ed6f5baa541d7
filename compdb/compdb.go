// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package compdb loads and stores compilation databases
// (compile_commands.json).
package compdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// Entry is one compiler invocation of the database.
// It is immutable once loaded. An entry is identified by
// (Directory, File); the database preserves source order.
type Entry struct {
	// Directory is the working directory of the compilation.
	Directory string `json:"directory"`

	// File is the absolute path of the translation unit main file.
	File string `json:"file"`

	// Arguments holds the full compile command, argv[0] included.
	Arguments []string `json:"arguments"`

	// Output is the object file produced by the compilation, if the
	// database records one.
	Output string `json:"output,omitempty"`
}

// OutputIndex returns the index of the value of the -o option in
// e.Arguments, or -1 if the command has no -o option.
func (e Entry) OutputIndex() int {
	for i, arg := range e.Arguments {
		if arg == "-o" && i+1 < len(e.Arguments) {
			return i + 1
		}
		if len(arg) > 2 && arg[:2] == "-o" {
			return i
		}
	}
	return -1
}

// OutputName returns the object path the entry compiles to, relative
// paths resolved against the entry directory. It falls back to
// "<file>.o" when neither Output nor a -o option is recorded.
func (e Entry) OutputName() string {
	if e.Output != "" {
		return joinDir(e.Directory, e.Output)
	}
	if i := e.OutputIndex(); i >= 0 {
		out := e.Arguments[i]
		if len(out) > 2 && out[:2] == "-o" {
			out = out[2:]
		}
		return joinDir(e.Directory, out)
	}
	return e.File + ".o"
}

// DB is an ordered compilation database.
type DB []Entry

// rawEntry accepts both the "arguments" and the "command" form.
type rawEntry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments"`
	Command   string   `json:"command"`
	Output    string   `json:"output"`
}

// Load reads a compilation database file.
// Entries using the "command" string form are split shell-style.
// File paths are made absolute against the entry directory.
func Load(fname string) (DB, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to read compilation database: %w", err)
	}
	var raw []rawEntry
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("malformed compilation database %s: %w", fname, err)
	}
	db := make(DB, 0, len(raw))
	for i, r := range raw {
		args := r.Arguments
		if len(args) == 0 && r.Command != "" {
			args, err = Split(r.Command)
			if err != nil {
				return nil, fmt.Errorf("entry %d of %s: %w", i, fname, err)
			}
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("entry %d of %s: no arguments nor command", i, fname)
		}
		if r.File == "" {
			return nil, fmt.Errorf("entry %d of %s: no file", i, fname)
		}
		db = append(db, Entry{
			Directory: r.Directory,
			File:      joinDir(r.Directory, r.File),
			Arguments: args,
			Output:    r.Output,
		})
	}
	log.Debugf("loaded %d entries from %s", len(db), fname)
	return db, nil
}

// Save writes the database to fname in the "arguments" form.
func Save(db DB, fname string) error {
	buf, err := json.MarshalIndent(db, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(fname, append(buf, '\n'), 0o644)
}

// Sources returns the unique source files of the database,
// in first-appearance order.
func (db DB) Sources() []string {
	seen := make(map[string]bool, len(db))
	var srcs []string
	for _, e := range db {
		if seen[e.File] {
			continue
		}
		seen[e.File] = true
		srcs = append(srcs, e.File)
	}
	return srcs
}

func joinDir(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}
