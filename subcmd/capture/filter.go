// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package capture

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/intercept"
)

// paramRule matches one option plus the number of value arguments it
// consumes. A value joined to the option (-lfoo) counts against it.
type paramRule struct {
	matcher *regexp.Regexp
	count   int
}

var (
	compilerFilter = regexp.MustCompile(`^([\w-]*g?cc|[\w-]*[gc]\+\+|clang(\+\+)?)(-[\d.]+)?$`)
	sourceFilter   = regexp.MustCompile(`^[^-].*\.(c|C|cc|CC|cxx|cpp|c\+\+|i|ii|ixx|ipp|i\+\+)$`)

	outputRule = paramRule{regexp.MustCompile(`^-o`), 1}

	// Options dropped from the synthesized invocation: linker inputs
	// and flags, dependency generation, warnings configuration.
	removeRules = []paramRule{
		{regexp.MustCompile(`^-[lL]`), 1},
		{regexp.MustCompile(`^-M[TF]$`), 1},
		{regexp.MustCompile(`^-(Wl,|shared|static)`), 0},
		{regexp.MustCompile(`^-(v|Werror(=.+)?|Wall|Wextra|M[DGMPQ]*|)$`), 0},
	}

	// Modes that never contribute a compile entry: preprocessing,
	// internal cc1 invocations, dependency-only and syntax-only runs.
	abortArgs = map[string]bool{
		"-E": true, "-cc1": true, "-cc1as": true,
		"-M": true, "-MM": true, "-###": true, "-fsyntax-only": true,
	}
)

// prefixMatch returns the anchored prefix match of rule against arg,
// or an empty string.
func (r paramRule) prefixMatch(arg string) string {
	return r.matcher.FindString(arg)
}

// consumes reports how many following arguments the matched option
// swallows.
func (r paramRule) consumes(matched, arg string) int {
	n := r.count
	if matched != arg {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

// entries synthesizes compile entries from one interception record.
// Non-compiler calls, non-compile modes and records naming no source
// file yield nothing. One entry is emitted per source argument, with
// the sibling sources removed from its invocation.
func entries(rec intercept.Record) []compdb.Entry {
	args := rec.Arguments
	if len(args) == 0 {
		return nil
	}
	exe := args[0]
	if !compilerFilter.MatchString(filepath.Base(exe)) {
		return nil
	}
	var filtered, files []string
	output := ""
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if abortArgs[arg] {
			return nil
		}
		if skip, removed := matchRemove(arg); removed {
			i += skip
			continue
		}
		if m := outputRule.prefixMatch(arg); m != "" {
			val := arg[len(m):]
			if val == "" && i+1 < len(args) {
				i++
				val = args[i]
			}
			output = joinDir(rec.Dir, val)
			filtered = append(filtered, "-o", output)
			continue
		}
		if src := matchSource(arg, rec.Dir); src != "" {
			files = append(files, src)
			filtered = append(filtered, src)
			continue
		}
		filtered = append(filtered, arg)
	}
	if len(files) == 0 {
		return nil
	}
	compilation := false
	for _, arg := range filtered {
		if arg == "-c" {
			compilation = true
			break
		}
	}
	var db []compdb.Entry
	for _, file := range files {
		db = append(db, compdb.Entry{
			Directory: rec.Dir,
			File:      file,
			Arguments: entryArguments(exe, filtered, files, file, compilation),
			Output:    output,
		})
	}
	return db
}

// entryArguments rebuilds the invocation for one source file: sibling
// sources are dropped and a missing -c is inserted so the synthesized
// entry always describes a single-unit compilation.
func entryArguments(exe string, filtered, files []string, file string, compilation bool) []string {
	siblings := make(map[string]bool, len(files))
	for _, f := range files {
		if f != file {
			siblings[f] = true
		}
	}
	args := make([]string, 0, len(filtered)+2)
	args = append(args, exe)
	for _, arg := range filtered {
		if siblings[arg] {
			continue
		}
		if arg == file && !compilation {
			args = append(args, "-c")
		}
		args = append(args, arg)
	}
	return args
}

// matchRemove reports whether arg starts a dropped option and how many
// following arguments go with it.
func matchRemove(arg string) (skip int, removed bool) {
	for _, rule := range removeRules {
		if m := rule.prefixMatch(arg); m != "" {
			return rule.consumes(m, arg), true
		}
	}
	return 0, false
}

// matchSource resolves arg as a source file argument. A file counts
// when it exists on disk, or lives under /tmp where generated sources
// may already be gone by the time records are replayed.
func matchSource(arg, dir string) string {
	full := joinDir(dir, arg)
	if !sourceFilter.MatchString(filepath.Base(full)) {
		return ""
	}
	if _, err := os.Stat(full); err == nil || strings.HasPrefix(full, "/tmp/") {
		return full
	}
	return ""
}

func joinDir(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}
