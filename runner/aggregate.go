// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/Snape3058/panda/action"
	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/execute"
)

// runAggregate executes a whole-database transform in-process. It
// still reports wall-clock bounds so the execution log stays
// chart-consistent with spawned jobs.
func (r *Runner) runAggregate(ctx context.Context, job Job) (execute.Result, error) {
	start := time.Now()
	cdb, ok := job.Config.(*action.Cdb)
	if !ok {
		return execute.Result{Start: start, End: start, ExitCode: 1},
			fmt.Errorf("job %s: not an aggregate action", job.ID())
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return execute.Result{Start: start, End: time.Now(), ExitCode: 1}, err
	}
	var err error
	switch cdb.Kind {
	case action.CdbSourceList:
		err = r.writeSourceList(job.Output)
	case action.CdbFileList:
		err = r.writeFileList(ctx, job.Output)
	case action.CdbInvocationList:
		err = r.writeInvocationList(job.Output)
	case action.CdbExtdefMapAst:
		err = r.writeExtdefMap(ctx, job.Output, false)
	case action.CdbExtdefMapSource:
		err = r.writeExtdefMap(ctx, job.Output, true)
	default:
		err = fmt.Errorf("unknown database transform %q", cdb.Kind)
	}
	res := execute.Result{Start: start, End: time.Now()}
	if err != nil {
		res.ExitCode = 1
	}
	return res, err
}

// writeSourceList emits the unique absolute source files, in database
// order.
func (r *Runner) writeSourceList(output string) error {
	var sb strings.Builder
	for _, src := range r.DB.Sources() {
		sb.WriteString(src)
		sb.WriteByte('\n')
	}
	return os.WriteFile(output, []byte(sb.String()), 0o644)
}

// writeFileList emits the unique source and header closure. Headers
// come from a compiler -MM pass per entry; an entry whose scan fails
// contributes its source only.
func (r *Runner) writeFileList(ctx context.Context, output string) error {
	seen := make(map[string]bool)
	var files []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			files = append(files, name)
		}
	}
	for _, src := range r.DB.Sources() {
		add(src)
	}
	for _, entry := range r.DB {
		if err := ctx.Err(); err != nil {
			return err
		}
		deps, err := r.scanDeps(ctx, entry)
		if err != nil {
			log.Warnf("file list: dependency scan of %s failed: %v", entry.File, err)
			continue
		}
		for _, dep := range deps {
			add(dep)
		}
	}
	var sb strings.Builder
	for _, name := range files {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	return os.WriteFile(output, []byte(sb.String()), 0o644)
}

// scanDeps runs the entry's compiler with -MM and parses the emitted
// make rule into absolute dependency paths.
func (r *Runner) scanDeps(ctx context.Context, entry compdb.Entry) ([]string, error) {
	args := make([]string, 0, len(entry.Arguments)+1)
	skip := false
	for i, arg := range entry.Arguments {
		if skip {
			skip = false
			continue
		}
		if i == 0 {
			args = append(args, r.tool(action.Language(arg)))
			continue
		}
		if arg == "-o" {
			skip = true
			continue
		}
		if len(arg) > 2 && arg[:2] == "-o" {
			continue
		}
		args = append(args, arg)
	}
	args = append(args, "-MM")
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = entry.Directory
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseDeps(string(out), entry.Directory), nil
}

// parseDeps flattens a make dependency rule, dropping the target and
// continuation backslashes and resolving relative paths against dir.
func parseDeps(rule, dir string) []string {
	rule = strings.ReplaceAll(rule, "\\\r\n", " ")
	rule = strings.ReplaceAll(rule, "\\\n", " ")
	var deps []string
	for _, tok := range strings.Fields(rule) {
		if strings.HasSuffix(tok, ":") {
			continue
		}
		if !filepath.IsAbs(tok) {
			tok = filepath.Join(dir, tok)
		}
		deps = append(deps, filepath.Clean(tok))
	}
	return deps
}

// writeInvocationList emits the on-demand CTU invocation list: a YAML
// map from absolute source path to the analysis invocation, which is
// the original command with the compiler replaced by the configured
// tool.
func (r *Runner) writeInvocationList(output string) error {
	invocations := make(map[string][]string, len(r.DB))
	for _, entry := range r.DB {
		if _, ok := invocations[entry.File]; ok {
			continue
		}
		args := make([]string, len(entry.Arguments))
		copy(args, entry.Arguments)
		args[0] = r.tool(action.Language(args[0]))
		invocations[entry.File] = args
	}
	buf, err := yaml.Marshal(invocations)
	if err != nil {
		return err
	}
	return os.WriteFile(output, buf, 0o644)
}

// writeExtdefMap emits the Clang external definition map by running
// clang-extdef-mapping over every source. The loading strategy points
// the location column at the generated .ast artifacts; the on-demand
// strategy leaves the source paths in place.
func (r *Runner) writeExtdefMap(ctx context.Context, output string, onDemand bool) error {
	astFor := make(map[string]string, len(r.DB))
	if !onDemand {
		for _, entry := range r.DB {
			astFor[entry.File] = action.OutputPath(r.OutRoot, entry, ".ast")
		}
	}
	cdbDir := filepath.Dir(r.CDBPath)
	var sb strings.Builder
	for _, src := range r.DB.Sources() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd := exec.CommandContext(ctx, r.Toolchain.CFM, "-p", cdbDir, src)
		out, err := cmd.Output()
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.Toolchain.CFM, src, err)
		}
		for _, line := range strings.Split(string(out), "\n") {
			if line == "" {
				continue
			}
			if !onDemand {
				line = rewriteLocation(line, astFor)
			}
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return os.WriteFile(output, []byte(sb.String()), 0o644)
}

// rewriteLocation replaces the trailing source path of one extdef map
// line with its .ast artifact. Lines pointing outside the database are
// kept unchanged.
func rewriteLocation(line string, astFor map[string]string) string {
	i := strings.LastIndexByte(line, ' ')
	if i < 0 {
		return line
	}
	if ast, ok := astFor[line[i+1:]]; ok {
		return line[:i+1] + ast
	}
	return line
}

// tool resolves the analysis compiler for a language.
func (r *Runner) tool(lang action.Lang) string {
	if lang == action.LangCXX {
		return r.Toolchain.CXX
	}
	return r.Toolchain.CC
}
