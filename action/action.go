// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package action describes the units of work that run against a
// compilation database: compiler-derived invocations, frontend tool
// invocations and whole-database transforms. A Config is pure data;
// it owns no runtime resources and is shared read-only by all workers.
package action

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/Snape3058/panda/compdb"
)

// Lang identifies the source language of a compile entry.
type Lang string

const (
	LangC   Lang = "c"
	LangCXX Lang = "c++"
)

// Stream designates the output stream a frontend tool is captured from.
type Stream int

const (
	CaptureStdout Stream = iota
	CaptureStderr
)

func (s Stream) String() string {
	if s == CaptureStderr {
		return "stderr"
	}
	return "stdout"
}

// CdbKind selects a whole-database transform.
type CdbKind string

const (
	// CdbSourceList emits the unique absolute source file list.
	CdbSourceList CdbKind = "source-list"
	// CdbFileList emits the unique source and header closure.
	CdbFileList CdbKind = "file-list"
	// CdbInvocationList emits the CTU on-demand invocation list.
	CdbInvocationList CdbKind = "invocation-list"
	// CdbExtdefMapAst emits the external definition map pointing at
	// generated .ast files (CTU loading strategy).
	CdbExtdefMapAst CdbKind = "extdef-map-ast"
	// CdbExtdefMapSource emits the external definition map pointing at
	// the original sources (CTU on-demand strategy).
	CdbExtdefMapSource CdbKind = "extdef-map-source"
)

// Config is one action configuration.
// It is a closed union: Compiler, Frontend and Cdb are the only
// implementations, and plugin descriptions are parsed into the same
// three shapes.
type Config interface {
	// Name is a short identifier used in job ids and logs.
	Name() string
	// Prompt is the human readable progress message prefix.
	Prompt() string
	// Aggregate reports whether the config contributes one job for
	// the whole database instead of one job per entry.
	Aggregate() bool

	sealed()
}

// Compiler runs a compiler-like invocation derived from the entry's
// original arguments.
type Compiler struct {
	ActionName string
	PromptText string
	// Tools maps the entry language to the tool that replaces the
	// original argv[0].
	Tools map[Lang]string
	// ExtraArgs are appended to the derived invocation.
	ExtraArgs []string
	// Ext is the output artifact extension, e.g. ".ast".
	Ext string
	// Exts overrides Ext per language when set (".i" vs ".ii").
	Exts map[Lang]string
	// OutputOpt is the option flag introducing the output path.
	// Empty means "-o".
	OutputOpt string
}

func (c *Compiler) Name() string    { return c.ActionName }
func (c *Compiler) Prompt() string  { return c.PromptText }
func (c *Compiler) Aggregate() bool { return false }
func (c *Compiler) sealed()         {}

// Extension returns the artifact extension for the language.
func (c *Compiler) Extension(lang Lang) string {
	if ext, ok := c.Exts[lang]; ok {
		return ext
	}
	return c.Ext
}

func (c *Compiler) outputOpt() string {
	if c.OutputOpt == "" {
		return "-o"
	}
	return c.OutputOpt
}

// Command derives the concrete command line for entry, writing the
// artifact to output. The entry's original arguments are kept, with
// argv[0] replaced by the per-language tool, the output option
// redirected to output, and the extra arguments appended.
func (c *Compiler) Command(entry compdb.Entry, output string) []string {
	lang := Language(entry.Arguments[0])
	args := make([]string, len(entry.Arguments))
	copy(args, entry.Arguments)
	if tool, ok := c.Tools[lang]; ok && tool != "" {
		args[0] = tool
	}
	opt := c.outputOpt()
	if i := entry.OutputIndex(); i >= 0 && opt == "-o" {
		if len(args[i]) > 2 && args[i][:2] == "-o" {
			args[i] = "-o" + output
		} else {
			args[i] = output
		}
	} else {
		args = append(args, opt, output)
	}
	return append(args, c.ExtraArgs...)
}

// Frontend runs an independent tool against the entry's main file;
// the designated stream is captured into the artifact.
type Frontend struct {
	ActionName string
	PromptText string
	Tool       string
	ExtraArgs  []string
	Ext        string
	Stream     Stream
}

func (f *Frontend) Name() string    { return f.ActionName }
func (f *Frontend) Prompt() string  { return f.PromptText }
func (f *Frontend) Aggregate() bool { return false }
func (f *Frontend) sealed()         {}

// Command builds the frontend invocation for entry.
func (f *Frontend) Command(entry compdb.Entry) []string {
	args := make([]string, 0, len(f.ExtraArgs)+2)
	args = append(args, f.Tool)
	args = append(args, f.ExtraArgs...)
	return append(args, entry.File)
}

// Cdb is a transform over the whole database, contributing exactly
// one aggregate job.
type Cdb struct {
	ActionName string
	PromptText string
	Kind       CdbKind
}

func (c *Cdb) Name() string    { return c.ActionName }
func (c *Cdb) Prompt() string  { return c.PromptText }
func (c *Cdb) Aggregate() bool { return true }
func (c *Cdb) sealed()         {}

// OutputFile returns the aggregate artifact name under the output root.
func (c *Cdb) OutputFile(fmName string) string {
	switch c.Kind {
	case CdbSourceList:
		return "source-index.txt"
	case CdbFileList:
		return "file-index.txt"
	case CdbInvocationList:
		return "invocation-list.yml"
	case CdbExtdefMapAst, CdbExtdefMapSource:
		if fmName != "" {
			return fmName
		}
		return DefaultFmName
	}
	return c.ActionName + ".txt"
}

// DefaultFmName is the default external definition map file name.
const DefaultFmName = "externalFnMap.txt"

// PathTreeRoot is the directory under the output root mirroring the
// original output tree of per-entry artifacts.
const PathTreeRoot = "preprocess-root"

var (
	ccFilter  = regexp.MustCompile(`^([\w-]*g?cc|clang)(-[\d.]+)?$`)
	cxxFilter = regexp.MustCompile(`^([\w-]*[gc]\+\+|clang\+\+)(-[\d.]+)?$`)
)

// Language detects the source language from the compiler executable
// name of the original invocation. Unknown compilers default to C.
func Language(compiler string) Lang {
	name := filepath.Base(compiler)
	if cxxFilter.MatchString(name) {
		return LangCXX
	}
	if ccFilter.MatchString(name) {
		return LangC
	}
	return LangC
}

// IsCompiler reports whether the executable name looks like a C or C++
// compiler driver.
func IsCompiler(exe string) bool {
	name := filepath.Base(exe)
	return ccFilter.MatchString(name) || cxxFilter.MatchString(name)
}

// OutputPath maps an entry artifact into the run's output tree:
// <outRoot>/preprocess-root/<entry file><ext>.
func OutputPath(outRoot string, entry compdb.Entry, ext string) string {
	return filepath.Join(outRoot, PathTreeRoot, entry.File+ext)
}

// ExtensionFor returns the artifact extension a config produces for an
// entry, or an empty string for aggregate configs.
func ExtensionFor(cfg Config, entry compdb.Entry) string {
	switch c := cfg.(type) {
	case *Compiler:
		return c.Extension(Language(entry.Arguments[0]))
	case *Frontend:
		return c.Ext
	}
	return ""
}

// Validate checks a config for the errors that must be reported before
// scheduling starts.
func Validate(cfg Config) error {
	switch c := cfg.(type) {
	case *Compiler:
		if c.ActionName == "" {
			return fmt.Errorf("compiler action with no name")
		}
		if c.Ext == "" && len(c.Exts) == 0 {
			return fmt.Errorf("compiler action %s: no output extension", c.ActionName)
		}
	case *Frontend:
		if c.ActionName == "" {
			return fmt.Errorf("frontend action with no name")
		}
		if c.Tool == "" {
			return fmt.Errorf("frontend action %s: no tool", c.ActionName)
		}
		if c.Ext == "" {
			return fmt.Errorf("frontend action %s: no output extension", c.ActionName)
		}
	case *Cdb:
		switch c.Kind {
		case CdbSourceList, CdbFileList, CdbInvocationList, CdbExtdefMapAst, CdbExtdefMapSource:
		default:
			return fmt.Errorf("unknown database transform %q", c.Kind)
		}
	}
	return nil
}
