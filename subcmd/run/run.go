// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package run is the run subcommand, scheduling analysis actions over
// the translation units of a compilation database.
package run

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"
	"gopkg.in/yaml.v3"

	"github.com/Snape3058/panda/action"
	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/runner"
)

// Exit codes. Job failures and configuration errors are distinct so
// wrappers can tell a broken tool from a broken invocation.
const (
	exitOK        = 0
	exitJobFailed = 1
	exitConfigErr = 2
)

func Cmd(ctx context.Context) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "run [action flags] [-f compile_commands.json] [-o dir]",
		ShortDesc: "run analysis actions over a compilation database",
		LongDesc: `Run analysis actions over a compilation database.

Each selected action is crossed with every database entry into an
independent job; jobs run on -j workers with no ordering beyond the
selected sort strategy.

 $ panda run -ast -j 8 -f compile_commands.json -o /tmp/panda
 $ panda run -ctu -sort ljf -key line -o /tmp/panda
`,
		CommandRun: func() subcommands.CommandRun {
			c := &runCmd{ctx: ctx}
			c.init()
			return c
		},
	}
}

type runCmd struct {
	subcommands.CommandRunBase
	ctx context.Context

	ast         bool
	preprocess  bool
	ll          bool
	bc          bool
	fm          bool
	fmOnDemand  bool
	sourceList  bool
	fileList    bool
	invocations bool
	ctu         bool
	ctuOnDemand bool

	cdbPath  string
	outRoot  string
	jobs     int
	sortName string
	keyName  string
	failFast bool
	plugin   string
	cfgFile  string

	cc        string
	cxx       string
	cfm       string
	clangPath string
	fmName    string
}

func (c *runCmd) init() {
	c.Flags.BoolVar(&c.ast, "ast", false, "generate Clang PCH files (*.ast)")
	c.Flags.BoolVar(&c.preprocess, "i", false, "generate preprocessed files (*.i, *.ii)")
	c.Flags.BoolVar(&c.ll, "ll", false, "generate LLVM IR files (*.ll)")
	c.Flags.BoolVar(&c.bc, "bc", false, "generate LLVM bitcode files (*.bc)")
	c.Flags.BoolVar(&c.fm, "fm", false, "generate the external definition map from *.ast artifacts")
	c.Flags.BoolVar(&c.fmOnDemand, "fm-on-demand", false, "generate the external definition map against original sources")
	c.Flags.BoolVar(&c.sourceList, "source-list", false, "generate the unique source file index")
	c.Flags.BoolVar(&c.fileList, "file-list", false, "generate the source and header index")
	c.Flags.BoolVar(&c.invocations, "invocation-list", false, "generate the CTU invocation list")
	c.Flags.BoolVar(&c.ctu, "ctu", false, "shortcut for -ast -fm (CTU loading strategy)")
	c.Flags.BoolVar(&c.ctuOnDemand, "ctu-on-demand", false, "shortcut for -invocation-list -fm-on-demand")

	c.Flags.StringVar(&c.cdbPath, "f", "compile_commands.json", "compilation database file")
	c.Flags.StringVar(&c.outRoot, "o", "panda-output", "output root directory")
	c.Flags.IntVar(&c.jobs, "j", 1, "number of parallel workers")
	c.Flags.StringVar(&c.sortName, "sort", string(runner.FIFO), "worklist sort strategy: fifo or ljf")
	c.Flags.StringVar(&c.keyName, "key", string(runner.KeySemicolon), "ljf weight metric: semicolon or line")
	c.Flags.BoolVar(&c.failFast, "fail-fast", false, "stop dispatching after the first failed job")
	c.Flags.StringVar(&c.plugin, "plugin", "", "path to a plugin description file")
	c.Flags.StringVar(&c.cfgFile, "config", "", "path to a defaults file (yaml)")

	c.Flags.StringVar(&c.cc, "cc", "", "C analysis compiler (default clang)")
	c.Flags.StringVar(&c.cxx, "cxx", "", "C++ analysis compiler (default clang++)")
	c.Flags.StringVar(&c.cfm, "cfm", "", "clang-extdef-mapping executable")
	c.Flags.StringVar(&c.clangPath, "clang-path", "", "directory to resolve the clang tools from")
	c.Flags.StringVar(&c.fmName, "fm-name", "", "external definition map file name")
}

// defaults is the optional -config file, overriding built-in defaults
// but never explicit flags.
type defaults struct {
	CC        string `yaml:"cc"`
	CXX       string `yaml:"cxx"`
	CFM       string `yaml:"cfm"`
	ClangPath string `yaml:"clang-path"`
	FmName    string `yaml:"fm-name"`
	Jobs      int    `yaml:"jobs"`
	Sort      string `yaml:"sort"`
	Key       string `yaml:"key"`
}

func (c *runCmd) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n", a.GetName())
		return exitConfigErr
	}
	err := c.run(c.ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, runner.ErrJobFailed), errors.Is(err, context.Canceled):
		log.Errorf("%v", err)
		return exitJobFailed
	default:
		log.Errorf("%v", err)
		return exitConfigErr
	}
}

func (c *runCmd) run(ctx context.Context) error {
	if err := c.applyDefaults(); err != nil {
		return err
	}
	strategy, err := runner.ParseStrategy(c.sortName)
	if err != nil {
		return err
	}
	key, err := runner.ParseKey(c.keyName)
	if err != nil {
		return err
	}
	tc := c.toolchain()
	configs, err := c.selectConfigs(tc)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return errors.New("no actions selected")
	}
	if err := probeTools(ctx, configs, tc); err != nil {
		return err
	}
	db, err := compdb.Load(c.cdbPath)
	if err != nil {
		return err
	}
	jobs, err := runner.BuildWorklist(db, configs, runner.Options{
		OutRoot:  c.outRoot,
		Strategy: strategy,
		Key:      key,
		FmName:   tc.FmName,
	})
	if err != nil {
		return err
	}
	started := time.Now()
	joblog, err := runner.NewLog(c.outRoot, strategy, key, started)
	if err != nil {
		return err
	}
	defer joblog.Close()
	r := &runner.Runner{
		DB:        db,
		Worklist:  jobs,
		OutRoot:   c.outRoot,
		CDBPath:   c.cdbPath,
		Toolchain: tc,
		Workers:   c.jobs,
		FailFast:  c.failFast,
		Log:       joblog,
	}
	stats, err := r.Run(ctx)
	log.Infof("%s in %s, log %s", stats, time.Since(started).Round(time.Millisecond), joblog.Path())
	return err
}

// applyDefaults merges the -config file under explicit flags: a value
// from the file applies only when its flag was left untouched.
func (c *runCmd) applyDefaults() error {
	if c.cfgFile == "" {
		return nil
	}
	buf, err := os.ReadFile(c.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to read defaults file: %w", err)
	}
	var d defaults
	if err := yaml.Unmarshal(buf, &d); err != nil {
		return fmt.Errorf("malformed defaults file %s: %w", c.cfgFile, err)
	}
	set := make(map[string]bool)
	c.Flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
	apply := func(name string, dst *string, val string) {
		if val != "" && !set[name] {
			*dst = val
		}
	}
	apply("cc", &c.cc, d.CC)
	apply("cxx", &c.cxx, d.CXX)
	apply("cfm", &c.cfm, d.CFM)
	apply("clang-path", &c.clangPath, d.ClangPath)
	apply("fm-name", &c.fmName, d.FmName)
	apply("sort", &c.sortName, d.Sort)
	apply("key", &c.keyName, d.Key)
	if d.Jobs > 0 && !set["j"] {
		c.jobs = d.Jobs
	}
	return nil
}

// toolchain resolves the analysis tools from -clang-path and the
// per-tool overrides, overrides winning.
func (c *runCmd) toolchain() action.Toolchain {
	tc := action.DefaultToolchain
	if c.clangPath != "" {
		tc.CC = filepath.Join(c.clangPath, tc.CC)
		tc.CXX = filepath.Join(c.clangPath, tc.CXX)
		tc.CFM = filepath.Join(c.clangPath, tc.CFM)
	}
	if c.cc != "" {
		tc.CC = c.cc
	}
	if c.cxx != "" {
		tc.CXX = c.cxx
	}
	if c.cfm != "" {
		tc.CFM = c.cfm
	}
	if c.fmName != "" {
		tc.FmName = c.fmName
	}
	return tc
}

// selectConfigs assembles the selected actions, builtins first in a
// fixed order, then plugins in file order, so the fifo expansion is
// deterministic for a given command line.
func (c *runCmd) selectConfigs(tc action.Toolchain) ([]action.Config, error) {
	if c.ctu {
		c.ast = true
		c.fm = true
	}
	if c.ctuOnDemand {
		c.invocations = true
		c.fmOnDemand = true
	}
	var names []string
	for _, sel := range []struct {
		on   bool
		name string
	}{
		{c.ast, "ast"},
		{c.preprocess, "i"},
		{c.ll, "ll"},
		{c.bc, "bc"},
		{c.sourceList, "source-list"},
		{c.fileList, "file-list"},
		{c.invocations, "invocation-list"},
		{c.fm, "fm"},
		{c.fmOnDemand, "fm-on-demand"},
	} {
		if sel.on {
			names = append(names, sel.name)
		}
	}
	var configs []action.Config
	for _, name := range names {
		cfg, err := action.Builtin(name, tc)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if c.plugin != "" {
		plugins, err := action.LoadPlugins(c.plugin, c.outRoot)
		if err != nil {
			return nil, err
		}
		configs = append(configs, plugins...)
	}
	return configs, nil
}

// probeTools verifies the selected tools exist before scheduling.
// Compiler drivers and the extdef mapper answer --version; frontend
// tools are only resolved on PATH since their flag surface is unknown.
func probeTools(ctx context.Context, configs []action.Config, tc action.Toolchain) error {
	drivers := make(map[string]bool)
	frontends := make(map[string]bool)
	for _, cfg := range configs {
		switch c := cfg.(type) {
		case *action.Compiler:
			for _, tool := range c.Tools {
				drivers[tool] = true
			}
		case *action.Frontend:
			frontends[c.Tool] = true
		case *action.Cdb:
			switch c.Kind {
			case action.CdbFileList:
				drivers[tc.CC] = true
				drivers[tc.CXX] = true
			case action.CdbExtdefMapAst, action.CdbExtdefMapSource:
				drivers[tc.CFM] = true
			}
		}
	}
	for _, tool := range sortedKeys(drivers) {
		cmd := exec.CommandContext(ctx, tool, "--version")
		cmd.Stdout = nil
		cmd.Stderr = nil
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("tool %s is not usable: %w", tool, err)
		}
		log.Debugf("probed %s", tool)
	}
	for _, tool := range sortedKeys(frontends) {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("tool %s is not usable: %w", tool, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
