// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package action

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Snape3058/panda/compdb"
)

var testToolchain = Toolchain{CC: "clang", CXX: "clang++", CFM: "clang-extdef-mapping"}

func TestLanguage(t *testing.T) {
	for _, tc := range []struct {
		compiler string
		want     Lang
	}{
		{compiler: "cc", want: LangC},
		{compiler: "gcc", want: LangC},
		{compiler: "/usr/bin/gcc-12.2", want: LangC},
		{compiler: "clang", want: LangC},
		{compiler: "x86_64-linux-gnu-gcc", want: LangC},
		{compiler: "c++", want: LangCXX},
		{compiler: "g++", want: LangCXX},
		{compiler: "clang++", want: LangCXX},
		{compiler: "/opt/llvm/bin/clang++-17", want: LangCXX},
		{compiler: "unknown-frontend", want: LangC},
	} {
		if got := Language(tc.compiler); got != tc.want {
			t.Errorf("Language(%q)=%q; want=%q", tc.compiler, got, tc.want)
		}
	}
}

func TestCompilerCommand(t *testing.T) {
	ast := AST(testToolchain)
	for _, tc := range []struct {
		name   string
		entry  compdb.Entry
		output string
		want   []string
	}{
		{
			name: "replace separate -o",
			entry: compdb.Entry{
				Directory: "/proj",
				File:      "/proj/a.c",
				Arguments: []string{"cc", "-c", "a.c", "-o", "a.o"},
			},
			output: "/out/preprocess-root/proj/a.c.ast",
			want:   []string{"clang", "-c", "a.c", "-o", "/out/preprocess-root/proj/a.c.ast", "-emit-ast"},
		},
		{
			name: "replace attached -o",
			entry: compdb.Entry{
				Directory: "/proj",
				File:      "/proj/a.c",
				Arguments: []string{"gcc", "-c", "a.c", "-oa.o"},
			},
			output: "/out/a.c.ast",
			want:   []string{"clang", "-c", "a.c", "-o/out/a.c.ast", "-emit-ast"},
		},
		{
			name: "append -o when absent",
			entry: compdb.Entry{
				Directory: "/proj",
				File:      "/proj/b.cc",
				Arguments: []string{"c++", "-c", "b.cc"},
			},
			output: "/out/b.cc.ast",
			want:   []string{"clang++", "-c", "b.cc", "-o", "/out/b.cc.ast", "-emit-ast"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := ast.Command(tc.entry, tc.output)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Command: diff -want +got:\n%s", diff)
			}
		})
	}
}

func TestCompilerExtensionPerLanguage(t *testing.T) {
	pre := Preprocess(testToolchain)
	if got := pre.Extension(LangC); got != ".i" {
		t.Errorf("Extension(c)=%q; want=.i", got)
	}
	if got := pre.Extension(LangCXX); got != ".ii" {
		t.Errorf("Extension(c++)=%q; want=.ii", got)
	}
	ast := AST(testToolchain)
	if got := ast.Extension(LangCXX); got != ".ast" {
		t.Errorf("Extension(c++)=%q; want=.ast", got)
	}
}

func TestFrontendCommand(t *testing.T) {
	fe := &Frontend{
		ActionName: "check",
		Tool:       "clang-check",
		ExtraArgs:  []string{"-analyze"},
		Ext:        ".txt",
		Stream:     CaptureStderr,
	}
	entry := compdb.Entry{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc", "-c", "a.c"}}
	want := []string{"clang-check", "-analyze", "/proj/a.c"}
	if diff := cmp.Diff(want, fe.Command(entry)); diff != "" {
		t.Errorf("Command: diff -want +got:\n%s", diff)
	}
}

func TestOutputPath(t *testing.T) {
	entry := compdb.Entry{Directory: "/proj", File: "/proj/sub/a.c", Arguments: []string{"cc", "-c", "a.c"}}
	got := OutputPath("/out", entry, ".ast")
	want := "/out/preprocess-root/proj/sub/a.c.ast"
	if got != want {
		t.Errorf("OutputPath=%q; want=%q", got, want)
	}
}

func TestBuiltin(t *testing.T) {
	for _, name := range []string{"ast", "i", "ll", "bc", "source-list", "file-list", "invocation-list", "fm", "fm-on-demand"} {
		cfg, err := Builtin(name, testToolchain)
		if err != nil {
			t.Errorf("Builtin(%q)=%v; want nil error", name, err)
			continue
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("Validate(%q)=%v; want nil error", name, err)
		}
	}
	if _, err := Builtin("nonesuch", testToolchain); err == nil {
		t.Errorf("Builtin(nonesuch): want error")
	}
}

func TestCdbAggregate(t *testing.T) {
	if !SourceList().Aggregate() {
		t.Errorf("SourceList().Aggregate()=false; want true")
	}
	if AST(testToolchain).Aggregate() {
		t.Errorf("AST().Aggregate()=true; want false")
	}
	if got := ExtdefMap(false).OutputFile(""); got != DefaultFmName {
		t.Errorf("OutputFile=%q; want=%q", got, DefaultFmName)
	}
	if got := ExtdefMap(true).OutputFile("custom.txt"); got != "custom.txt" {
		t.Errorf("OutputFile=%q; want=custom.txt", got)
	}
}
