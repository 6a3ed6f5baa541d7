// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Snape3058/panda/compdb"
	"github.com/Snape3058/panda/intercept"
)

func record(dir string, args ...string) intercept.Record {
	return intercept.Record{
		Method:    "execve",
		Dir:       dir,
		Arguments: args,
	}
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	fname := filepath.Join(dir, name)
	if err := os.WriteFile(fname, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return fname
}

func TestEntriesCompile(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "a.c")
	got := entries(record(dir, "cc", "-c", "a.c", "-o", "a.o", "-Wall"))
	want := []compdb.Entry{{
		Directory: dir,
		File:      src,
		Arguments: []string{"cc", "-c", src, "-o", filepath.Join(dir, "a.o")},
		Output:    filepath.Join(dir, "a.o"),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries: diff -want +got:\n%s", diff)
	}
}

func TestEntriesJoinedOutput(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "a.c")
	got := entries(record(dir, "clang", "-c", "a.c", "-oa.o"))
	if len(got) != 1 {
		t.Fatalf("got %d entries; want 1", len(got))
	}
	want := []string{"clang", "-c", src, "-o", filepath.Join(dir, "a.o")}
	if diff := cmp.Diff(want, got[0].Arguments); diff != "" {
		t.Errorf("arguments: diff -want +got:\n%s", diff)
	}
}

func TestEntriesLinkInvocationInsertsCompile(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.c")
	b := touch(t, dir, "b.c")
	// A one-shot compile-and-link call becomes one single-unit entry
	// per source, with -c inserted and siblings dropped.
	got := entries(record(dir, "gcc", "a.c", "b.c", "-o", "prog", "-lm"))
	if len(got) != 2 {
		t.Fatalf("got %d entries; want 2", len(got))
	}
	wantA := []string{"gcc", "-c", a, "-o", filepath.Join(dir, "prog")}
	if diff := cmp.Diff(wantA, got[0].Arguments); diff != "" {
		t.Errorf("first entry: diff -want +got:\n%s", diff)
	}
	if got[1].File != b {
		t.Errorf("second entry file=%s; want %s", got[1].File, b)
	}
	for _, e := range got {
		for _, arg := range e.Arguments {
			if arg == "-lm" {
				t.Errorf("entry %s kept linker flag -lm", e.File)
			}
		}
	}
}

func TestEntriesSkipsNonCompilers(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.c")
	for _, args := range [][]string{
		{"make", "all"},
		{"ld", "-o", "prog", "a.o"},
		{"/bin/sh", "-c", "true"},
	} {
		if got := entries(record(dir, args...)); got != nil {
			t.Errorf("entries(%q)=%v; want nil", args, got)
		}
	}
}

func TestEntriesSkipsAbortModes(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.c")
	for _, mode := range []string{"-E", "-cc1", "-M", "-MM", "-###", "-fsyntax-only"} {
		if got := entries(record(dir, "cc", mode, "a.c")); got != nil {
			t.Errorf("entries with %s=%v; want nil", mode, got)
		}
	}
}

func TestEntriesSkipsMissingSources(t *testing.T) {
	// The working directory must not be under /tmp, where missing
	// sources are assumed to be generated files (see below).
	dir, err := os.MkdirTemp(".", "capture-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	dir, err = filepath.Abs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := entries(record(dir, "cc", "-c", "nonexistent.c")); got != nil {
		t.Errorf("entries=%v; want nil for missing source", got)
	}
	// Generated sources under /tmp count even when already deleted.
	got := entries(record("/tmp", "cc", "-c", "/tmp/panda-gen/gen.c"))
	if len(got) != 1 {
		t.Errorf("got %d entries; want 1 for /tmp source", len(got))
	}
}

func TestEntriesRemoveRules(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "a.c")
	got := entries(record(dir, "cc", "-c", "a.c",
		"-L", "/lib", "-lfoo", "-MT", "target", "-MD", "-Wl,-rpath", "-Werror=format"))
	if len(got) != 1 {
		t.Fatalf("got %d entries; want 1", len(got))
	}
	want := []string{"cc", "-c", src}
	if diff := cmp.Diff(want, got[0].Arguments); diff != "" {
		t.Errorf("arguments: diff -want +got:\n%s", diff)
	}
}

func TestSynthesizeDedup(t *testing.T) {
	srcDir := t.TempDir()
	src := touch(t, srcDir, "a.c")
	recordDir := t.TempDir()
	cfg := intercept.Config{OutputDir: recordDir, Template: intercept.DefaultTemplate}
	first := record(srcDir, "cc", "-c", "a.c", "-o", "a.o")
	second := record(srcDir, "cc", "-c", "a.c", "-o", "a2.o", "-DX")
	if _, err := first.Write(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := second.Write(cfg); err != nil {
		t.Fatal(err)
	}
	c := &captureCmd{}
	db, err := c.synthesize(recordDir)
	if err != nil {
		t.Fatalf("synthesize=%v; want nil error", err)
	}
	if len(db) != 1 {
		t.Fatalf("got %d entries; want the rebuilt unit deduplicated", len(db))
	}
	if db[0].File != src {
		t.Errorf("entry file=%s; want %s", db[0].File, src)
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	c := &captureCmd{}
	if _, err := c.synthesize(t.TempDir()); err == nil {
		t.Errorf("synthesize: want error when nothing was captured")
	}
}
