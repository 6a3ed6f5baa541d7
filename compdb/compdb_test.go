// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, fname, content string) {
	t.Helper()
	if err := os.WriteFile(fname, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "compile_commands.json")
	writeFile(t, fname, `[
  {
    "directory": "/proj",
    "file": "a.c",
    "arguments": ["cc", "-c", "a.c", "-o", "a.o"]
  },
  {
    "directory": "/proj",
    "file": "/proj/sub/b.c",
    "command": "cc -DM=\"1 2\" -c sub/b.c",
    "output": "sub/b.o"
  }
]`)
	db, err := Load(fname)
	if err != nil {
		t.Fatalf("Load(%q)=%v; want nil error", fname, err)
	}
	want := DB{
		{
			Directory: "/proj",
			File:      "/proj/a.c",
			Arguments: []string{"cc", "-c", "a.c", "-o", "a.o"},
		},
		{
			Directory: "/proj",
			File:      "/proj/sub/b.c",
			Arguments: []string{"cc", "-DM=1 2", "-c", "sub/b.c"},
			Output:    "sub/b.o",
		},
	}
	if diff := cmp.Diff(want, db); diff != "" {
		t.Errorf("Load: diff -want +got:\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		name, content string
	}{
		{name: "not-json", content: "bad"},
		{name: "no-args", content: `[{"directory": "/proj", "file": "a.c"}]`},
		{name: "no-file", content: `[{"directory": "/proj", "arguments": ["cc"]}]`},
	} {
		fname := filepath.Join(dir, tc.name+".json")
		writeFile(t, fname, tc.content)
		if _, err := Load(fname); err == nil {
			t.Errorf("Load(%s): want error", tc.name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Errorf("Load(missing.json): want error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "compile_commands.json")
	db := DB{
		{
			Directory: "/proj",
			File:      "/proj/a.c",
			Arguments: []string{"cc", "-c", "a.c"},
			Output:    "a.o",
		},
	}
	if err := Save(db, fname); err != nil {
		t.Fatalf("Save=%v; want nil error", err)
	}
	got, err := Load(fname)
	if err != nil {
		t.Fatalf("Load=%v; want nil error", err)
	}
	if diff := cmp.Diff(db, got); diff != "" {
		t.Errorf("round trip: diff -want +got:\n%s", diff)
	}
}

func TestEntryOutputName(t *testing.T) {
	for _, tc := range []struct {
		entry Entry
		want  string
	}{
		{
			entry: Entry{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc", "-c", "a.c", "-o", "out/a.o"}},
			want:  "/proj/out/a.o",
		},
		{
			entry: Entry{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc", "-c", "a.c", "-oout/a.o"}},
			want:  "/proj/out/a.o",
		},
		{
			entry: Entry{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc", "-c", "a.c"}, Output: "a.o"},
			want:  "/proj/a.o",
		},
		{
			entry: Entry{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc", "-c", "a.c"}},
			want:  "/proj/a.c.o",
		},
	} {
		if got := tc.entry.OutputName(); got != tc.want {
			t.Errorf("OutputName(%v)=%q; want=%q", tc.entry.Arguments, got, tc.want)
		}
	}
}

func TestSources(t *testing.T) {
	db := DB{
		{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc"}},
		{Directory: "/proj", File: "/proj/b.c", Arguments: []string{"cc"}},
		{Directory: "/proj", File: "/proj/a.c", Arguments: []string{"cc", "-O2"}},
	}
	want := []string{"/proj/a.c", "/proj/b.c"}
	if diff := cmp.Diff(want, db.Sources()); diff != "" {
		t.Errorf("Sources: diff -want +got:\n%s", diff)
	}
}
