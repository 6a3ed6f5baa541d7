// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compdb

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		cmdline string
		want    []string
		wantErr bool
	}{
		{
			cmdline: "cc -c a.c",
			want:    []string{"cc", "-c", "a.c"},
		},
		{
			cmdline: "  cc   -c\ta.c ",
			want:    []string{"cc", "-c", "a.c"},
		},
		{
			cmdline: `gcc -DNAME=\"panda\" -c a.c`,
			want:    []string{"gcc", `-DNAME="panda"`, "-c", "a.c"},
		},
		{
			cmdline: `clang "-DMSG=\"hello world\"" -c a.c`,
			want:    []string{"clang", `-DMSG="hello world"`, "-c", "a.c"},
		},
		{
			cmdline: `clang '-DMSG="hello world"' -c a.c`,
			want:    []string{"clang", `-DMSG="hello world"`, "-c", "a.c"},
		},
		{
			cmdline: `clang -I"/tmp/dir with space" -c a.c`,
			want:    []string{"clang", "-I/tmp/dir with space", "-c", "a.c"},
		},
		{
			cmdline: "c++ -D_GNU_SOURCE -O2 -o out/a.o -c src/a.cc",
			want:    []string{"c++", "-D_GNU_SOURCE", "-O2", "-o", "out/a.o", "-c", "src/a.cc"},
		},
		{
			cmdline: `cc -DDOLLAR=$x -c a.c`,
			want:    []string{"cc", "-DDOLLAR=$x", "-c", "a.c"},
		},
		{
			cmdline: `cc "-DBAD -c a.c`,
			wantErr: true,
		},
		{
			cmdline: `cc -c a.c\`,
			wantErr: true,
		},
		{
			cmdline: "",
			want:    nil,
		},
	} {
		got, err := Split(tc.cmdline)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Split(%q)=%q, nil; want error", tc.cmdline, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Split(%q)=%v; want nil error", tc.cmdline, err)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Split(%q): diff -want +got:\n%s", tc.cmdline, diff)
		}
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	for _, args := range [][]string{
		{"cc", "-c", "a.c"},
		{"clang", `-DMSG="hello world"`, "-c", "a.c"},
		{"cc", "-I/tmp/dir with space", "-c", "a.c"},
		{"cc", "", "-c", "a.c"},
	} {
		got, err := Split(Join(args))
		if err != nil {
			t.Errorf("Split(Join(%q))=%v; want nil error", args, err)
			continue
		}
		if diff := cmp.Diff(args, got); diff != "" {
			t.Errorf("Split(Join(%q)): diff -want +got:\n%s", args, diff)
		}
	}
}
