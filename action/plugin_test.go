// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writePlugin(t *testing.T, content string) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "plugin.json")
	if err := os.WriteFile(fname, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return fname
}

func TestLoadPluginsCompiler(t *testing.T) {
	fname := writePlugin(t, `{
  "comment": "dump-ir",
  "type": "Compiler",
  "action": {
    "prompt": "Generating IR dump",
    "tool": {"c": "clang", "c++": "clang++"},
    "args": ["-emit-llvm", "-S", "-include-dir", "%OUTPUT_DIR%/inc"],
    "extension": ".ll"
  }
}`)
	configs, err := LoadPlugins(fname, "/run/out")
	if err != nil {
		t.Fatalf("LoadPlugins=%v; want nil error", err)
	}
	if len(configs) != 1 {
		t.Fatalf("len(configs)=%d; want 1", len(configs))
	}
	c, ok := configs[0].(*Compiler)
	if !ok {
		t.Fatalf("configs[0]=%T; want *Compiler", configs[0])
	}
	want := &Compiler{
		ActionName: "dump-ir",
		PromptText: "Generating IR dump",
		Tools:      map[Lang]string{LangC: "clang", LangCXX: "clang++"},
		ExtraArgs:  []string{"-emit-llvm", "-S", "-include-dir", "/run/out/inc"},
		Ext:        ".ll",
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("plugin: diff -want +got:\n%s", diff)
	}
}

func TestLoadPluginsFrontend(t *testing.T) {
	fname := writePlugin(t, `[
  {
    "comment": "tidy",
    "type": "Frontend",
    "action": {
      "prompt": "Running clang-tidy",
      "tool": "clang-tidy",
      "args": ["--quiet"],
      "extension": ".tidy",
      "source": "stderr"
    }
  }
]`)
	configs, err := LoadPlugins(fname, "/run/out")
	if err != nil {
		t.Fatalf("LoadPlugins=%v; want nil error", err)
	}
	f, ok := configs[0].(*Frontend)
	if !ok {
		t.Fatalf("configs[0]=%T; want *Frontend", configs[0])
	}
	if f.Stream != CaptureStderr {
		t.Errorf("Stream=%v; want stderr", f.Stream)
	}
	if f.Tool != "clang-tidy" {
		t.Errorf("Tool=%q; want clang-tidy", f.Tool)
	}
}

func TestLoadPluginsErrors(t *testing.T) {
	for _, tc := range []struct {
		name, content string
	}{
		{name: "bad json", content: "{"},
		{name: "bad type", content: `{"type": "Linker", "action": {"tool": "ld", "extension": ".x"}}`},
		{name: "no tool", content: `{"type": "Frontend", "action": {"extension": ".x"}}`},
		{name: "no extension", content: `{"type": "Frontend", "action": {"tool": "t"}}`},
		{name: "bad stream", content: `{"type": "Frontend", "action": {"tool": "t", "extension": ".x", "source": "stdin"}}`},
		{name: "bad lang", content: `{"type": "Compiler", "action": {"tool": {"rust": "rustc"}, "extension": ".x"}}`},
	} {
		fname := writePlugin(t, tc.content)
		if _, err := LoadPlugins(fname, "/out"); err == nil {
			t.Errorf("LoadPlugins(%s): want error", tc.name)
		}
	}
}
