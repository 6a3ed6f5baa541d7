// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package action

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// OutputPlaceholder is the literal token inside plugin argument values
// that is substituted with the run's output root before spawning.
const OutputPlaceholder = "%OUTPUT_DIR%"

// pluginDesc is the on-disk plugin description.
type pluginDesc struct {
	Comment string `json:"comment"`
	Type    string `json:"type"`
	Action  struct {
		Prompt string `json:"prompt"`
		// Tool is a plain string for Frontend plugins and either a
		// string or a language-keyed mapping for Compiler plugins.
		Tool      json.RawMessage `json:"tool"`
		Args      []string        `json:"args"`
		Extension string          `json:"extension"`
		OutOpt    string          `json:"outopt"`
		Source    string          `json:"source"`
	} `json:"action"`
}

// LoadPlugins reads a plugin description file holding one description
// or a list of them, and parses each into the closed Config union.
// Placeholder tokens in argument values are substituted with outRoot.
func LoadPlugins(fname, outRoot string) ([]Config, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin file: %w", err)
	}
	var descs []pluginDesc
	if err := json.Unmarshal(buf, &descs); err != nil {
		var one pluginDesc
		if err := json.Unmarshal(buf, &one); err != nil {
			return nil, fmt.Errorf("malformed plugin file %s: %w", fname, err)
		}
		descs = append(descs, one)
	}
	configs := make([]Config, 0, len(descs))
	for i, desc := range descs {
		cfg, err := desc.parse(i, outRoot)
		if err != nil {
			return nil, fmt.Errorf("plugin %d of %s: %w", i, fname, err)
		}
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("plugin %d of %s: %w", i, fname, err)
		}
		log.Debugf("loaded plugin %s (%s)", cfg.Name(), desc.Comment)
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (d pluginDesc) parse(i int, outRoot string) (Config, error) {
	name := d.Comment
	if name == "" {
		name = fmt.Sprintf("plugin-%d", i)
	}
	args := make([]string, len(d.Action.Args))
	for j, arg := range d.Action.Args {
		args[j] = strings.ReplaceAll(arg, OutputPlaceholder, outRoot)
	}
	switch d.Type {
	case "Compiler":
		tools, err := parseTools(d.Action.Tool)
		if err != nil {
			return nil, err
		}
		return &Compiler{
			ActionName: name,
			PromptText: d.Action.Prompt,
			Tools:      tools,
			ExtraArgs:  args,
			Ext:        d.Action.Extension,
			OutputOpt:  d.Action.OutOpt,
		}, nil
	case "Frontend":
		var tool string
		if len(d.Action.Tool) > 0 {
			if err := json.Unmarshal(d.Action.Tool, &tool); err != nil {
				return nil, fmt.Errorf("frontend tool must be a string: %w", err)
			}
		}
		stream, err := parseStream(d.Action.Source)
		if err != nil {
			return nil, err
		}
		return &Frontend{
			ActionName: name,
			PromptText: d.Action.Prompt,
			Tool:       tool,
			ExtraArgs:  args,
			Ext:        d.Action.Extension,
			Stream:     stream,
		}, nil
	}
	return nil, fmt.Errorf("unknown plugin type %q", d.Type)
}

// parseTools accepts a plain tool string applied to every language or
// a mapping keyed by source language identifier.
func parseTools(raw json.RawMessage) (map[Lang]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("compiler plugin with no tool")
	}
	var tool string
	if err := json.Unmarshal(raw, &tool); err == nil {
		return map[Lang]string{LangC: tool, LangCXX: tool}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("compiler tool must be a string or a language mapping: %w", err)
	}
	tools := make(map[Lang]string, len(m))
	for k, v := range m {
		switch Lang(k) {
		case LangC, LangCXX:
			tools[Lang(k)] = v
		default:
			return nil, fmt.Errorf("unknown language %q in tool mapping", k)
		}
	}
	return tools, nil
}

func parseStream(s string) (Stream, error) {
	switch s {
	case "", "stdout":
		return CaptureStdout, nil
	case "stderr":
		return CaptureStderr, nil
	}
	return CaptureStdout, fmt.Errorf("unknown captured stream %q", s)
}
