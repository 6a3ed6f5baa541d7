// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compdb

import (
	"fmt"
	"strings"
)

// Split splits a "command" field of a compilation database entry into
// an argument vector. It understands backslash escapes, double quotes
// and single quotes. Shell evaluation beyond quoting (pipes, variable
// expansion) is not performed; such characters are kept literally
// since they may appear inside -D macro definitions.
func Split(cmdline string) ([]string, error) {
	var args []string
	var sb strings.Builder
	inarg := false
	escaped := false
	quote := rune(0)
	for _, ch := range cmdline {
		if escaped {
			sb.WriteRune(ch)
			escaped = false
			continue
		}
		switch {
		case quote == '\'':
			if ch == '\'' {
				quote = 0
				continue
			}
			sb.WriteRune(ch)
		case quote == '"':
			switch ch {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				sb.WriteRune(ch)
			}
		case ch == '\\':
			inarg = true
			escaped = true
		case ch == '\'' || ch == '"':
			inarg = true
			quote = ch
		case ch == ' ' || ch == '\t' || ch == '\n':
			if inarg {
				args = append(args, sb.String())
				sb.Reset()
				inarg = false
			}
		default:
			inarg = true
			sb.WriteRune(ch)
		}
	}
	if escaped || quote != 0 {
		return nil, fmt.Errorf("failed to split: unterminated quote in %q", cmdline)
	}
	if inarg {
		args = append(args, sb.String())
	}
	return args, nil
}

// Join joins an argument vector into a command line string,
// quoting arguments that contain whitespace or quote characters.
// It is used for logging and for the "command" form of the database.
func Join(args []string) string {
	var sb strings.Builder
	for i, arg := range args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if strings.ContainsAny(arg, " \t\n\"'\\") || arg == "" {
			sb.WriteByte('"')
			for _, ch := range arg {
				if ch == '"' || ch == '\\' {
					sb.WriteByte('\\')
				}
				sb.WriteRune(ch)
			}
			sb.WriteByte('"')
			continue
		}
		sb.WriteString(arg)
	}
	return sb.String()
}
