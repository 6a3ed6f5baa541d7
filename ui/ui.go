// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ui provides user interface functionalities.
package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// UI prints progress and result lines for a run.
type UI interface {
	// PrintLines prints message lines.
	// On a terminal, a line ending without \n is overwritten by the
	// next call, so it can be used for transient progress output.
	PrintLines(msgs ...string)
}

// Default holds the default UI interface.
// Making changes to this variable after init is undefined behavior.
var Default UI

func init() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		Default = &TermUI{}
	} else {
		Default = &PlainUI{}
	}
}

// IsTerminal returns whether currently using a terminal UI.
func IsTerminal() bool {
	_, ok := Default.(*TermUI)
	return ok
}

// TermUI prints to a terminal, rewriting transient lines in place.
type TermUI struct {
	mu        sync.Mutex
	transient bool
}

// PrintLines implements UI.
func (u *TermUI) PrintLines(msgs ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.transient {
		// Erase the previous transient line.
		fmt.Print("\r\033[K")
		u.transient = false
	}
	for _, msg := range msgs {
		if msg == "" {
			continue
		}
		if !strings.HasSuffix(msg, "\n") {
			width, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil && width > 4 && len(msg) >= width {
				msg = elideMiddle(msg, width)
			}
			fmt.Print(msg)
			u.transient = true
			continue
		}
		fmt.Print(msg)
	}
}

// PlainUI prints every line as is. Used when stdout is not a terminal.
type PlainUI struct {
	mu sync.Mutex
}

// PrintLines implements UI.
func (u *PlainUI) PrintLines(msgs ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, msg := range msgs {
		if msg == "" {
			continue
		}
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		fmt.Print(msg)
	}
}

func elideMiddle(msg string, width int) string {
	if width <= 4 {
		return msg
	}
	n := (width - 3) / 2
	return msg[:n] + "..." + msg[len(msg)-n:]
}

// FormatDuration renders d compactly for progress lines: "1.50s",
// "1m02.50s", "1h5m12.34s".
func FormatDuration(d time.Duration) string {
	d = d.Round(10 * time.Millisecond)
	secs := d.Seconds()
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", secs)
	}
	mins := int(d / time.Minute)
	secs -= float64(mins) * 60
	if mins < 60 {
		return fmt.Sprintf("%dm%05.2fs", mins, secs)
	}
	return fmt.Sprintf("%dh%dm%05.2fs", mins/60, mins%60, secs)
}
