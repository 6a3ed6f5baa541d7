// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

package localexec

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func waitExitCode(eerr *exec.ExitError) int {
	ws, ok := eerr.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return 1
	}
	w := unix.WaitStatus(ws)
	if w.Signaled() {
		return 128 + int(w.Signal())
	}
	return w.ExitStatus()
}

func maxRSS(cmd *exec.Cmd) int64 {
	if cmd.ProcessState == nil {
		return 0
	}
	if u, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
		// 32bit arch may use int32 for Maxrss.
		return int64(u.Maxrss)
	}
	return 0
}
