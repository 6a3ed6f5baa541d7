// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build windows

package localexec

import "os/exec"

func waitExitCode(eerr *exec.ExitError) int {
	return eerr.ExitCode()
}

func maxRSS(cmd *exec.Cmd) int64 {
	return 0
}
