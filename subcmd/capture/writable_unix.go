// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

package capture

import "golang.org/x/sys/unix"

func writable(dir string) error {
	return unix.Access(dir, unix.W_OK)
}
