// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build windows

package capture

import (
	"os"
	"path/filepath"
)

func writable(dir string) error {
	f, err := os.CreateTemp(dir, "panda-probe.*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Join(dir, filepath.Base(name)))
}
