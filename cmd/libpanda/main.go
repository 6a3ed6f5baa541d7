// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// libpanda is the preload shim observing process creation inside an
// arbitrary build. Build it as a shared library and preload it into
// the build process:
//
//	go build -buildmode=c-shared -o libpanda.so ./cmd/libpanda
//	LD_PRELOAD=$PWD/libpanda.so \
//	PANDA_TEMPORARY_OUTPUT_DIR=/tmp/panda-records make
//
// The C interposers in shim.c override the exec family and
// posix_spawn, emit one record per call through the exported hooks
// below, then delegate to the genuine implementation. A debug build
// (-tags never used; define DEBUG via CGO_CFLAGS) writes records to
// stderr and skips the output directory validation.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/Snape3058/panda/intercept"
)

var (
	initOnce  sync.Once
	shimCfg   intercept.Config
	shimErr   error
	debugMode bool
)

// pandaShimInit captures the shim configuration once per process.
// It returns non-zero when the required environment is unavailable;
// the caller aborts the host process in that case, since continuing
// would silently drop interception records.
//
//export pandaShimInit
func pandaShimInit(debug C.int) C.int {
	initOnce.Do(func() {
		debugMode = debug != 0
		if debugMode {
			return
		}
		shimCfg, shimErr = intercept.FromEnv()
	})
	if shimErr != nil {
		fmt.Fprintf(os.Stderr, "libpanda.so: %v\n", shimErr)
		return -1
	}
	return 0
}

// pandaShimLog emits one record for an intercepted call. It returns
// non-zero on a record write failure, which is fatal to the host
// process: a partially observed build would corrupt the synthesized
// compilation database.
//
//export pandaShimLog
func pandaShimLog(method *C.char, argv **C.char) C.int {
	rec := intercept.NewRecord(C.GoString(method), goStrings(argv))
	if debugMode {
		buf, err := rec.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "libpanda.so: %v\n", err)
			return -1
		}
		os.Stderr.Write(buf)
		return 0
	}
	if _, err := rec.Write(shimCfg); err != nil {
		fmt.Fprintf(os.Stderr, "libpanda.so: %v\n", err)
		return -1
	}
	return 0
}

// goStrings converts a NULL-terminated C string vector.
func goStrings(argv **C.char) []string {
	if argv == nil {
		return nil
	}
	var args []string
	for p := argv; *p != nil; p = (**C.char)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) + unsafe.Sizeof(*p))) {
		args = append(args, C.GoString(*p))
	}
	return args
}

func main() {}
