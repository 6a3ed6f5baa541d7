// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runner

import (
	"testing"
	"time"
)

func TestNewLogSameSecond(t *testing.T) {
	outRoot := t.TempDir()
	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	first, err := NewLog(outRoot, FIFO, KeySemicolon, start)
	if err != nil {
		t.Fatalf("NewLog=%v; want nil error", err)
	}
	defer first.Close()
	second, err := NewLog(outRoot, FIFO, KeySemicolon, start)
	if err != nil {
		t.Fatalf("NewLog=%v; want a second run in the same second to succeed", err)
	}
	defer second.Close()
	if first.Path() == second.Path() {
		t.Errorf("both runs logged to %s; want distinct log files", first.Path())
	}
	if err := second.Write(WorkRecord{JobID: "x"}); err != nil {
		t.Errorf("Write=%v; want the suffixed log writable", err)
	}
	recs, err := ReadLog(second.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records; want 1", len(recs))
	}
}
