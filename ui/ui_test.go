// Copyright 2024 The Panda Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: "0.00s"},
		{d: 340 * time.Millisecond, want: "0.34s"},
		{d: 1500 * time.Millisecond, want: "1.50s"},
		{d: 59*time.Second + 990*time.Millisecond, want: "59.99s"},
		{d: 60 * time.Second, want: "1m00.00s"},
		{d: 62*time.Second + 500*time.Millisecond, want: "1m02.50s"},
		{d: 3600 * time.Second, want: "1h0m00.00s"},
		{d: 3912*time.Second + 340*time.Millisecond, want: "1h5m12.34s"},
	} {
		got := FormatDuration(tc.d)
		if got != tc.want {
			t.Errorf("FormatDuration(%v)=%q; want=%q", tc.d, got, tc.want)
		}
	}
}
