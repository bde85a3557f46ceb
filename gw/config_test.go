// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gw

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixie.cfg")

	const raw = `
dev_mem: /dev/mem
slots: [2, 3, 5, 7]
threshold_words: 4096
poll_tries: 50
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("could not write config: %+v", err)
	}

	opts, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("could not load config: %+v", err)
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if got, want := cfg.devmem, "/dev/mem"; got != want {
		t.Fatalf("invalid devmem: got=%q, want=%q", got, want)
	}
	if got, want := len(cfg.slots), 4; got != want {
		t.Fatalf("invalid slots length: got=%d, want=%d", got, want)
	}
	if got, want := cfg.threshWords, uint32(4096); got != want {
		t.Fatalf("invalid threshold: got=%d, want=%d", got, want)
	}
	if got, want := cfg.pollTries, 50; got != want {
		t.Fatalf("invalid poll tries: got=%d, want=%d", got, want)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.cfg"))
	if err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
