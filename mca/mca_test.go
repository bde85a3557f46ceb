// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mca

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionRootBackend(t *testing.T) {
	dir := t.TempDir()
	s := New(RootBackend, "test_")

	s.Fill(0, 3, 100)
	s.Fill(0, 3, 105)
	s.Fill(1, 7, 200)

	path, err := s.Write(dir)
	if err != nil {
		t.Fatalf("could not write session: %+v", err)
	}
	if got, want := filepath.Base(path), "test_.hist"; got != want {
		t.Fatalf("invalid output name: got=%q, want=%q", got, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read output: %+v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty histogram summary")
	}
}

func TestSessionDammBackend(t *testing.T) {
	dir := t.TempDir()
	s := New(DammBackend, "cal_")

	s.Fill(0, 1, 10)

	path, err := s.Write(dir)
	if err != nil {
		t.Fatalf("could not write session: %+v", err)
	}
	if got, want := filepath.Base(path), "cal_.damm"; got != want {
		t.Fatalf("invalid output name: got=%q, want=%q", got, want)
	}
}

func TestBackendString(t *testing.T) {
	if got, want := RootBackend.String(), "root"; got != want {
		t.Fatalf("invalid backend string: got=%q, want=%q", got, want)
	}
	if got, want := DammBackend.String(), "damm"; got != want {
		t.Fatalf("invalid backend string: got=%q, want=%q", got, want)
	}
}
