// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sink

import (
	"os"
	"testing"
	"time"
)

func TestOpenWriteClose(t *testing.T) {
	dir := t.TempDir()
	s := New(FormatPLD)

	if err := s.Open("test", 7, "run", dir, false); err != nil {
		t.Fatalf("could not open: %+v", err)
	}
	if !s.IsOpen() {
		t.Fatalf("sink reports closed after Open")
	}

	n, err := s.Write([]uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := n, 12; got != want {
		t.Fatalf("invalid bytes written: got=%d, want=%d", got, want)
	}
	if got, want := s.Size(), int64(12); got != want {
		t.Fatalf("invalid size: got=%d, want=%d", got, want)
	}

	if err := s.Close(time.Second); err != nil {
		t.Fatalf("could not close: %+v", err)
	}
	if s.IsOpen() {
		t.Fatalf("sink reports open after Close")
	}
}

func TestDoubleOpenRejected(t *testing.T) {
	dir := t.TempDir()
	s := New(FormatPLD)
	if err := s.Open("t", 1, "run", dir, false); err != nil {
		t.Fatalf("could not open: %+v", err)
	}
	defer s.Close(0)

	if err := s.Open("t", 1, "run", dir, false); err == nil {
		t.Fatalf("expected an error opening an already-open sink")
	}
}

func TestCeilingRotationPreservesRunIdentity(t *testing.T) {
	dir := t.TempDir()
	s := New(FormatPLD)

	if err := s.Open("t", 7, "run", dir, false); err != nil {
		t.Fatalf("could not open: %+v", err)
	}
	s.size = FileCeiling - 4096

	if !s.WouldOverflow(2048) {
		t.Fatalf("expected a spill this size to overflow the ceiling")
	}

	runBefore := s.RunNumber()
	if err := s.Close(time.Second); err != nil {
		t.Fatalf("could not close: %+v", err)
	}
	if err := s.Open("t", runBefore, "run", dir, true); err != nil {
		t.Fatalf("could not reopen as continuation: %+v", err)
	}

	if got, want := s.RunNumber(), runBefore; got != want {
		t.Fatalf("run number changed across rotation: got=%d, want=%d", got, want)
	}
	if got, want := s.Suffix(), uint32(1); got != want {
		t.Fatalf("suffix did not increase by exactly one: got=%d, want=%d", got, want)
	}
	s.Close(0)
}

func TestNextFilenameSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	s := New(FormatPLD)

	// Pre-create the suffix-0 file for run 1.
	f, err := os.Create(filename(dir, "run", 1, 0, FormatPLD))
	if err != nil {
		t.Fatalf("could not pre-create file: %+v", err)
	}
	f.Close()

	runNo := uint32(1)
	s.NextFilename(&runNo, "run", dir)
	if got, want := runNo, uint32(2); got != want {
		t.Fatalf("invalid next run number: got=%d, want=%d", got, want)
	}
}

func TestStatusPacketHasCRC(t *testing.T) {
	dir := t.TempDir()
	s := New(FormatPLD)
	if err := s.Open("t", 3, "run", dir, false); err != nil {
		t.Fatalf("could not open: %+v", err)
	}
	defer s.Close(0)

	pkt := s.BuildStatusPacket()
	if got, want := len(pkt), 18; got != want {
		t.Fatalf("invalid status packet length: got=%d, want=%d", got, want)
	}
}
