// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqctl

import (
	"errors"
	"testing"

	"github.com/go-lpc/pixie16/gw"
	"github.com/go-lpc/pixie16/gw/gwfake"
	"github.com/go-lpc/pixie16/stats"
)

const maskVirtualBit = 0x20000000

func header(slot, channel, size int, virtual bool) uint32 {
	w := uint32(channel&0xF) | uint32((slot&0xF)<<4) | uint32(size)<<17
	if virtual {
		w |= maskVirtualBit
	}
	return w
}

func event(slot, channel, size int, virtual bool) []uint32 {
	ev := make([]uint32, size)
	ev[0] = header(slot, channel, size, virtual)
	return ev
}

func TestDrainOnceBelowThreshold(t *testing.T) {
	f := gwfake.New(1)
	f.PushDrain(0, 4, nil)
	f.PushDrain(0, 4, nil)
	f.PushDrain(0, 4, nil)

	asm := NewAssembler(f, stats.New(), 1000, 3)
	res, err := asm.DrainOnce(false, false)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if res.Drained {
		t.Fatalf("expected no drain below threshold")
	}
}

func TestDrainOnceTwoModulesComplete(t *testing.T) {
	f := gwfake.New(2)

	var mod0 []uint32
	mod0 = append(mod0, event(1, 1, 100, false)...)
	mod0 = append(mod0, event(1, 2, 100, false)...)
	f.PushDrain(0, 200, mod0)

	var mod1 []uint32
	mod1 = append(mod1, event(2, 3, 150, false)...)
	mod1 = append(mod1, event(2, 4, 150, false)...)
	f.PushDrain(1, 300, mod1)

	asm := NewAssembler(f, stats.New(), 10, 1)
	res, err := asm.DrainOnce(false, false)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if !res.Drained {
		t.Fatalf("expected a drain")
	}
	if got, want := len(res.Words), 504; got != want {
		t.Fatalf("invalid total spill length: got=%d, want=%d", got, want)
	}
	if got, want := res.Words[0], uint32(202); got != want {
		t.Fatalf("invalid module-0 segment length: got=%d, want=%d", got, want)
	}
	if got, want := res.Words[1], uint32(0); got != want {
		t.Fatalf("invalid module-0 index: got=%d, want=%d", got, want)
	}
	if got, want := res.Words[202], uint32(302); got != want {
		t.Fatalf("invalid module-1 segment length: got=%d, want=%d", got, want)
	}
	if got, want := res.Words[203], uint32(1); got != want {
		t.Fatalf("invalid module-1 index: got=%d, want=%d", got, want)
	}

	totals := asm.stats.Snapshot()
	if got, want := totals.Spills, int64(1); got != want {
		t.Fatalf("invalid spill count: got=%d, want=%d", got, want)
	}
}

func TestDrainOnceStraddleThenCompletes(t *testing.T) {
	f := gwfake.New(1)

	// a complete 40-word event, then the first 50 of a 60-word event that
	// straddles the end of this drain.
	var first []uint32
	first = append(first, event(1, 1, 40, false)...)
	full := event(1, 2, 60, false)
	first = append(first, full[:50]...)
	f.PushDrain(0, len(first), first)

	// the remaining 10 words of the straddling event, delivered whole on
	// the next drain.
	f.PushDrain(0, 10, full[50:])

	asm := NewAssembler(f, stats.New(), 5, 1)

	res, err := asm.DrainOnce(false, false)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if got, want := res.Words[0], uint32(42); got != want {
		t.Fatalf("invalid first-pass segment length: got=%d, want=%d", got, want)
	}
	if got, want := len(asm.partial[0]), 50; got != want {
		t.Fatalf("invalid carried-over partial length: got=%d, want=%d", got, want)
	}

	res2, err := asm.DrainOnce(false, false)
	if err != nil {
		t.Fatalf("unexpected error on second drain: %+v", err)
	}
	if got, want := res2.Words[0], uint32(62); got != want {
		t.Fatalf("invalid second-pass segment length: got=%d, want=%d", got, want)
	}
	if got, want := len(asm.partial[0]), 0; got != want {
		t.Fatalf("expected no leftover partial after completion: got=%d, want=%d", got, want)
	}
}

func TestDrainOnceFullFIFOFaults(t *testing.T) {
	f := gwfake.New(1)
	f.PushDrain(0, gw.ExternalFIFOLength, nil)

	asm := NewAssembler(f, stats.New(), 10, 1)
	_, err := asm.DrainOnce(false, false)
	if err == nil {
		t.Fatalf("expected a full-fifo fault")
	}
	var fe *faultError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a *faultError, got %T", err)
	}
}

func TestDrainOnceCorruptHeaderFaults(t *testing.T) {
	f := gwfake.New(1)
	f.PushDrain(0, 4, event(9, 1, 4, false)) // wrong slot: module 0 is slot 1

	asm := NewAssembler(f, stats.New(), 1, 1)
	_, err := asm.DrainOnce(false, false)
	if err == nil {
		t.Fatalf("expected a corrupted-header fault")
	}
	var fe *faultError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a *faultError, got %T", err)
	}
}

func TestDrainOnceForceSpillBelowThreshold(t *testing.T) {
	f := gwfake.New(1)
	f.PushDrain(0, 2, nil) // below gw.MinFIFORead: drainModule never touches ReadFIFO

	asm := NewAssembler(f, stats.New(), 1000, 1)
	res, err := asm.DrainOnce(false, true)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if !res.Drained {
		t.Fatalf("expected force-spill to drain despite being below threshold")
	}
}
