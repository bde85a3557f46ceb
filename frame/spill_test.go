// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "testing"

func header(slot, channel, size int, virtual bool) uint32 {
	w := uint32(channel&0xF) | uint32((slot&0xF)<<4) | uint32(size)<<17
	if virtual {
		w |= maskVirtual
	}
	return w
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(header(3, 5, 10, false), 3)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if got, want := h.Slot, 3; got != want {
		t.Fatalf("invalid slot: got=%d, want=%d", got, want)
	}
	if got, want := h.Channel, 5; got != want {
		t.Fatalf("invalid channel: got=%d, want=%d", got, want)
	}
	if got, want := h.Size, 10; got != want {
		t.Fatalf("invalid size: got=%d, want=%d", got, want)
	}

	_, err = ParseHeader(header(3, 5, 10, false), 4)
	if err == nil {
		t.Fatalf("expected a slot mismatch error")
	}

	_, err = ParseHeader(header(3, 5, 0, false), 3)
	if err == nil {
		t.Fatalf("expected a zero-size error")
	}
}

func event(slot, channel, size int, virtual bool) []uint32 {
	ev := make([]uint32, size)
	ev[0] = header(slot, channel, size, virtual)
	return ev
}

func TestParseSegmentComplete(t *testing.T) {
	var words []uint32
	words = append(words, event(3, 1, 4, false)...)
	words = append(words, event(3, 2, 6, false)...)

	res, err := ParseSegment(words, 3)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if got, want := res.Consumed, len(words); got != want {
		t.Fatalf("invalid consumed: got=%d, want=%d", got, want)
	}
	if got, want := len(res.Partial), 0; got != want {
		t.Fatalf("invalid partial length: got=%d, want=%d", got, want)
	}
	if got, want := len(res.Stats), 2; got != want {
		t.Fatalf("invalid stats length: got=%d, want=%d", got, want)
	}
	if got, want := res.Stats[0].Size, 16; got != want {
		t.Fatalf("invalid event size in bytes: got=%d, want=%d", got, want)
	}
}

func TestParseSegmentVirtualExcludedFromStats(t *testing.T) {
	// bit 29 is both the virtual flag and the top bit of the 14-bit size
	// field, so a virtual header always declares at least 4096 words.
	words := event(3, 1, 4096+4, true)

	res, err := ParseSegment(words, 3)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if got, want := len(res.Stats), 0; got != want {
		t.Fatalf("virtual event leaked into stats: got=%d, want=%d", got, want)
	}
	if got, want := res.Consumed, len(words); got != want {
		t.Fatalf("invalid consumed: got=%d, want=%d", got, want)
	}
}

func TestParseSegmentStraddle(t *testing.T) {
	full := event(3, 1, 60, false)
	words := full[:50] // only 50 of 60 words present

	res, err := ParseSegment(words, 3)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if got, want := res.Consumed, 0; got != want {
		t.Fatalf("invalid consumed: got=%d, want=%d", got, want)
	}
	if got, want := len(res.Partial), 50; got != want {
		t.Fatalf("invalid partial length: got=%d, want=%d", got, want)
	}
	if got, want := len(res.Stats), 0; got != want {
		t.Fatalf("straddling event should not be reported yet: got=%d, want=%d", got, want)
	}
}

func TestParseSegmentCorruptSlot(t *testing.T) {
	words := event(9, 1, 4, false)

	_, err := ParseSegment(words, 3)
	if err == nil {
		t.Fatalf("expected a corruption error")
	}
}
