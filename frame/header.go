// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frame decodes the per-event header embedded in a module's
// FIFO stream and assembles the length-prefixed, per-module segments
// that make up one spill.
package frame // import "github.com/go-lpc/pixie16/frame"

import "golang.org/x/xerrors"

const (
	maskSlot    = 0xF0
	maskChannel = 0xF
	maskSize    = 0x7FFE2000
	maskVirtual = 0x20000000

	shiftSlot = 4
	shiftSize = 17
)

// Header is the first word of an event in a module's FIFO stream.
type Header struct {
	Channel int  // 0..15
	Slot    int  // backplane slot, must match the module's declared slot
	Size    int  // event size in words, including the header itself
	Virtual bool // excluded from physics stats but stored as-is
}

// ParseHeader decodes the header word of an event. slotExpected is the
// slot the owning module declared at boot; a mismatch is reported as an
// error, per the corrupted-stream invariant.
func ParseHeader(word uint32, slotExpected int) (Header, error) {
	h := Header{
		Channel: int(word & maskChannel),
		Slot:    int((word & maskSlot) >> shiftSlot),
		Size:    int((word & maskSize) >> shiftSize),
		Virtual: word&maskVirtual != 0,
	}

	switch {
	case h.Slot != slotExpected:
		return h, xerrors.Errorf("frame: slot read (%d) does not match slot expected (%d)", h.Slot, slotExpected)
	case h.Channel < 0 || h.Channel > 15:
		return h, xerrors.Errorf("frame: channel read (%d) not valid", h.Channel)
	case h.Size == 0:
		return h, xerrors.Errorf("frame: zero event size")
	}

	return h, nil
}
