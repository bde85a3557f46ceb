// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the CRC-16/CCITT-FALSE checksum used to
// validate framed data read off the wire.
package crc16 // import "github.com/go-lpc/pixie16/internal/crc16"

import "hash"

const (
	poly    = 0x1021
	initVal = 0xFFFF
)

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

type digest struct {
	crc uint16
	tab [256]uint16
}

// New creates a new Hash16 computing the CRC-16/CCITT-FALSE checksum.
// table may be nil, in which case the standard CCITT-FALSE polynomial
// table is used.
func New(table *[256]uint16) Hash16 {
	d := &digest{crc: initVal}
	if table != nil {
		d.tab = *table
		return d
	}
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		d.tab[i] = crc
	}
	return d
}

func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		d.crc = (d.crc << 8) ^ d.tab[byte(d.crc>>8)^b]
	}
	return len(p), nil
}

func (d *digest) Sum(b []byte) []byte {
	v := d.Sum16()
	return append(b, byte(v>>8), byte(v))
}

func (d *digest) Sum16() uint16 { return d.crc }

func (d *digest) Reset() { d.crc = initVal }

func (d *digest) Size() int { return 2 }

func (d *digest) BlockSize() int { return 1 }
