// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package broadcast sends framed spill data and control notifications to
// a live-data subscriber, in one of two wire modes selected by shm_mode.
package broadcast // import "github.com/go-lpc/pixie16/broadcast"

import (
	"encoding/binary"
	"fmt"
	"io"
)

// chunkDataBytes is the number of spill-data bytes carried by every
// shared-memory chunk but the last.
const (
	chunkHeaderBytes = 8
	chunkDataBytes   = 40000
	chunkWords       = chunkDataBytes / 4
	chunkBytes       = chunkHeaderBytes + chunkDataBytes
)

// Mode selects the wire format used by SendSpill.
type Mode int

const (
	// NotifyMode sends exactly one status-packet datagram per spill.
	NotifyMode Mode = iota
	// ShmMode chunks the full spill into fixed-size datagrams so a
	// subscriber can reconstruct the raw word stream.
	ShmMode
)

// Control is one of the ASCII notifications sent to the broadcast
// subscriber outside of regular spill traffic.
type Control int

const (
	CtrlOpenFile Control = iota
	CtrlCloseFile
	CtrlKillSocket
)

func (c Control) String() string {
	switch c {
	case CtrlOpenFile:
		return "$OPEN_FILE"
	case CtrlCloseFile:
		return "$CLOSE_FILE"
	case CtrlKillSocket:
		return "$KILL_SOCKET"
	default:
		return fmt.Sprintf("$UNKNOWN(%d)", int(c))
	}
}

// Broadcaster sends one spill's framed data and sideband control
// notifications to conn.
type Broadcaster struct {
	conn io.Writer
	mode Mode
}

// New returns a Broadcaster writing datagrams to conn, defaulting to
// NotifyMode.
func New(conn io.Writer) *Broadcaster {
	return &Broadcaster{conn: conn}
}

// SetMode toggles between NotifyMode and ShmMode.
func (b *Broadcaster) SetMode(m Mode) { b.mode = m }

// Mode reports the current wire mode.
func (b *Broadcaster) Mode() Mode { return b.mode }

// SendSpill broadcasts one spill. statusPacket is the Output Sink's
// status packet, used verbatim in NotifyMode. words is the exact byte
// sequence the Output Sink received for this spill, reused verbatim (per
// the broadcast-equivalence invariant) in ShmMode.
func (b *Broadcaster) SendSpill(words []uint32, statusPacket []byte) error {
	switch b.mode {
	case NotifyMode:
		_, err := b.conn.Write(statusPacket)
		if err != nil {
			return fmt.Errorf("broadcast: could not send status packet: %w", err)
		}
		return nil
	case ShmMode:
		return b.sendChunks(words)
	default:
		return fmt.Errorf("broadcast: invalid mode %d", b.mode)
	}
}

func (b *Broadcaster) sendChunks(words []uint32) error {
	total := (len(words) + chunkWords - 1) / chunkWords
	if total == 0 {
		total = 1
	}

	buf := make([]byte, chunkBytes)
	for i := 0; i < total; i++ {
		start := i * chunkWords
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := words[start:end]

		n := 8 + 4*len(chunk)
		binary.LittleEndian.PutUint32(buf[0:], uint32(i+1))
		binary.LittleEndian.PutUint32(buf[4:], uint32(total))
		for j, w := range chunk {
			binary.LittleEndian.PutUint32(buf[8+4*j:], w)
		}

		_, err := b.conn.Write(buf[:n])
		if err != nil {
			return fmt.Errorf("broadcast: could not send chunk %d/%d: %w", i+1, total, err)
		}
	}
	return nil
}

// SendControl sends one of the ASCII control notifications.
func (b *Broadcaster) SendControl(c Control) error {
	_, err := io.WriteString(b.conn, c.String())
	if err != nil {
		return fmt.Errorf("broadcast: could not send control %v: %w", c, err)
	}
	return nil
}
