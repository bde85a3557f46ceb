// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sink implements the Output Sink and File Rotator: a stateful,
// at-most-one-file-open writer that enforces the 4 GiB file ceiling and
// the run_number/suffix continuation scheme.
package sink // import "github.com/go-lpc/pixie16/sink"

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-lpc/pixie16/internal/crc16"
)

// OutputFormat selects the on-disk framing of written words. Format 0 is
// the only one whose on-disk semantics are part of this core; 1 and 2
// share the same configuration path but are otherwise opaque pass-
// throughs, per the "two experimental output formats" design note.
type OutputFormat int

const (
	FormatPLD OutputFormat = iota
	FormatExperimental1
	FormatExperimental2
)

// FileCeiling is the maximum size, in bytes, of one output file.
const FileCeiling = 1 << 32

// CeilingOverhead is the fixed per-write bookkeeping margin subtracted
// from the ceiling check, so a write is refused slightly before it would
// actually overflow the file.
const CeilingOverhead = 65552

// Sink is the interface the run controller and spill assembler write
// through; a real Sink writes to disk, a fake one can be substituted in
// tests.
type Sink interface {
	Open(title string, runNo uint32, prefix, dir string, isContinuation bool) error
	Write(words []uint32) (int, error)
	Close(totalTime time.Duration) error
	Size() int64
	IsOpen() bool
	WouldOverflow(nWords int) bool
	BuildStatusPacket() []byte
	NextFilename(runNo *uint32, prefix, dir string) string
	Suffix() uint32
	RunNumber() uint32
}

var _ Sink = (*FileSink)(nil)

// FileSink is the real, disk-backed Output Sink.
type FileSink struct {
	msg *log.Logger

	format OutputFormat

	f      *os.File
	title  string
	prefix string
	dir    string
	runNo  uint32
	suffix uint32
	size   int64
}

// New returns a closed FileSink using the given output format.
func New(format OutputFormat) *FileSink {
	return &FileSink{
		msg:    log.New(os.Stdout, "sink: ", 0),
		format: format,
	}
}

// NextFilename probes dir for the lowest run number >= *runNo that does
// not already have a suffix-0 file, advancing *runNo past any existing
// file, and returns the path that a fresh (non-continuation) open would
// use.
func (s *FileSink) NextFilename(runNo *uint32, prefix, dir string) string {
	for {
		path := filename(dir, prefix, *runNo, 0, s.format)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		*runNo++
	}
}

func filename(dir, prefix string, runNo, suffix uint32, format OutputFormat) string {
	ext := "pld"
	if format != FormatPLD {
		ext = fmt.Sprintf("pld%d", format)
	}
	name := fmt.Sprintf("%s_%04d_%02d.%s", prefix, runNo, suffix, ext)
	return filepath.Join(dir, name)
}

// Open opens a new (or continuation) output file. When isContinuation is
// false, runNo is resolved to the lowest free run number via
// NextFilename and suffix resets to 0; when true, the run number of the
// previous file is kept (the runNo argument is not used) and the suffix
// increments by one, so a ceiling-driven rotation preserves run identity.
func (s *FileSink) Open(title string, runNo uint32, prefix, dir string, isContinuation bool) error {
	if s.f != nil {
		return fmt.Errorf("sink: a file is already open (%s)", s.f.Name())
	}

	s.title, s.prefix, s.dir = title, prefix, dir

	if isContinuation {
		s.suffix++
	} else {
		s.runNo = runNo
		s.NextFilename(&s.runNo, prefix, dir)
		s.suffix = 0
	}

	path := filename(dir, prefix, s.runNo, s.suffix, s.format)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sink: could not create %q: %w", path, err)
	}
	s.f = f
	s.size = 0

	s.msg.Printf("opened %q (run=%d suffix=%d continuation=%v)", path, s.runNo, s.suffix, isContinuation)
	return nil
}

// WouldOverflow reports whether writing nWords words would push the
// current file past FileCeiling, including CeilingOverhead margin.
func (s *FileSink) WouldOverflow(nWords int) bool {
	return s.size+int64(4*nWords)+CeilingOverhead > FileCeiling
}

// Write appends words to the currently open file.
func (s *FileSink) Write(words []uint32) (int, error) {
	if s.f == nil {
		return 0, fmt.Errorf("sink: no file is open")
	}

	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}

	n, err := s.f.Write(buf)
	s.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("sink: could not write %d words: %w", len(words), err)
	}
	return n, nil
}

// Close closes the current file. It returns an error if no file is open.
func (s *FileSink) Close(totalTime time.Duration) error {
	if s.f == nil {
		return fmt.Errorf("sink: no file is open")
	}
	name := s.f.Name()
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return fmt.Errorf("sink: could not close %q: %w", name, err)
	}
	s.msg.Printf("closed %q after %v (%d bytes)", name, totalTime, s.size)
	return nil
}

func (s *FileSink) Size() int64      { return s.size }
func (s *FileSink) IsOpen() bool     { return s.f != nil }
func (s *FileSink) Suffix() uint32   { return s.suffix }
func (s *FileSink) RunNumber() uint32 { return s.runNo }

// BuildStatusPacket encodes the sink's current run identity and size
// into the notify-mode datagram payload, with a CRC-16 trailer so a
// subscriber can validate the packet before trusting it.
func (s *FileSink) BuildStatusPacket() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], s.runNo)
	binary.LittleEndian.PutUint32(buf[4:], s.suffix)
	binary.LittleEndian.PutUint64(buf[8:], uint64(s.size))

	h := crc16.New(nil)
	_, _ = h.Write(buf)
	return h.Sum(buf)
}
