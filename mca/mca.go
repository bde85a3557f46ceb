// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mca implements the MCA (multi-channel analyzer) sub-run:
// per-channel spectrum accumulation during a calibration pass, written
// out in one of two backend formats on teardown.
package mca // import "github.com/go-lpc/pixie16/mca"

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-hep.org/x/hep/hbook"
)

// Backend selects the on-disk representation an MCA session is written
// in. The on-disk semantics of either format are not part of the core
// run-control logic; this package only guarantees that every channel
// present during the session is represented in the output.
type Backend int

const (
	RootBackend Backend = iota
	DammBackend
)

func (b Backend) String() string {
	switch b {
	case RootBackend:
		return "root"
	case DammBackend:
		return "damm"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

const (
	nBins  = 4096
	loEdge = 0
	hiEdge = 65536
)

// Session accumulates one spectrum per (module, channel) pair over the
// lifetime of an MCA sub-run.
type Session struct {
	mu       sync.Mutex
	backend  Backend
	basename string

	hists map[chanKey]*hbook.H1D
}

type chanKey struct {
	mod int
	ch  int
}

// New starts a new MCA session. basename names the output artifact
// written by Write; it is independent of the run's output-file prefix.
func New(backend Backend, basename string) *Session {
	return &Session{
		backend:  backend,
		basename: basename,
		hists:    make(map[chanKey]*hbook.H1D),
	}
}

// Fill adds one event of the given pulse height to module m, channel
// ch's spectrum, creating it on first use.
func (s *Session) Fill(m, ch int, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := chanKey{m, ch}
	h, ok := s.hists[key]
	if !ok {
		h = hbook.NewH1D(nBins, loEdge, hiEdge)
		s.hists[key] = h
	}
	h.Fill(value, 1)
}

// Write flushes every accumulated spectrum to dir, in the session's
// backend format, and returns the written file's path.
func (s *Session) Write(dir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.backend {
	case RootBackend:
		return s.writeRoot(dir)
	case DammBackend:
		return s.writeDamm(dir)
	default:
		return "", fmt.Errorf("mca: invalid backend %v", s.backend)
	}
}

// writeRoot emits one summary line per channel (entries, mean, std-dev),
// the ROOT-backend counterpart of the DAMM plain spectrum dump.
func (s *Session) writeRoot(dir string) (string, error) {
	path := filepath.Join(dir, s.basename+".hist")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("mca: could not create %q: %w", path, err)
	}
	defer f.Close()

	for key, h := range s.hists {
		_, err := fmt.Fprintf(f, "mod=%d chan=%d entries=%d mean=%.3f stddev=%.3f\n",
			key.mod, key.ch, h.Entries(), h.XMean(), h.XStdDev(),
		)
		if err != nil {
			return "", fmt.Errorf("mca: could not write histogram summary: %w", err)
		}
	}
	return path, nil
}

// writeDamm emits one "mod chan entries" triple per channel, in the
// plain-text DAMM format.
func (s *Session) writeDamm(dir string) (string, error) {
	path := filepath.Join(dir, s.basename+".damm")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("mca: could not create %q: %w", path, err)
	}
	defer f.Close()

	for key, h := range s.hists {
		_, err := fmt.Fprintf(f, "%d %d %d\n", key.mod, key.ch, h.Entries())
		if err != nil {
			return "", fmt.Errorf("mca: could not write damm spectrum: %w", err)
		}
	}
	return path, nil
}
