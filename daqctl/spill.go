// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqctl

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-lpc/pixie16/frame"
	"github.com/go-lpc/pixie16/gw"
	"github.com/go-lpc/pixie16/stats"
	"golang.org/x/sync/errgroup"
)

// Assembler drains every module's FIFO under a threshold policy, parses
// events, preserves partial events across drains and frames the
// resulting spill. It owns the per-module partial-event buffers
// exclusively; nothing else ever reads or writes them.
type Assembler struct {
	gw    gw.Gateway
	stats *stats.Aggregator
	msg   *log.Logger

	threshWords int
	pollTries   int

	partial [][]uint32 // per module carryover from the previous drain

	lastSpillTime time.Time
	debug         bool
}

// NewAssembler returns an Assembler draining every module g reports.
func NewAssembler(g gw.Gateway, st *stats.Aggregator, threshWords, pollTries int) *Assembler {
	n := g.NumModules()
	return &Assembler{
		gw:            g,
		stats:         st,
		msg:           log.New(os.Stdout, "spill: ", 0),
		threshWords:   threshWords,
		pollTries:     pollTries,
		partial:       make([][]uint32, n),
		lastSpillTime: time.Now(),
	}
}

// SetDebug toggles the first-100-words hex dump on corrupted headers.
func (a *Assembler) SetDebug(on bool) { a.debug = on }

// DrainResult is the outcome of one DrainOnce pass.
type DrainResult struct {
	Drained  bool // false if the threshold wait exited without a drain decision
	Empty    bool // true if every module's last depth reading was below gw.MinFIFORead
	Words    []uint32
	Duration time.Duration
}

// faultError marks a fault that must set had_error and request stop_acq,
// per the FIFO-full / FIFO-read-failure / corrupted-header error policy.
type faultError struct{ err error }

func (f *faultError) Error() string { return f.err.Error() }
func (f *faultError) Unwrap() error { return f.err }

// DrainOnce performs one drain pass. stopRequested and forceSpill mirror
// the stop_acq/force_spill flags of the original design. A non-nil,
// *faultError-wrapping error means the caller must set had_error and
// request stop.
func (a *Assembler) DrainOnce(stopRequested, forceSpill bool) (DrainResult, error) {
	n := a.gw.NumModules()
	depths := make([]int, n)

	var maxDepth int
	for try := 0; try < a.pollTries; try++ {
		maxDepth = 0
		for m := 0; m < n; m++ {
			d, err := a.gw.FIFODepth(m)
			if err != nil {
				return DrainResult{}, &faultError{fmt.Errorf("spill: could not read fifo depth of module %d: %w", m, err)}
			}
			depths[m] = d
			if d > maxDepth {
				maxDepth = d
			}
		}
		if maxDepth > a.threshWords || stopRequested {
			break
		}
	}

	if maxDepth <= a.threshWords && !stopRequested && !forceSpill {
		return DrainResult{Drained: false}, nil
	}

	allEmpty := true
	for m := 0; m < n; m++ {
		if depths[m] >= gw.MinFIFORead {
			allEmpty = false
			break
		}
	}

	segments := make([][]uint32, n)
	var eg errgroup.Group
	for m := 0; m < n; m++ {
		m := m
		eg.Go(func() error {
			seg, err := a.drainModule(m, depths[m])
			if err != nil {
				return err
			}
			segments[m] = seg
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return DrainResult{}, err
	}

	var words []uint32
	for m := 0; m < n; m++ {
		words = append(words, segments[m]...)
	}

	now := time.Now()
	dur := now.Sub(a.lastSpillTime)
	a.lastSpillTime = now
	a.stats.AddSpill(dur)

	return DrainResult{Drained: true, Empty: allEmpty, Words: words, Duration: dur}, nil
}

// drainModule reads, parses and frames module m's contribution to one
// spill, folding in any carryover from the previous drain.
func (a *Assembler) drainModule(m, depth int) ([]uint32, error) {
	if depth < gw.MinFIFORead {
		return []uint32{2, uint32(m)}, nil
	}
	if depth >= gw.ExternalFIFOLength {
		return nil, &faultError{fmt.Errorf("spill: full fifo in module %d (%d/%d)", m, depth, gw.ExternalFIFOLength)}
	}

	fresh := make([]uint32, depth)
	if err := a.gw.ReadFIFO(m, fresh, depth); err != nil {
		return nil, &faultError{fmt.Errorf("spill: could not read %d words from module %d: %w", depth, m, err)}
	}

	words := append(append([]uint32(nil), a.partial[m]...), fresh...)

	res, err := frame.ParseSegment(words, a.gw.SlotOf(m))
	if err != nil {
		if a.debug {
			a.dumpCorruption(m, words)
		}
		return nil, &faultError{fmt.Errorf("spill: module %d: %w", m, err)}
	}

	a.partial[m] = res.Partial
	for _, ev := range res.Stats {
		a.stats.AddEvent(m, ev.Channel, ev.Size)
	}

	seg := make([]uint32, 0, res.Consumed+2)
	seg = append(seg, uint32(res.Consumed+2), uint32(m))
	seg = append(seg, words[:res.Consumed]...)
	return seg, nil
}

func (a *Assembler) dumpCorruption(m int, words []uint32) {
	n := len(words)
	if n > 100 {
		n = 100
	}
	a.msg.Printf("module %d: first %d words of corrupted segment:", m, n)
	for i := 0; i < n; i++ {
		a.msg.Printf("  [%03d] 0x%08x", i, words[i])
	}
}
