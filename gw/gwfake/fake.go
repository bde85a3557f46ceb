// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gwfake provides a deterministic, scriptable implementation of
// gw.Gateway for tests that live outside the gw package itself — the
// spill assembler and run controller script per-drain FIFO contents
// (including malformed events) to exercise their invariants without
// touching real hardware.
package gwfake // import "github.com/go-lpc/pixie16/gw/gwfake"

import (
	"fmt"

	"github.com/go-lpc/pixie16/gw"
)

// Fake is a scriptable gw.Gateway. Each module's FIFO depth readings and
// FIFO contents are consumed one drain at a time from pre-programmed
// queues; reading past the end of a queue panics, surfacing test setup
// mistakes immediately rather than silently returning zeros.
type Fake struct {
	NMods int
	Slots []int

	Depths  [][]int      // per module, one FIFO-depth reading per drain
	Words   [][][]uint32 // per module, one FIFO word batch per drain
	depthAt []int        // per-module cursor into Depths
	wordsAt []int        // per-module cursor into Words

	RunStatuses []int // per module, value returned by RunStatus

	// RepeatLastDepth, when true, makes FIFODepth keep returning each
	// module's last scripted depth once its queue is exhausted instead of
	// panicking. Tests that need a controller to sit in a steady ACQ
	// state for a while (rather than exercising a specific fixed sequence
	// of drains) opt into this; it is false by default so every other
	// test still gets the immediate panic on an unscripted read.
	RepeatLastDepth bool

	BootErr       error
	StartErr      error
	EndErr        error
	ReadFIFOErr   error
	FIFODepthErr  error

	Booted   bool
	Started  bool
	NumEnds  int
	NumBoots int
}

var _ gw.Gateway = (*Fake)(nil)

// New returns a Fake with nmods modules, each assigned slot i+1.
func New(nmods int) *Fake {
	f := &Fake{NMods: nmods}
	f.Slots = make([]int, nmods)
	f.RunStatuses = make([]int, nmods)
	for i := range f.Slots {
		f.Slots[i] = i + 1
	}
	f.Depths = make([][]int, nmods)
	f.Words = make([][][]uint32, nmods)
	f.depthAt = make([]int, nmods)
	f.wordsAt = make([]int, nmods)
	return f
}

// PushDrain appends one drain's worth of scripted depth and FIFO content
// for module m.
func (f *Fake) PushDrain(m int, depth int, words []uint32) {
	f.Depths[m] = append(f.Depths[m], depth)
	f.Words[m] = append(f.Words[m], words)
}

func (f *Fake) DiscoverSlots() error { return nil }
func (f *Fake) Init() error          { return nil }

func (f *Fake) Boot(mode gw.BootMode) error {
	f.NumBoots++
	if f.BootErr != nil {
		return f.BootErr
	}
	f.Booted = true
	return nil
}

func (f *Fake) NumModules() int { return f.NMods }

func (f *Fake) SlotOf(m int) int {
	if m < 0 || m >= len(f.Slots) {
		return -1
	}
	return f.Slots[m]
}

func (f *Fake) FIFODepth(m int) (int, error) {
	if f.FIFODepthErr != nil {
		return 0, f.FIFODepthErr
	}
	i := f.depthAt[m]
	if i >= len(f.Depths[m]) {
		if f.RepeatLastDepth && len(f.Depths[m]) > 0 {
			return f.Depths[m][len(f.Depths[m])-1], nil
		}
		panic(fmt.Sprintf("gwfake: exhausted depth script for module %d", m))
	}
	f.depthAt[m]++
	return f.Depths[m][i], nil
}

func (f *Fake) ReadFIFO(m int, dest []uint32, n int) error {
	if f.ReadFIFOErr != nil {
		return f.ReadFIFOErr
	}
	i := f.wordsAt[m]
	if i >= len(f.Words[m]) {
		panic(fmt.Sprintf("gwfake: exhausted fifo-words script for module %d", m))
	}
	f.wordsAt[m]++
	src := f.Words[m][i]
	if len(src) != n {
		return fmt.Errorf("gwfake: module %d scripted read of %d words, asked for %d", m, len(src), n)
	}
	copy(dest, src)
	return nil
}

func (f *Fake) StartListMode() error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.Started = true
	return nil
}

func (f *Fake) EndListMode() error {
	f.NumEnds++
	f.Started = false
	return f.EndErr
}

func (f *Fake) RunStatus(m int) (int, error) {
	if m < 0 || m >= len(f.RunStatuses) {
		return 0, fmt.Errorf("gwfake: invalid module %d", m)
	}
	return f.RunStatuses[m], nil
}

func (f *Fake) RemovePresetRunLength(m int) error { return nil }

func (f *Fake) WriteModuleParam(m int, name string, value uint32) error  { return nil }
func (f *Fake) ReadModuleParam(m int, name string) (uint32, error)      { return 0, nil }
func (f *Fake) WriteChannelParam(m, ch int, name string, v float64) error { return nil }
func (f *Fake) ReadChannelParam(m, ch int, name string) (float64, error) { return 0, nil }
func (f *Fake) SaveDSPParameters(path string) error                      { return nil }

func (f *Fake) Close() error { return nil }
