// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gw abstracts the digitizer crate hardware behind a single
// capability interface, so the run controller and spill assembler never
// touch registers, DMA buffers or vendor driver calls directly.
package gw // import "github.com/go-lpc/pixie16/gw"

import "fmt"

// BootMode selects how much of the crate gets reinitialized by Boot.
type BootMode int

const (
	// BootFast only downloads DSP parameters, sets the DACs and
	// reprograms the FPGAs; it assumes the crate is already powered
	// and enumerated.
	BootFast BootMode = iota
	// BootFull additionally resets the backplane and re-runs slot
	// discovery; used after a power cycle or a failed fast boot.
	BootFull
)

func (m BootMode) String() string {
	switch m {
	case BootFast:
		return "fast"
	case BootFull:
		return "full"
	default:
		return fmt.Sprintf("BootMode(%d)", int(m))
	}
}

// Gateway abstracts the PIXIE-16 crate: boot sequencing, per-module FIFO
// access, run lifecycle and parameter I/O. No call retries internally;
// failures are reported as an error and the caller (the run controller)
// decides how to react.
type Gateway interface {
	// DiscoverSlots probes the backplane and populates the module-to-slot
	// mapping used by NumModules and SlotOf.
	DiscoverSlots() error
	// Init brings up the low-level driver session. Must be called once,
	// before Boot.
	Init() error
	// Boot downloads parameters, programs the FPGAs and, in BootFull
	// mode, re-synchronizes the backplane clock across every module.
	Boot(mode BootMode) error

	// NumModules returns the number of modules discovered in the crate.
	NumModules() int
	// SlotOf returns the backplane slot number of the given module.
	SlotOf(module int) int

	// FIFODepth returns the number of words currently queued in module
	// m's external FIFO. A value >= ExternalFIFOLength signals the FIFO
	// is full.
	FIFODepth(m int) (int, error)
	// ReadFIFO reads exactly n words from module m's FIFO into dest.
	ReadFIFO(m int, dest []uint32, n int) error

	// StartListMode arms every module for list-mode data taking.
	StartListMode() error
	// EndListMode stops list-mode data taking on every module.
	EndListMode() error
	// RunStatus reports whether module m still believes a run is active
	// (1) or has stopped (0).
	RunStatus(m int) (int, error)
	// RemovePresetRunLength clears any hardware-preset run length on
	// module m, so list-mode runs only end on an explicit stop.
	RemovePresetRunLength(m int) error

	// WriteModuleParam sets a module-scoped DSP parameter.
	WriteModuleParam(m int, name string, value uint32) error
	// ReadModuleParam reads a module-scoped DSP parameter.
	ReadModuleParam(m int, name string) (uint32, error)
	// WriteChannelParam sets a channel-scoped DSP parameter.
	WriteChannelParam(m, ch int, name string, value float64) error
	// ReadChannelParam reads a channel-scoped DSP parameter.
	ReadChannelParam(m, ch int, name string) (float64, error)
	// SaveDSPParameters dumps every module's and channel's DSP
	// parameters to path, in the vendor settings-file format.
	SaveDSPParameters(path string) error

	// Close releases the driver session and any mapped memory.
	Close() error
}

// ExternalFIFOLength is the fixed depth, in words, of a module's
// external FIFO. A FIFODepth reading at or above this value means the
// FIFO is full and the current run must be aborted (see spill assembly
// full-FIFO fault handling).
const ExternalFIFOLength = 131072

// MinFIFORead is the minimum number of queued words worth draining in
// one pass; modules below this are skipped (an empty segment is still
// emitted) to avoid thrashing the bus for a handful of words.
const MinFIFORead = 4
