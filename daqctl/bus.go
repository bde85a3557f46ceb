// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daqctl implements the spill assembler and run controller: the
// real-time state machine that drains every module's FIFO, reassembles
// events across drain boundaries and reacts to operator requests without
// racing the hardware loop.
//
// The original control program shares its state through a flat set of
// word-sized flags read and written from two execution contexts. Here
// that bus is replaced by a typed RunState plus a single-producer/
// single-consumer mailbox carrying typed edge requests from the command
// dispatcher (T_cmd) to the run controller (T_run), and a status
// snapshot polled in the other direction — the same ordering and
// ownership guarantees, a different plumbing.
package daqctl // import "github.com/go-lpc/pixie16/daqctl"

import (
	"time"

	"github.com/go-lpc/pixie16/mca"
)

// RunState is the run controller's current state.
type RunState int

const (
	StateIdle RunState = iota
	StateStarting
	StateAcq
	StateMCA
	StateStopping
	StateRebooting
	StateTerminating
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateAcq:
		return "ACQ"
	case StateMCA:
		return "MCA"
	case StateStopping:
		return "STOPPING"
	case StateRebooting:
		return "REBOOTING"
	case StateTerminating:
		return "TERMINATING"
	default:
		return "UNKNOWN"
	}
}

// Request is an edge-triggered instruction sent from the command
// dispatcher to the run controller. Each concrete type carries its own
// payload, eliminating the original's shared, out-of-band mca_args.
type Request interface{ request() }

type (
	// ReqRun opens a new output file, sets record_data and starts
	// list-mode acquisition.
	ReqRun struct{}
	// ReqStartAcq starts list-mode acquisition without opening a file
	// (acq-without-record).
	ReqStartAcq struct{}
	// ReqStopAcq ends the current list-mode run, if any.
	ReqStopAcq struct{}
	// ReqForceSpill forces the next drain to happen regardless of
	// threshold.
	ReqForceSpill struct{}
	// ReqClose closes the current output file, if any.
	ReqClose struct{}
	// ReqReboot reinitializes the crate once idle.
	ReqReboot struct{}
	// ReqKill requests a clean shutdown of the run controller.
	ReqKill struct{}
	// ReqStartMCA starts an MCA sub-run; rejected by the dispatcher (not
	// the controller) while ACQ is running.
	ReqStartMCA struct {
		Backend  mca.Backend
		Seconds  int // <0 means run until stopped
		Basename string
	}
	// ReqSetShmMode toggles the broadcaster's wire mode.
	ReqSetShmMode struct{ On bool }
	// ReqSetQuiet toggles suppressing informational console output.
	ReqSetQuiet struct{ On bool }
	// ReqSetDebug toggles verbose diagnostic dumps on corruption.
	ReqSetDebug struct{ On bool }
	// ReqSetRecordData toggles whether drains are written to disk.
	ReqSetRecordData struct{ On bool }
	// ReqConfigure edits the run identity metadata used by the next
	// file open; rejected by the dispatcher while a file is open.
	ReqConfigure struct {
		Prefix   string
		Dir      string
		Title    string
		RunNo    uint32
		HasRunNo bool
	}
)

func (ReqRun) request()           {}
func (ReqStartAcq) request()      {}
func (ReqStopAcq) request()       {}
func (ReqForceSpill) request()    {}
func (ReqClose) request()         {}
func (ReqReboot) request()        {}
func (ReqKill) request()          {}
func (ReqStartMCA) request()      {}
func (ReqSetShmMode) request()    {}
func (ReqSetQuiet) request()      {}
func (ReqSetDebug) request()      {}
func (ReqSetRecordData) request() {}
func (ReqConfigure) request()     {}

// Status is a point-in-time snapshot of the run controller, polled by
// the command dispatcher for the "status" command and the status line.
type Status struct {
	State      RunState
	RunNumber  uint32
	FileOpen   bool
	FileName   string
	Elapsed    time.Duration
	RateBps    float64
	FileSize   int64
	HadError   bool
	Quiet      bool
	Debug      bool
	ShmMode    bool
	RecordData bool
}
