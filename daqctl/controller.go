// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daqctl

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-lpc/pixie16/broadcast"
	"github.com/go-lpc/pixie16/frame"
	"github.com/go-lpc/pixie16/gw"
	"github.com/go-lpc/pixie16/mca"
	"github.com/go-lpc/pixie16/sink"
	"github.com/go-lpc/pixie16/stats"
)

// idleSleep is how long the controller sleeps between ticks while wholly
// idle.
const idleSleep = 200 * time.Millisecond

// Controller is the run controller (T_run): it drains the mailbox of
// operator requests each tick, in priority order, and drives the spill
// assembler while an acquisition or MCA sub-run is active.
type Controller struct {
	gw    gw.Gateway
	sink  sink.Sink
	bcast *broadcast.Broadcaster
	stats *stats.Aggregator
	asm   *Assembler
	msg   *log.Logger

	mailbox chan Request
	status  atomic.Value // Status

	state      RunState
	hadError   bool
	recordData bool
	shmMode    bool
	quiet      bool
	debug      bool

	// edge-triggered latches, set by drainMailbox and cleared by the
	// handler that acts on them
	pendingKill    bool
	pendingReboot  bool
	pendingMCA     *ReqStartMCA
	pendingStart   bool
	startWithFile  bool
	pendingStop    bool
	pendingForce   bool

	prefix, dir, title string
	runNo              uint32
	hasRunNo           bool

	startTime time.Time
}

// NewController wires together the hardware gateway, output sink,
// broadcaster, stats aggregator and spill assembler into a run
// controller. threshWords and pollTries are forwarded to the Assembler.
func NewController(g gw.Gateway, sk sink.Sink, bc *broadcast.Broadcaster, st *stats.Aggregator, threshWords, pollTries int, prefix, dir, title string) *Controller {
	c := &Controller{
		gw:      g,
		sink:    sk,
		bcast:   bc,
		stats:   st,
		asm:     NewAssembler(g, st, threshWords, pollTries),
		msg:     log.New(os.Stdout, "daqctl: ", 0),
		mailbox: make(chan Request, 16),
		prefix:  prefix,
		dir:     dir,
		title:   title,
	}
	c.status.Store(Status{State: StateIdle})
	return c
}

// Mailbox returns the send-only channel the command dispatcher posts
// requests to.
func (c *Controller) Mailbox() chan<- Request { return c.mailbox }

// Gateway exposes the crate gateway for the dispatcher's synchronous
// diagnostic commands (parameter read/write, settings dump), which fall
// outside the mailbox's asynchronous request flow.
func (c *Controller) Gateway() gw.Gateway { return c.gw }

// Stats exposes the stats aggregator for the dispatcher's "stats"
// command.
func (c *Controller) Stats() *stats.Aggregator { return c.stats }

// RunIdentity returns the run identity metadata the next file open will
// use, so the dispatcher's prefix/fdir/title/runnum commands can edit
// one field at a time without clobbering the others.
func (c *Controller) RunIdentity() (prefix, dir, title string, runNo uint32) {
	return c.prefix, c.dir, c.title, c.runNo
}

// Status returns the most recently published status snapshot.
func (c *Controller) Status() Status {
	return c.status.Load().(Status)
}

// Run executes the controller loop until a kill is requested or ctx is
// canceled. It is the single T_run execution context; nothing else may
// call the gateway, sink or broadcaster concurrently with it.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		exit, err := c.tick(ctx)
		if err != nil {
			c.hadError = true
			c.stats.AddError()
			c.msg.Printf("error: %+v", err)
			c.pendingStop = true
			continue
		}
		if exit {
			return nil
		}

		if c.state != StateAcq {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleSleep):
			}
		}
	}
}

// tick runs one iteration of the priority-ordered dispatch: kill,
// reboot, MCA, start, drain/stop. Only one of kill/reboot/MCA is acted
// on per tick, and a tick that acts on one of them ends there; otherwise
// a pending start and the drain both run in the same tick.
func (c *Controller) tick(ctx context.Context) (exit bool, err error) {
	c.drainMailbox()

	switch {
	case c.pendingKill:
		return c.handleKill()
	case c.pendingReboot && c.state == StateIdle:
		return false, c.handleReboot()
	case c.pendingMCA != nil && c.state == StateIdle:
		return false, c.handleMCA()
	}

	if c.pendingStart && c.state == StateIdle {
		if err := c.handleStart(); err != nil {
			return false, err
		}
	}

	if c.state == StateAcq {
		if err := c.drainTick(); err != nil {
			return false, err
		}
	}

	c.publishStatus()
	return false, nil
}

// drainMailbox applies every request queued since the last tick,
// without blocking.
func (c *Controller) drainMailbox() {
	for {
		select {
		case req := <-c.mailbox:
			c.apply(req)
		default:
			return
		}
	}
}

func (c *Controller) apply(req Request) {
	switch r := req.(type) {
	case ReqRun:
		c.pendingStart, c.startWithFile = true, true
		c.recordData = true
	case ReqStartAcq:
		c.pendingStart, c.startWithFile = true, false
	case ReqStopAcq:
		c.pendingStop = true
	case ReqForceSpill:
		c.pendingForce = true
	case ReqClose:
		if c.state == StateIdle && c.sink.IsOpen() {
			_ = c.sink.Close(time.Since(c.startTime))
		}
	case ReqReboot:
		c.pendingReboot = true
	case ReqKill:
		c.pendingKill = true
	case ReqStartMCA:
		rr := r
		c.pendingMCA = &rr
	case ReqSetShmMode:
		c.shmMode = r.On
		if r.On {
			c.bcast.SetMode(broadcast.ShmMode)
		} else {
			c.bcast.SetMode(broadcast.NotifyMode)
		}
	case ReqSetQuiet:
		c.quiet = r.On
	case ReqSetDebug:
		c.debug = r.On
		c.asm.SetDebug(r.On)
	case ReqSetRecordData:
		c.recordData = r.On
	case ReqConfigure:
		c.prefix, c.dir, c.title = r.Prefix, r.Dir, r.Title
		if r.HasRunNo {
			c.runNo, c.hasRunNo = r.RunNo, true
		}
	}
}

// handleStart transitions from IDLE to ACQ, opening the output file
// when the request came with file recording and resetting the per-run
// bookkeeping (partial events, stats, elapsed time).
func (c *Controller) handleStart() error {
	c.pendingStart = false

	if c.startWithFile && c.recordData {
		runNo := c.runNo
		if err := c.sink.Open(c.title, runNo, c.prefix, c.dir, false); err != nil {
			c.msg.Printf("warning: could not open output file, continuing acq without recording: %+v", err)
			c.recordData = false
		} else {
			c.runNo = c.sink.RunNumber()
			if err := c.bcast.SendControl(broadcast.CtrlOpenFile); err != nil {
				c.msg.Printf("warning: could not notify open-file: %+v", err)
			}
		}
	}

	c.clearPresetRunLengths()
	if err := c.gw.StartListMode(); err != nil {
		return fmt.Errorf("daqctl: could not start list mode: %w", err)
	}

	c.asm.partial = make([][]uint32, c.gw.NumModules())
	c.stats.Reset()
	c.startTime = time.Now()
	c.state = StateAcq
	if !c.quiet {
		c.msg.Printf("acquisition started (run=%d record=%v)", c.runNo, c.recordData)
	}
	return nil
}

// drainTick performs one spill-assembler pass and, if a stop was
// requested, keeps draining residual FIFO contents until a pass comes
// back empty before tearing the run down.
func (c *Controller) drainTick() error {
	for {
		res, err := c.asm.DrainOnce(c.pendingStop, c.pendingForce)
		c.pendingForce = false
		if err != nil {
			return err
		}
		if res.Drained {
			if err := c.emit(res.Words); err != nil {
				return err
			}
		}
		if !c.pendingStop {
			return nil
		}
		if res.Empty {
			return c.teardownAcq()
		}
	}
}

// emit routes one assembled spill through the output sink (rotating the
// file at the 4 GiB ceiling, preserving run identity across the
// rotation) and the broadcaster.
func (c *Controller) emit(words []uint32) error {
	if c.recordData && c.sink.IsOpen() {
		if c.sink.WouldOverflow(len(words)) {
			if err := c.sink.Close(time.Since(c.startTime)); err != nil {
				return fmt.Errorf("daqctl: could not rotate output file: %w", err)
			}
			if err := c.sink.Open(c.title, c.runNo, c.prefix, c.dir, true); err != nil {
				return fmt.Errorf("daqctl: could not reopen output file: %w", err)
			}
		}
		if _, err := c.sink.Write(words); err != nil {
			return fmt.Errorf("daqctl: could not write spill: %w", err)
		}
	}

	packet := c.sink.BuildStatusPacket()
	if err := c.bcast.SendSpill(words, packet); err != nil {
		c.msg.Printf("warning: could not broadcast spill: %+v", err)
	}
	return nil
}

// teardownAcq ends list-mode data taking, verifies every module's run
// status, drains any residual data a still-active module reports and
// closes the output file, returning the controller to IDLE.
func (c *Controller) teardownAcq() error {
	if err := c.gw.EndListMode(); err != nil {
		c.msg.Printf("warning: could not end list mode cleanly: %+v", err)
	}

	c.checkRunStatus()

	if c.sink.IsOpen() {
		if err := c.bcast.SendControl(broadcast.CtrlCloseFile); err != nil {
			c.msg.Printf("warning: could not notify close-file: %+v", err)
		}
		if err := c.sink.Close(time.Since(c.startTime)); err != nil {
			c.msg.Printf("warning: could not close output file: %+v", err)
		}
	}

	c.pendingStop = false
	c.state = StateIdle
	if !c.quiet {
		c.msg.Printf("acquisition stopped (run=%d elapsed=%v)", c.runNo, time.Since(c.startTime))
	}
	return nil
}

// checkRunStatus reads every module's run status once the stop request
// has been drained dry. A module still reporting run_status==1 may be
// holding residual FIFO data behind the hardware run flag: its depth is
// logged and a single forced drain is taken before the final per-module
// verdict. Any module whose run status is not 0 after that sets
// had_error.
func (c *Controller) checkRunStatus() {
	residual := false
	for m := 0; m < c.gw.NumModules(); m++ {
		status, err := c.gw.RunStatus(m)
		if err != nil {
			c.msg.Printf("warning: could not read run status of module %d: %+v", m, err)
			c.hadError = true
			continue
		}
		if status == 1 {
			depth, _ := c.gw.FIFODepth(m)
			c.msg.Printf("module %d: run still active at end of stop, residual fifo depth=%d", m, depth)
			residual = true
		}
	}

	if residual {
		time.Sleep(time.Second)
		res, err := c.asm.DrainOnce(true, true)
		if err != nil {
			c.msg.Printf("warning: error draining residual data at run end: %+v", err)
			c.hadError = true
			c.stats.AddError()
		} else if res.Drained {
			if err := c.emit(res.Words); err != nil {
				c.msg.Printf("warning: could not emit residual spill at run end: %+v", err)
			}
		}
	}

	for m := 0; m < c.gw.NumModules(); m++ {
		status, err := c.gw.RunStatus(m)
		if err != nil {
			c.msg.Printf("warning: could not read run status of module %d: %+v", m, err)
			c.hadError = true
			continue
		}
		if status != 0 {
			c.msg.Printf("module %d: run-end verdict: error (run_status=%d)", m, status)
			c.hadError = true
			continue
		}
		if !c.quiet {
			c.msg.Printf("module %d: run-end verdict: ok", m)
		}
	}
}

// clearPresetRunLengths clears any hardware-preset run length on every
// module, so the run only ends on an explicit stop. Failures are
// logged, not fatal: a module without a preset length rejects the
// clear harmlessly.
func (c *Controller) clearPresetRunLengths() {
	for m := 0; m < c.gw.NumModules(); m++ {
		if err := c.gw.RemovePresetRunLength(m); err != nil {
			c.msg.Printf("warning: could not clear preset run length on module %d: %+v", m, err)
		}
	}
}

// handleReboot reinitializes the crate. Only acted on while IDLE.
func (c *Controller) handleReboot() error {
	c.pendingReboot = false
	c.state = StateRebooting
	defer func() { c.state = StateIdle }()

	if err := c.gw.DiscoverSlots(); err != nil {
		return fmt.Errorf("daqctl: could not discover slots: %w", err)
	}
	if err := c.gw.Boot(gw.BootFull); err != nil {
		return fmt.Errorf("daqctl: could not reboot crate: %w", err)
	}
	c.hadError = false
	if !c.quiet {
		c.msg.Printf("crate rebooted")
	}
	return nil
}

// handleMCA runs a calibration sub-run to completion: it drains FIFOs
// exactly like an ACQ run but routes parsed event sizes into an MCA
// session instead of the output sink, for either a fixed duration or
// until a stop is requested.
func (c *Controller) handleMCA() error {
	req := c.pendingMCA
	c.pendingMCA = nil

	c.state = StateMCA
	defer func() { c.state = StateIdle }()

	sess := mca.New(req.Backend, req.Basename)

	c.clearPresetRunLengths()
	if err := c.gw.StartListMode(); err != nil {
		return fmt.Errorf("daqctl: could not start MCA run: %w", err)
	}

	deadline := time.Time{}
	if req.Seconds >= 0 {
		deadline = time.Now().Add(time.Duration(req.Seconds) * time.Second)
	}

	for {
		c.drainMailbox()
		if c.pendingKill || c.pendingStop {
			c.pendingStop = false
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		res, err := c.asm.DrainOnce(false, false)
		if err != nil {
			_ = c.gw.EndListMode()
			return fmt.Errorf("daqctl: MCA run faulted: %w", err)
		}
		if !res.Drained {
			time.Sleep(idleSleep)
			continue
		}
		c.fillMCA(sess, res.Words)
	}

	if err := c.gw.EndListMode(); err != nil {
		c.msg.Printf("warning: could not end MCA run cleanly: %+v", err)
	}

	path, err := sess.Write(c.dir)
	if err != nil {
		return fmt.Errorf("daqctl: could not write MCA spectra: %w", err)
	}
	if !c.quiet {
		c.msg.Printf("MCA run complete: %s", path)
	}
	return nil
}

// handleKill performs the shutdown sequence: stop any running
// acquisition and drain residual FIFO contents, close the output file,
// notify the broadcast subscriber and release the gateway, in that
// order.
func (c *Controller) handleKill() (bool, error) {
	c.pendingKill = false

	if c.state == StateAcq {
		c.pendingStop = true
		if err := c.drainTick(); err != nil {
			c.msg.Printf("warning: error draining residual data on shutdown: %+v", err)
		}
	}
	if c.sink.IsOpen() {
		if err := c.sink.Close(time.Since(c.startTime)); err != nil {
			c.msg.Printf("warning: could not close output file on shutdown: %+v", err)
		}
	}

	c.state = StateTerminating
	c.publishStatus()

	if err := c.bcast.SendControl(broadcast.CtrlKillSocket); err != nil {
		c.msg.Printf("warning: could not notify kill-socket: %+v", err)
	}
	if err := c.gw.Close(); err != nil {
		return true, fmt.Errorf("daqctl: could not release gateway: %w", err)
	}

	return true, nil
}

// publishStatus stores a fresh Status snapshot for Status to observe.
func (c *Controller) publishStatus() {
	st := Status{
		State:      c.state,
		RunNumber:  c.runNo,
		FileOpen:   c.sink.IsOpen(),
		HadError:   c.hadError,
		Quiet:      c.quiet,
		Debug:      c.debug,
		ShmMode:    c.shmMode,
		RecordData: c.recordData,
	}
	if c.sink.IsOpen() {
		st.FileSize = c.sink.Size()
	}
	if c.state == StateAcq {
		st.Elapsed = time.Since(c.startTime)
		totals := c.stats.Snapshot()
		st.RateBps = totals.Rate()
	}
	c.status.Store(st)
}

// fillMCA decodes a raw spill's per-module segments and fills the
// session's spectra with each event's word-count as a stand-in pulse
// height; true energy extraction is out of scope (see the MCA package's
// backend documentation).
func (c *Controller) fillMCA(sess *mca.Session, words []uint32) {
	i := 0
	for i+2 <= len(words) {
		segLen := int(words[i])
		mod := int(words[i+1])
		if segLen < 2 || i+segLen > len(words) {
			break
		}
		payload := words[i+2 : i+segLen]

		j := 0
		for j < len(payload) {
			hdr, err := frame.ParseHeader(payload[j], c.gw.SlotOf(mod))
			if err != nil {
				break
			}
			if !hdr.Virtual {
				sess.Fill(mod, hdr.Channel, float64(hdr.Size))
			}
			j += hdr.Size
		}
		i += segLen
	}
}
