// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatch implements the command dispatcher (T_cmd): it reads
// operator command lines, translates them into daqctl.Request values
// posted to the run controller's mailbox, and prints the status line
// and command output. It owns no hardware state of its own.
package dispatch // import "github.com/go-lpc/pixie16/dispatch"

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/pixie16/daqctl"
	"github.com/go-lpc/pixie16/mca"
)

// Terminal abstracts line-oriented operator input, so the dispatcher
// can be driven by a real interactive session or a scripted one in
// tests.
type Terminal interface {
	// ReadLine blocks for one line of input, without the trailing
	// newline. io.EOF signals the operator closed the session.
	ReadLine() (string, error)
	// AppendHistory records a non-empty command line, before it is
	// executed.
	AppendHistory(line string)
	Close() error
}

// Dispatcher parses operator command lines and drives a run controller.
type Dispatcher struct {
	ctl  *daqctl.Controller
	term Terminal
	msg  *log.Logger
	out  io.Writer
}

// New returns a Dispatcher posting requests to ctl and reading lines
// from term.
func New(ctl *daqctl.Controller, term Terminal) *Dispatcher {
	return &Dispatcher{
		ctl:  ctl,
		term: term,
		msg:  log.New(os.Stdout, "", 0),
		out:  os.Stdout,
	}
}

// Run reads and executes command lines until the terminal is closed or
// a quit/exit/kill command is issued.
func (d *Dispatcher) Run() error {
	for {
		line, err := d.term.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dispatch: could not read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d.term.AppendHistory(line)

		quit, err := d.Execute(line)
		if err != nil {
			fmt.Fprintf(d.out, "error: %+v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Execute parses and runs one command line. quit reports whether the
// dispatcher loop should stop reading further input.
func (d *Dispatcher) Execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "run":
		d.ctl.Mailbox() <- daqctl.ReqRun{}
	case "startacq":
		d.ctl.Mailbox() <- daqctl.ReqStartAcq{}
	case "stop", "stopacq":
		d.ctl.Mailbox() <- daqctl.ReqStopAcq{}
	case "hup", "spill":
		d.ctl.Mailbox() <- daqctl.ReqForceSpill{}
	case "close":
		if err := d.rejectIfRunning(); err != nil {
			return false, err
		}
		d.ctl.Mailbox() <- daqctl.ReqClose{}
	case "reboot":
		d.ctl.Mailbox() <- daqctl.ReqReboot{}
	case "quit", "exit":
		if st := d.ctl.Status().State; st == daqctl.StateAcq || st == daqctl.StateMCA {
			fmt.Fprintf(d.out, "%s: refused: acquisition or MCA run is active, stop it first\n", verb)
			return false, nil
		}
		d.ctl.Mailbox() <- daqctl.ReqKill{}
		return true, nil
	case "kill":
		if st := d.ctl.Status().State; st == daqctl.StateAcq || st == daqctl.StateMCA {
			d.ctl.Mailbox() <- daqctl.ReqStopAcq{}
		}
		d.ctl.Mailbox() <- daqctl.ReqKill{}
		return true, nil

	case "acq", "shm":
		return false, d.dispatchOnOff(args, func(on bool) {
			d.ctl.Mailbox() <- daqctl.ReqSetShmMode{On: on}
		})
	case "debug":
		return false, d.dispatchOnOff(args, func(on bool) {
			d.ctl.Mailbox() <- daqctl.ReqSetDebug{On: on}
		})
	case "quiet":
		return false, d.dispatchOnOff(args, func(on bool) {
			d.ctl.Mailbox() <- daqctl.ReqSetQuiet{On: on}
		})
	case "record":
		return false, d.dispatchOnOff(args, func(on bool) {
			d.ctl.Mailbox() <- daqctl.ReqSetRecordData{On: on}
		})

	case "prefix":
		return false, d.configure(func(c *daqctl.ReqConfigure) { c.Prefix = strings.Join(args, " ") })
	case "fdir":
		return false, d.configure(func(c *daqctl.ReqConfigure) { c.Dir = strings.Join(args, " ") })
	case "title":
		return false, d.configure(func(c *daqctl.ReqConfigure) { c.Title = strings.Join(args, " ") })
	case "runnum":
		return false, d.runnum(args)
	case "oform":
		fmt.Fprintf(d.out, "oform: output format is fixed at controller-construction time\n")
		return false, nil

	case "mca":
		return false, d.mca(args)

	case "pread":
		return false, d.pread(args)
	case "pwrite":
		return false, d.pwrite(args)
	case "pmread":
		return false, d.pmread(args)
	case "pmwrite":
		return false, d.pmwrite(args)
	case "dump":
		return false, d.dump(args)

	case "adjust_offsets", "find_tau", "toggle", "toggle_bit", "csr_test", "bit_test":
		fmt.Fprintf(d.out, "%s: not supported by this crate gateway\n", verb)
		return false, nil

	case "stats":
		return false, d.stats(args)
	case "status":
		d.printStatus()
	case "version":
		fmt.Fprintln(d.out, pixieVersion())
	case "help":
		d.printHelp()

	default:
		return false, fmt.Errorf("dispatch: unknown command %q", verb)
	}

	return false, nil
}

func (d *Dispatcher) dispatchOnOff(args []string, set func(on bool)) error {
	if len(args) != 1 {
		return fmt.Errorf("dispatch: expected exactly one argument (on|off)")
	}
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		set(true)
	case "off", "0", "false":
		set(false)
	default:
		return fmt.Errorf("dispatch: invalid on/off argument %q", args[0])
	}
	return nil
}

// rejectIfRunning refuses a command while acquisition or an MCA sub-run
// is active. Used by commands that talk to the gateway or sink outside
// the mailbox, which must not race T_run.
func (d *Dispatcher) rejectIfRunning() error {
	if st := d.ctl.Status().State; st == daqctl.StateAcq || st == daqctl.StateMCA {
		return fmt.Errorf("dispatch: refused: acquisition or MCA run is active")
	}
	return nil
}

// rejectIfLocked refuses a run-identity edit while a run is active or an
// output file is already open: the identity only takes effect on the
// next file open, and changing it underneath an open file would desync
// the two.
func (d *Dispatcher) rejectIfLocked() error {
	if err := d.rejectIfRunning(); err != nil {
		return err
	}
	if d.ctl.Status().FileOpen {
		return fmt.Errorf("dispatch: refused: run identity is locked while a file is open")
	}
	return nil
}

func (d *Dispatcher) configure(set func(*daqctl.ReqConfigure)) error {
	if err := d.rejectIfLocked(); err != nil {
		return err
	}
	prefix, dir, title, runNo := d.ctl.RunIdentity()
	req := daqctl.ReqConfigure{Prefix: prefix, Dir: dir, Title: title, RunNo: runNo}
	set(&req)
	d.ctl.Mailbox() <- req
	return nil
}

func (d *Dispatcher) runnum(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("dispatch: runnum expects exactly one argument")
	}
	if err := d.rejectIfLocked(); err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		// a non-numeric run number resolves to 0, per the run-identity
		// open question.
		n = 0
	}
	prefix, dir, title, _ := d.ctl.RunIdentity()
	d.ctl.Mailbox() <- daqctl.ReqConfigure{Prefix: prefix, Dir: dir, Title: title, RunNo: uint32(n), HasRunNo: true}
	return nil
}

func (d *Dispatcher) mca(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("dispatch: usage: mca <root|damm> <seconds|inf> [basename]")
	}
	if err := d.rejectIfRunning(); err != nil {
		return err
	}

	var backend mca.Backend
	switch strings.ToLower(args[0]) {
	case "root":
		backend = mca.RootBackend
	case "damm":
		backend = mca.DammBackend
	default:
		return fmt.Errorf("dispatch: unknown MCA backend %q", args[0])
	}

	seconds := -1
	if strings.ToLower(args[1]) != "inf" {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("dispatch: invalid MCA duration %q: %w", args[1], err)
		}
		seconds = n
	}

	basename := "mca"
	if len(args) > 2 {
		basename = strings.Join(args[2:], "_")
	}

	d.ctl.Mailbox() <- daqctl.ReqStartMCA{Backend: backend, Seconds: seconds, Basename: basename}
	return nil
}

func (d *Dispatcher) printStatus() {
	st := d.ctl.Status()
	fmt.Fprintf(d.out, "state=%v run=%d file_open=%v size=%s elapsed=%v rate=%s/s had_error=%v\n",
		st.State, st.RunNumber, st.FileOpen, humanBytes(st.FileSize), st.Elapsed.Truncate(time.Second),
		humanBytes(int64(st.RateBps)), st.HadError,
	)
}

func (d *Dispatcher) printHelp() {
	fmt.Fprint(d.out, `commands:
  run                         open a new file and start list-mode acquisition
  startacq                    start list-mode acquisition without recording
  stop | stopacq              stop the current acquisition
  hup | spill                 force the next drain regardless of threshold
  close                       close the current output file
  reboot                      reinitialize the crate (idle only)
  mca <root|damm> <secs|inf> [name]   run an MCA sub-run
  acq|shm on|off               toggle shared-memory broadcast mode
  debug on|off                toggle corruption hex dumps
  quiet on|off                 toggle informational logging
  record on|off                 toggle whether drains are written to disk
  prefix|fdir|title <value>   set run identity metadata
  runnum <n>                   set the next run number
  pread|pwrite <mod> <name> [value]     module DSP parameter I/O
  pmread|pmwrite <mod> <ch> <name> [value]   channel DSP parameter I/O
  dump <path>                  save DSP parameters to a settings file
  stats [reset]                 print aggregate stats, then zero them if "reset" is given
  status                       print the current run status
  version                      print the build version
  quit | exit | kill            shut down
`)
}
