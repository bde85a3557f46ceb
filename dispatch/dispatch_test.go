// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-lpc/pixie16/broadcast"
	"github.com/go-lpc/pixie16/daqctl"
	"github.com/go-lpc/pixie16/gw/gwfake"
	"github.com/go-lpc/pixie16/sink"
	"github.com/go-lpc/pixie16/stats"
)

type fakeTerminal struct {
	lines   []string
	i       int
	history []string
}

func (t *fakeTerminal) ReadLine() (string, error) {
	if t.i >= len(t.lines) {
		return "", io.EOF
	}
	l := t.lines[t.i]
	t.i++
	return l, nil
}
func (t *fakeTerminal) AppendHistory(line string) { t.history = append(t.history, line) }
func (t *fakeTerminal) Close() error              { return nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	f := gwfake.New(1)
	sk := sink.New(sink.FormatPLD)
	var bbuf bytes.Buffer
	bc := broadcast.New(&bbuf)
	ctl := daqctl.NewController(f, sk, bc, stats.New(), 5, 1, "run", dir, "a test")

	d := New(ctl, &fakeTerminal{})
	var out bytes.Buffer
	d.out = &out
	return d, &out
}

func TestExecuteUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)
	_, err := d.Execute("frobnicate")
	if err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestExecuteQuitRequestsExit(t *testing.T) {
	d, _ := newTestDispatcher(t)
	quit, err := d.Execute("quit")
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if !quit {
		t.Fatalf("expected quit to request dispatcher exit")
	}
}

func TestExecuteStatusPrintsState(t *testing.T) {
	d, out := newTestDispatcher(t)
	if _, err := d.Execute("status"); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if out.Len() == 0 {
		t.Fatalf("expected status output")
	}
}

func TestExecuteOnOffValidation(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Execute("debug maybe"); err == nil {
		t.Fatalf("expected an error for an invalid on/off argument")
	}
	if _, err := d.Execute("debug on"); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestExecuteRunnumNonNumericResolvesToZero(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Execute("runnum abc"); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

// newRunningDispatcher starts a Controller for real, with an acquisition
// that never threshold-drains, and waits for it to settle into StateAcq
// before handing back a Dispatcher wired to it. cancel must be called to
// stop the background Run loop.
func newRunningDispatcher(t *testing.T) (d *Dispatcher, cancel context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	f := gwfake.New(1)
	f.PushDrain(0, 0, nil)
	f.RepeatLastDepth = true
	sk := sink.New(sink.FormatPLD)
	var bbuf bytes.Buffer
	bc := broadcast.New(&bbuf)
	ctl := daqctl.NewController(f, sk, bc, stats.New(), 5, 1, "run", dir, "a test")

	ctx, cancel := context.WithCancel(context.Background())
	ctl.Mailbox() <- daqctl.ReqRun{}
	go ctl.Run(ctx)
	t.Cleanup(cancel)

	deadline := time.Now().Add(2 * time.Second)
	for ctl.Status().State != daqctl.StateAcq && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	d = New(ctl, &fakeTerminal{})
	var out bytes.Buffer
	d.out = &out
	return d, cancel
}

func TestExecuteQuitRefusedWhileAcqRunning(t *testing.T) {
	d, cancel := newRunningDispatcher(t)
	defer cancel()

	quit, err := d.Execute("quit")
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if quit {
		t.Fatalf("expected quit to be refused while acquisition is running")
	}
}

func TestExecuteKillStopsRunningAcqAndExits(t *testing.T) {
	d, cancel := newRunningDispatcher(t)
	defer cancel()

	quit, err := d.Execute("kill")
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if !quit {
		t.Fatalf("expected kill to request dispatcher exit unconditionally")
	}
}

func TestExecutePreadRefusedWhileAcqRunning(t *testing.T) {
	d, cancel := newRunningDispatcher(t)
	defer cancel()

	if _, err := d.Execute("pread 0 ENERGY"); err == nil {
		t.Fatalf("expected pread to be refused while acquisition is running")
	}
}

func TestExecutePrefixRefusedWhileFileOpen(t *testing.T) {
	d, cancel := newRunningDispatcher(t)
	defer cancel()

	if _, err := d.Execute("prefix newname"); err == nil {
		t.Fatalf("expected prefix to be refused while an output file is open")
	}
}

func TestExecuteMCAUsage(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Execute("mca"); err == nil {
		t.Fatalf("expected a usage error")
	}
	if _, err := d.Execute("mca root inf cal"); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func TestRunReadsUntilQuit(t *testing.T) {
	dir := t.TempDir()
	f := gwfake.New(1)
	sk := sink.New(sink.FormatPLD)
	var bbuf bytes.Buffer
	bc := broadcast.New(&bbuf)
	ctl := daqctl.NewController(f, sk, bc, stats.New(), 5, 1, "run", dir, "a test")

	term := &fakeTerminal{lines: []string{"status", "quit"}}
	d := New(ctl, term)
	var out bytes.Buffer
	d.out = &out

	if err := d.Run(); err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if got, want := len(term.history), 2; got != want {
		t.Fatalf("invalid history length: got=%d, want=%d", got, want)
	}
}
