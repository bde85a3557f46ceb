// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-lpc/pixie16/stats"
)

func (d *Dispatcher) pread(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("dispatch: usage: pread <module> <name>")
	}
	if err := d.rejectIfRunning(); err != nil {
		return err
	}
	m, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("dispatch: invalid module %q: %w", args[0], err)
	}
	v, err := d.ctl.Gateway().ReadModuleParam(m, args[1])
	if err != nil {
		return fmt.Errorf("dispatch: could not read %s on module %d: %w", args[1], m, err)
	}
	fmt.Fprintf(d.out, "%s[%d] = %d\n", args[1], m, v)
	return nil
}

func (d *Dispatcher) pwrite(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("dispatch: usage: pwrite <module> <name> <value>")
	}
	if err := d.rejectIfRunning(); err != nil {
		return err
	}
	m, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("dispatch: invalid module %q: %w", args[0], err)
	}
	v, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("dispatch: invalid value %q: %w", args[2], err)
	}
	if err := d.ctl.Gateway().WriteModuleParam(m, args[1], uint32(v)); err != nil {
		return fmt.Errorf("dispatch: could not write %s on module %d: %w", args[1], m, err)
	}
	return nil
}

func (d *Dispatcher) pmread(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("dispatch: usage: pmread <module> <channel> <name>")
	}
	if err := d.rejectIfRunning(); err != nil {
		return err
	}
	m, ch, err := parseModChan(args[0], args[1])
	if err != nil {
		return err
	}
	v, err := d.ctl.Gateway().ReadChannelParam(m, ch, args[2])
	if err != nil {
		return fmt.Errorf("dispatch: could not read %s on module %d channel %d: %w", args[2], m, ch, err)
	}
	fmt.Fprintf(d.out, "%s[%d,%d] = %g\n", args[2], m, ch, v)
	return nil
}

func (d *Dispatcher) pmwrite(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("dispatch: usage: pmwrite <module> <channel> <name> <value>")
	}
	if err := d.rejectIfRunning(); err != nil {
		return err
	}
	m, ch, err := parseModChan(args[0], args[1])
	if err != nil {
		return err
	}
	v, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("dispatch: invalid value %q: %w", args[3], err)
	}
	if err := d.ctl.Gateway().WriteChannelParam(m, ch, args[2], v); err != nil {
		return fmt.Errorf("dispatch: could not write %s on module %d channel %d: %w", args[2], m, ch, err)
	}
	return nil
}

func (d *Dispatcher) dump(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("dispatch: usage: dump <path>")
	}
	if err := d.rejectIfRunning(); err != nil {
		return err
	}
	if err := d.ctl.Gateway().SaveDSPParameters(args[0]); err != nil {
		return fmt.Errorf("dispatch: could not dump DSP parameters: %w", err)
	}
	fmt.Fprintf(d.out, "dumped DSP parameters to %q\n", args[0])
	return nil
}

func (d *Dispatcher) stats(args []string) error {
	totals := d.ctl.Stats().Snapshot()
	fmt.Fprintf(d.out, "spills=%d errors=%d elapsed=%v bytes=%s rate=%s/s\n",
		totals.Spills, totals.Errors, totals.Elapsed.Truncate(time.Second),
		humanBytes(totals.BytesWritten), humanBytes(int64(totals.Rate())),
	)
	for m, chans := range totals.EventsByChan {
		for ch, n := range chans {
			fmt.Fprintf(d.out, "  mod=%d chan=%d events=%d\n", m, ch, n)
		}
	}

	if len(args) == 1 {
		if args[0] == "reset" {
			d.ctl.Stats().Reset()
		}
	}
	return nil
}

func parseModChan(modArg, chArg string) (int, int, error) {
	m, err := strconv.Atoi(modArg)
	if err != nil {
		return 0, 0, fmt.Errorf("dispatch: invalid module %q: %w", modArg, err)
	}
	ch, err := strconv.Atoi(chArg)
	if err != nil {
		return 0, 0, fmt.Errorf("dispatch: invalid channel %q: %w", chArg, err)
	}
	return m, ch, nil
}

func humanBytes(n int64) string { return stats.HumanReadable(n) }

func pixieVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "pixie16: (unknown version)"
	}
	return fmt.Sprintf("pixie16: %s", info.Main.Version)
}
