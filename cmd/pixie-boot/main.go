// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-boot (re)starts the pixie-ctl process and, optionally,
// monitors its resource usage.
package main // import "github.com/go-lpc/pixie16/cmd/pixie-boot"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sbinet/pmon"
)

func main() {
	var (
		bin    = flag.String("bin", "pixie-ctl", "path to the pixie-ctl binary")
		args   = flag.String("args", "", "extra arguments to pass to pixie-ctl, space separated")
		dir    = flag.String("log-dir", "/var/log/pixie16", "directory for stdout/stderr and pmon logs")
		doMon  = flag.Bool("pmon", false, "enable pmon resource monitoring")
		doFreq = flag.Duration("freq", 1*time.Second, "pmon sampling frequency")
	)
	flag.Parse()

	log.SetPrefix("pixie-boot: ")
	log.SetFlags(0)

	stop := make(chan os.Signal, 1)
	if err := run(*bin, splitArgs(*args), *dir, *doMon, *doFreq, stop); err != nil {
		log.Fatalf("%+v", err)
	}
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func run(bin string, args []string, dir string, doMon bool, freq time.Duration, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	killExisting := exec.Command("killall", filepath.Base(bin))
	killExisting.Stdout = os.Stdout
	killExisting.Stderr = os.Stderr
	if err := killExisting.Run(); err != nil {
		log.Printf("could not kill pre-existing %q: %+v", bin, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create log directory %q: %w", dir, err)
	}

	out, err := os.Create(filepath.Join(dir, "pixie-ctl.log"))
	if err != nil {
		return fmt.Errorf("could not create log file: %w", err)
	}
	defer out.Close()

	cmd := exec.Command(bin, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = os.Stdin

	log.Printf("starting %q...", bin)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start %q: %w", bin, err)
	}

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", bin, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, "pixie-ctl-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("running pmon...")
			if err := p.Run(); err != nil {
				log.Printf("could not monitor %q: %+v", bin, err)
			}
		}()
		defer func() {
			if err := p.Kill(); err != nil {
				log.Printf("could not stop monitoring %q: %+v", bin, err)
			}
		}()
	}

	errch := make(chan error, 1)
	go func() { errch <- cmd.Wait() }()

	select {
	case <-stop:
		log.Printf("received interrupt, stopping %q...", bin)
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return fmt.Errorf("could not signal %q: %w", bin, err)
		}
		return <-errch
	case err := <-errch:
		if err != nil {
			return fmt.Errorf("%q exited: %w", bin, err)
		}
		return nil
	}
}
