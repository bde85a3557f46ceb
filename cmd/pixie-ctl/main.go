// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-ctl is the interactive operator console for a PIXIE-16
// crate: it boots the crate, drives acquisition and MCA runs, and
// broadcasts live spill data to a subscriber.
package main // import "github.com/go-lpc/pixie16/cmd/pixie-ctl"

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-lpc/pixie16/broadcast"
	"github.com/go-lpc/pixie16/daqctl"
	"github.com/go-lpc/pixie16/dispatch"
	"github.com/go-lpc/pixie16/gw"
	"github.com/go-lpc/pixie16/sink"
	"github.com/go-lpc/pixie16/stats"
)

func main() {
	var (
		cfgPath = flag.String("config", "/etc/pixie16/pixie.cfg", "YAML hardware configuration file")
		bcast   = flag.String("bcast-addr", ":9991", "[ip]:port to dial the broadcast subscriber on")
		prefix  = flag.String("prefix", "run", "output file prefix")
		dir     = flag.String("dir", "/home/root/run", "output directory")
		title   = flag.String("title", "", "run title")
		oform   = flag.Int("oform", 0, "output format (0=pld, 1, 2)")
		hist    = flag.String("history", filepath.Join(os.TempDir(), "pixie-ctl.history"), "command history file")
	)
	flag.Parse()

	log.SetPrefix("pixie-ctl: ")
	log.SetFlags(0)

	if err := run(*cfgPath, *bcast, *prefix, *dir, *title, *oform, *hist); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(cfgPath, bcastAddr, prefix, dir, title string, oform int, histFile string) error {
	opts, err := gw.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	dev, err := gw.New(opts...)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.DiscoverSlots(); err != nil {
		return err
	}
	if err := dev.Boot(gw.BootFull); err != nil {
		return err
	}

	conn, err := net.Dial("udp", bcastAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sk := sink.New(sink.OutputFormat(oform))
	bc := broadcast.New(conn)
	st := stats.New()

	ctl := daqctl.NewController(dev, sk, bc, st, 1024, 8, prefix, dir, title)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		ctl.Mailbox() <- daqctl.ReqKill{}
	}()

	errch := make(chan error, 1)
	go func() { errch <- ctl.Run(ctx) }()

	term := dispatch.NewTerminal(histFile, "pixie16> ")
	defer term.Close()

	disp := dispatch.New(ctl, term)
	if err := disp.Run(); err != nil {
		return err
	}

	cancel()
	return <-errch
}
