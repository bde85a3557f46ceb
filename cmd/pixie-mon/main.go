// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pixie-mon watches a run directory for stalled output files —
// a .pld file that stops growing usually means the acquisition wedged —
// and mails an alert when one is found.
package main // import "github.com/go-lpc/pixie16/cmd/pixie-mon"

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		dir  = flag.String("dir", "/home/root/run", "run directory to monitor")
		glob = flag.String("glob", "*.pld*", "glob pattern for output files")
		freq = flag.Duration("freq", 30*time.Second, "polling interval")
	)
	flag.Parse()

	log.SetPrefix("pixie-mon: ")
	log.SetFlags(0)

	mon := newMonitor(*dir, *glob, *freq)
	mon.run()
}

type monitor struct {
	dir    string
	glob   string
	freq   time.Duration
	alerts map[string]int
}

func newMonitor(dir, glob string, freq time.Duration) *monitor {
	return &monitor{dir: dir, glob: glob, freq: freq, alerts: make(map[string]int)}
}

func (m *monitor) run() {
	tick := time.NewTicker(m.freq)
	defer tick.Stop()

	table, err := m.list()
	if err != nil {
		log.Printf("could not list files: %+v", err)
	}

	for range tick.C {
		cur, err := m.list()
		if err != nil {
			log.Printf("could not list files: %+v", err)
			continue
		}
		m.compare(table, cur)
		table = cur
	}
}

func (m *monitor) list() (map[string]int64, error) {
	table := make(map[string]int64)
	glob := filepath.Join(m.dir, m.glob)
	files, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("could not glob %q: %w", glob, err)
	}
	for _, fname := range files {
		fi, err := os.Stat(fname)
		if err != nil {
			return nil, fmt.Errorf("could not stat %q: %w", fname, err)
		}
		table[fname] = fi.Size()
	}
	return table, nil
}

func (m *monitor) compare(ref, cur map[string]int64) {
	for fname, size := range cur {
		refsz, ok := ref[fname]
		if !ok {
			// file just appeared; nothing to compare against yet.
			continue
		}
		if refsz == size {
			m.alert(fname, size)
		} else {
			delete(m.alerts, fname)
		}
	}
}

func (m *monitor) alert(fname string, size int64) {
	log.Printf("file %q did not grow in the last %v (size=%d bytes)", fname, m.freq, size)
	m.alerts[fname]++

	const maxAlerts = 5
	if m.alerts[fname] < maxAlerts {
		m.alertMail(fname, size)
	}
}

var (
	alertMailUsr  = os.Getenv("PIXIE_MAIL_USERNAME")
	alertMailPwd  = os.Getenv("PIXIE_MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("PIXIE_MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("PIXIE_MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("PIXIE_MAIL_TGTS"), ",")
)

func (m *monitor) alertMail(fname string, size int64) {
	if alertMailUsr == "" || alertMailPwd == "" || alertMailSrv == "" ||
		alertMailPort == 0 || len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[pixie-mon] stalled output file: %q", fname))
	msg.SetBody("text/plain", fmt.Sprintf("file: %q\nsize: %d bytes\npolling interval: %v", fname, size, m.freq))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	if err := dial.DialAndSend(msg); err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
