// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats accumulates wall time, byte counts and per-(module,
// channel) event counts across a run, and renders them in the
// human-readable form the status line and the "stats" command print.
package stats // import "github.com/go-lpc/pixie16/stats"

import (
	"fmt"
	"sync"
	"time"
)

// chanKey identifies one (module, channel) pair.
type chanKey struct {
	mod int
	ch  int
}

// Aggregator accumulates totals across a run. Safe for concurrent use:
// the spill assembler reports from T_run while the command dispatcher
// may read totals from T_cmd for the "stats"/"status" commands.
type Aggregator struct {
	mu sync.Mutex

	startTime time.Time
	elapsed   time.Duration

	bytesWritten int64
	spills       int64
	errors       int64

	events map[chanKey]int64
}

// New returns a zeroed Aggregator.
func New() *Aggregator {
	return &Aggregator{events: make(map[chanKey]int64)}
}

// Reset zeroes every counter and starts the wall clock over.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.startTime = time.Now()
	a.elapsed = 0
	a.bytesWritten = 0
	a.spills = 0
	a.errors = 0
	a.events = make(map[chanKey]int64)
}

// AddEvent records one non-virtual event of sizeBytes seen on module m,
// channel ch.
func (a *Aggregator) AddEvent(m, ch int, sizeBytes int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events[chanKey{m, ch}]++
	a.bytesWritten += int64(sizeBytes)
}

// AddSpill records the completion of one spill, taking dur to drain.
func (a *Aggregator) AddSpill(dur time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.spills++
	a.elapsed += dur
}

// AddError increments the error counter, independently of had_error's
// run-level latch.
func (a *Aggregator) AddError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors++
}

// Totals is an immutable snapshot of the aggregator's counters.
type Totals struct {
	Elapsed      time.Duration
	BytesWritten int64
	Spills       int64
	Errors       int64
	EventsByChan map[int]map[int]int64 // module -> channel -> count
}

// Snapshot returns the current totals.
func (a *Aggregator) Snapshot() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := Totals{
		Elapsed:      a.elapsed,
		BytesWritten: a.bytesWritten,
		Spills:       a.spills,
		Errors:       a.errors,
		EventsByChan: make(map[int]map[int]int64),
	}
	for k, n := range a.events {
		if t.EventsByChan[k.mod] == nil {
			t.EventsByChan[k.mod] = make(map[int]int64)
		}
		t.EventsByChan[k.mod][k.ch] = n
	}
	return t
}

// Rate returns the average throughput in bytes per second over elapsed
// wall time. Zero if no time has elapsed yet.
func (t Totals) Rate() float64 {
	secs := t.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(t.BytesWritten) / secs
}

// HumanReadable formats n bytes with a binary-prefix suffix (B, KB, MB,
// GB), mirroring the original control program's byte-count formatting.
func HumanReadable(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
