// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gw

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// config holds the crate topology and tunables consumed at construction
// time, either from a pixie.cfg file via LoadConfig or from functional
// options passed to New.
type config struct {
	devmem string

	slots     []int  // backplane slot per module index
	threshWords uint32 // drain threshold, in words, per module

	pollTries int
}

func newConfig() config {
	return config{
		devmem:      "/dev/mem",
		pollTries:   100,
		threshWords: 1024,
	}
}

// Option configures a Device at construction time.
type Option func(*config)

// WithDevMem overrides the path to the memory-mapped device file used to
// reach the crate's registers.
func WithDevMem(path string) Option {
	return func(cfg *config) { cfg.devmem = path }
}

// WithSlots sets the backplane slot assigned to each module, in module
// order.
func WithSlots(slots []int) Option {
	return func(cfg *config) {
		cfg.slots = append([]int(nil), slots...)
	}
}

// WithThreshold records the per-module FIFO drain threshold, in words, in
// the Device's configuration. The spill assembler does not read it: its
// threshold is the one passed to daqctl.NewController.
func WithThreshold(words uint32) Option {
	return func(cfg *config) { cfg.threshWords = words }
}

// WithPollTries records, in the Device's configuration, how many polling
// cycles a threshold wait performs before giving up on a drain. The
// spill assembler does not read it: its poll count is the one passed to
// daqctl.NewController.
func WithPollTries(n int) Option {
	return func(cfg *config) { cfg.pollTries = n }
}

// fileConfig mirrors the on-disk layout of pixie.cfg.
type fileConfig struct {
	DevMem    string `yaml:"dev_mem"`
	Slots     []int  `yaml:"slots"`
	Threshold uint32 `yaml:"threshold_words"`
	PollTries int    `yaml:"poll_tries"`
}

// LoadConfig reads a pixie.cfg YAML file describing the crate topology
// (module-to-slot map, FIFO drain threshold, poll tries) and returns the
// Options needed to reproduce it at construction time.
func LoadConfig(path string) ([]Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gw: could not read config %q: %w", path, err)
	}

	var fc fileConfig
	err = yaml.Unmarshal(raw, &fc)
	if err != nil {
		return nil, fmt.Errorf("gw: could not parse config %q: %w", path, err)
	}

	var opts []Option
	if fc.DevMem != "" {
		opts = append(opts, WithDevMem(fc.DevMem))
	}
	if len(fc.Slots) > 0 {
		opts = append(opts, WithSlots(fc.Slots))
	}
	if fc.Threshold > 0 {
		opts = append(opts, WithThreshold(fc.Threshold))
	}
	if fc.PollTries > 0 {
		opts = append(opts, WithPollTries(fc.PollTries))
	}
	return opts, nil
}
