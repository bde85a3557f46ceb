// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatch

import (
	"os"
	"strings"

	"github.com/peterh/liner"
)

// paramNames feeds tab-completion for the pread/pwrite/pmread/pmwrite
// family of commands.
var paramNames = []string{
	"THRESHOLD", "RSHAPER", "TRIGGER_RISETIME", "TRIGGER_FLATTOP",
	"ENERGY_RISETIME", "ENERGY_FLATTOP", "TAU", "BINFACTOR",
	"CFD_DELAY", "CFD_SCALE", "CFD_THRESH", "PSA_START", "PSA_LENGTH",
}

var commandNames = []string{
	"run", "startacq", "stop", "stopacq", "acq", "shm", "hup", "spill",
	"close", "reboot", "mca", "quit", "exit", "kill", "prefix", "fdir",
	"title", "runnum", "oform", "debug", "quiet", "record",
	"pread", "pmread", "pwrite", "pmwrite", "dump", "adjust_offsets",
	"find_tau", "toggle", "toggle_bit", "csr_test", "bit_test",
	"status", "help", "version", "stats",
}

// lineTerminal is the real, interactive Terminal, backed by
// github.com/peterh/liner.
type lineTerminal struct {
	st      *liner.State
	history string
	prompt  string
}

var _ Terminal = (*lineTerminal)(nil)

// NewTerminal returns an interactive Terminal with history persisted at
// historyFile and tab-completion over command verbs and parameter
// names.
func NewTerminal(historyFile, prompt string) *lineTerminal {
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(completer)

	if f, err := os.Open(historyFile); err == nil {
		_, _ = st.ReadHistory(f)
		f.Close()
	}

	return &lineTerminal{st: st, history: historyFile, prompt: prompt}
}

func (t *lineTerminal) ReadLine() (string, error) {
	return t.st.Prompt(t.prompt)
}

func (t *lineTerminal) AppendHistory(line string) {
	t.st.AppendHistory(line)
}

func (t *lineTerminal) Close() error {
	if t.history != "" {
		if f, err := os.Create(t.history); err == nil {
			_, _ = t.st.WriteHistory(f)
			f.Close()
		}
	}
	return t.st.Close()
}

// completer offers command-verb completions, and parameter-name
// completions once the first token is one of the p{,m}{read,write}
// family.
func completer(line string) []string {
	fields := strings.Fields(line)

	switch len(fields) {
	case 0:
		return commandNames
	case 1:
		if strings.HasSuffix(line, " ") {
			break
		}
		return prefixed(commandNames, fields[0])
	}

	verb := strings.ToLower(fields[0])
	switch verb {
	case "pread", "pwrite", "pmread", "pmwrite":
		last := ""
		if !strings.HasSuffix(line, " ") {
			last = fields[len(fields)-1]
		}
		return prefixed(paramNames, last)
	}
	return nil
}

func prefixed(candidates []string, prefix string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), strings.ToLower(prefix)) {
			out = append(out, c)
		}
	}
	return out
}
