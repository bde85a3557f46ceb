// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package condb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log"
	"os"
	"testing"

	"github.com/go-lpc/pixie16/condb/condbtest"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	sqldb, err := sql.Open("condbtest", "")
	if err != nil {
		t.Fatalf("could not open fake db: %+v", err)
	}
	return &DB{msg: log.New(os.Stdout, "condb: ", 0), db: sqldb}
}

func TestLastModuleParams(t *testing.T) {
	cdb := newTestDB(t)
	defer cdb.Close()

	rows := condbtest.Rows{
		Names: []string{"module", "name", "value"},
		Values: [][]driver.Value{
			{int64(0), "THRESHOLD", int64(1024)},
			{int64(0), "RSHAPER", int64(4)},
		},
	}

	var got []ModuleParam
	err := condbtest.Run(context.Background(), rows, func(ctx context.Context) error {
		var err error
		got, err = cdb.LastModuleParams(ctx, 0)
		return err
	})
	if err != nil {
		t.Fatalf("could not query module params: %+v", err)
	}

	if got, want := len(got), 2; got != want {
		t.Fatalf("invalid row count: got=%d, want=%d", got, want)
	}
	if got, want := got[0].Name, "THRESHOLD"; got != want {
		t.Fatalf("invalid param name: got=%q, want=%q", got, want)
	}
}

func TestLastChannelParams(t *testing.T) {
	cdb := newTestDB(t)
	defer cdb.Close()

	rows := condbtest.Rows{
		Names: []string{"module", "channel", "name", "value"},
		Values: [][]driver.Value{
			{int64(0), int64(3), "GAIN", float64(1.5)},
		},
	}

	var got []ChannelParam
	err := condbtest.Run(context.Background(), rows, func(ctx context.Context) error {
		var err error
		got, err = cdb.LastChannelParams(ctx, 0)
		return err
	})
	if err != nil {
		t.Fatalf("could not query channel params: %+v", err)
	}
	if got, want := len(got), 1; got != want {
		t.Fatalf("invalid row count: got=%d, want=%d", got, want)
	}
	if got, want := got[0].Channel, 3; got != want {
		t.Fatalf("invalid channel: got=%d, want=%d", got, want)
	}
}
