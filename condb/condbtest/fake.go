// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package condbtest registers an in-memory fake SQL driver so condb's
// query methods can be exercised without a live MySQL server.
package condbtest // import "github.com/go-lpc/pixie16/condb/condbtest"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var script struct {
	mu   sync.Mutex
	rows Rows
}

// Run installs rows as the result of the next query executed by f, then
// runs f. Queries are served one at a time: concurrent use of the fake
// driver across tests is not supported.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	script.mu.Lock()
	defer script.mu.Unlock()
	script.rows = rows

	return f(ctx)
}

func init() {
	sql.Register("condbtest", &Driver{})
}

// Driver is a driver.Driver that always returns the rows scripted via
// Run, regardless of the query text.
type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &conn{}, nil
}

type conn struct{}

func (c *conn) Prepare(query string) (driver.Stmt, error) { return &stmt{}, nil }
func (c *conn) Close() error                               { return nil }
func (c *conn) Begin() (driver.Tx, error)                   { return nil, errNotImplemented }

type stmt struct{}

func (s *stmt) Close() error     { return nil }
func (s *stmt) NumInput() int    { return -1 }
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return &script.rows, nil
}

// Rows is a scripted result set.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string { return rows.Names }
func (rows *Rows) Close() error      { return nil }

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errNotImplemented = errString("condbtest: Begin is not implemented")

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*conn)(nil)
	_ driver.Stmt   = (*stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
