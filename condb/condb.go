// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package condb persists and retrieves DSP parameter sets (module- and
// channel-scoped) from a MySQL condition database, so a crate can be
// reconfigured from a known-good parameter set rather than the
// plain-text dump files alone.
package condb // import "github.com/go-lpc/pixie16/condb"

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DB wraps a condition-database connection.
type DB struct {
	msg *log.Logger
	db  *sql.DB
}

// Open connects to the named condition database and verifies
// reachability with a bounded ping.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open("mysql", dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("condb: could not open %q: %w", dbname, err)
	}

	cdb := &DB{
		msg: log.New(os.Stdout, "condb: ", 0),
		db:  db,
	}

	if err := cdb.ping(context.Background(), dbname); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cdb, nil
}

func dsn(dbname string) string {
	user := os.Getenv("PIXIE_DB_USER")
	pass := os.Getenv("PIXIE_DB_PASSWORD")
	addr := os.Getenv("PIXIE_DB_ADDR")
	if addr == "" {
		addr = "127.0.0.1:3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", user, pass, addr, dbname)
}

func (cdb *DB) ping(ctx context.Context, dbname string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cdb.db.PingContext(ctx); err != nil {
		return fmt.Errorf("condb: could not reach database %q: %w", dbname, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (cdb *DB) Close() error {
	return cdb.db.Close()
}

// ModuleParam is one module-scoped DSP parameter.
type ModuleParam struct {
	Module int
	Name   string
	Value  uint32
}

// ChannelParam is one channel-scoped DSP parameter.
type ChannelParam struct {
	Module  int
	Channel int
	Name    string
	Value   float64
}

// LastModuleParams returns every saved module-scoped parameter row for
// module m, most recently saved first.
func (cdb *DB) LastModuleParams(ctx context.Context, m int) ([]ModuleParam, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := cdb.db.QueryContext(ctx, `
		SELECT module, name, value FROM module_params
		WHERE module = ? ORDER BY saved_at DESC
	`, m)
	if err != nil {
		return nil, fmt.Errorf("condb: could not query module params for module=%d: %w", m, err)
	}
	defer rows.Close()

	var out []ModuleParam
	for rows.Next() {
		var p ModuleParam
		if err := rows.Scan(&p.Module, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("condb: could not scan module param row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("condb: error iterating module param rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("condb: context error after module params query: %w", err)
	}

	return out, nil
}

// LastChannelParams returns every saved channel-scoped parameter row for
// module m, most recently saved first.
func (cdb *DB) LastChannelParams(ctx context.Context, m int) ([]ChannelParam, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := cdb.db.QueryContext(ctx, `
		SELECT module, channel, name, value FROM channel_params
		WHERE module = ? ORDER BY saved_at DESC
	`, m)
	if err != nil {
		return nil, fmt.Errorf("condb: could not query channel params for module=%d: %w", m, err)
	}
	defer rows.Close()

	var out []ChannelParam
	for rows.Next() {
		var p ChannelParam
		if err := rows.Scan(&p.Module, &p.Channel, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("condb: could not scan channel param row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("condb: error iterating channel param rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("condb: context error after channel params query: %w", err)
	}

	return out, nil
}

// SaveModuleParam persists one module-scoped DSP parameter.
func (cdb *DB) SaveModuleParam(ctx context.Context, p ModuleParam) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := cdb.db.ExecContext(ctx, `
		INSERT INTO module_params (module, name, value, saved_at) VALUES (?, ?, ?, NOW())
	`, p.Module, p.Name, p.Value)
	if err != nil {
		return fmt.Errorf("condb: could not save module param %q for module=%d: %w", p.Name, p.Module, err)
	}
	return nil
}
