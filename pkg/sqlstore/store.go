// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package sqlstore implements nestedset.BoundStore on database/sql.
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are supported. Bulk bound
// rewrites are single CASE updates and validation runs as aggregate queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the pure-Go sqlite driver

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// Compile-time contract assertions.
var (
	_ nestedset.BoundStore    = (*Store)(nil)
	_ nestedset.Tx            = (*sqlTx)(nil)
	_ nestedset.BulkValidator = (*sqlTx)(nil)
)

// Options configures a Store.
type Options struct {
	Columns     Columns
	ScopeFields []string // scope columns, in scope order
}

// Store is a nestedset.BoundStore over one SQL table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	cols    Columns
	scope   []string
}

// Open connects to dsn with the named driver ("sqlite" or "pgx") and wraps it.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Driver, err)
	}
	if dialect.singleWriter {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Driver, err)
	}

	s, err := New(db, dialect, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already open database.
func New(db *sql.DB, dialect Dialect, opts Options) (*Store, error) {
	cols := opts.Columns.withDefaults()
	if err := cols.validate(opts.ScopeFields); err != nil {
		return nil, err
	}
	return &Store{db: db, dialect: dialect, cols: cols, scope: opts.ScopeFields}, nil
}

// DB exposes the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	c := s.cols
	var scopeDefs, scopeIdx string
	for _, f := range s.scope {
		scopeDefs += fmt.Sprintf(",\n\t%s TEXT NOT NULL DEFAULT ''", f)
		scopeIdx += f + ", "
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s TEXT NULL,
	%s BIGINT NULL,
	%s BIGINT NULL,
	%s INTEGER NOT NULL DEFAULT 0,
	%s TEXT NULL,
	%s BIGINT NULL%s
)`, c.Table, c.ID, c.Parent, c.Left, c.Right, c.Depth, c.Attrs, c.DeletedAt, scopeDefs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s%s)`, c.Table, c.Left, c.Table, scopeIdx, c.Left),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s%s)`, c.Table, c.Right, c.Table, scopeIdx, c.Right),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s)`, c.Table, c.Parent, c.Table, c.Parent),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Transaction runs fn in one read-write transaction.
func (s *Store) Transaction(ctx context.Context, fn func(nestedset.Tx) error) error {
	return s.run(ctx, nil, fn)
}

// View runs fn in one read-only transaction.
func (s *Store) View(ctx context.Context, fn func(nestedset.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect.readOnlyTx {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	return s.run(ctx, opts, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(nestedset.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{s: s, tx: tx, ctx: ctx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	committed = true
	return nil
}

// columnList is the projection every node query selects.
func (s *Store) columnList(alias string) string {
	c := s.cols
	names := append([]string{c.ID, c.Parent, c.Left, c.Right, c.Depth, c.Attrs, c.DeletedAt}, s.scope...)
	if alias != "" {
		for i := range names {
			names[i] = alias + "." + names[i]
		}
	}
	return strings.Join(names, ", ")
}

// scopeFilter returns the predicate selecting one scope partition.
func (s *Store) scopeFilter(alias string, scope nestedset.Scope) (string, []any, error) {
	if len(scope) != len(s.scope) {
		return "", nil, fmt.Errorf("scope %s does not match configured scope fields %v", scope, s.scope)
	}
	if len(s.scope) == 0 {
		return "1 = 1", nil, nil
	}
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	parts := make([]string, len(s.scope))
	args := make([]any, len(s.scope))
	for i, name := range s.scope {
		value, ok := scope.Value(name)
		if !ok {
			return "", nil, fmt.Errorf("scope %s is missing field %q", scope, name)
		}
		parts[i] = prefix + name + " = ?"
		args[i] = value
	}
	return strings.Join(parts, " AND "), args, nil
}

// scopeJoin matches the scope columns of two aliases.
func (s *Store) scopeJoin(a, b string) string {
	if len(s.scope) == 0 {
		return "1 = 1"
	}
	parts := make([]string, len(s.scope))
	for i, name := range s.scope {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", a, name, b, name)
	}
	return strings.Join(parts, " AND ")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
