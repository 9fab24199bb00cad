// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package store opens the configured backend and builds the nested set engine
// over it. It owns every resource it opens and releases them in Close.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/bolt"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/bolt/buffer"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/config"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/sqlstore"
)

// Store bundles an open backend with the engine driving it.
type Store struct {
	cfg     config.Config
	tree    *nestedset.Tree
	backend nestedset.BoundStore
	log     *slog.Logger

	// Exactly one of these is set, depending on the driver.
	boltDB *bolt.DB
	sqlDB  *sqlstore.Store

	// logs queues persisted log records for the bolt backend.
	logs *buffer.Buffer
}

// Option customizes Open.
type Option func(*options)

type options struct {
	listener  nestedset.Listener
	logOutput io.Writer
}

// WithListener installs a moving/moved listener on the engine.
func WithListener(l nestedset.Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithLogOutput redirects the process log stream. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// Open connects to the backend named by cfg and builds the engine.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{cfg: cfg}
	switch cfg.Driver {
	case config.DriverBolt:
		boltOpts := bolt.DefaultOptions()
		boltOpts.Path = cfg.Path
		db, err := bolt.Open(boltOpts)
		if err != nil {
			return nil, err
		}
		s.boltDB = db
		s.logs = buffer.New(db, buffer.DefaultConfig())
		s.backend = bolt.NewStore(db)

	default:
		db, err := sqlstore.Open(ctx, cfg.SQLDriver(), cfg.SQLDataSource(), sqlstore.Options{
			Columns:     cfg.Columns,
			ScopeFields: cfg.Tree.ScopeFields,
		})
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s.sqlDB = db
		s.backend = db
	}

	logger, err := s.newLogger(o.logOutput)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.log = logger

	s.tree = nestedset.New(s.backend, nestedset.Config{
		ScopeFields:  cfg.Tree.ScopeFields,
		OrderField:   cfg.Tree.OrderField,
		SoftDelete:   cfg.Tree.SoftDelete,
		StrictChecks: cfg.Tree.StrictChecks,
		Listener:     o.listener,
		Logger:       logger,
	})

	logger.Debug("store opened", "driver", cfg.Driver, "path", s.location())
	return s, nil
}

// Tree returns the engine.
func (s *Store) Tree() *nestedset.Tree {
	return s.tree
}

// Logger returns the logger the engine writes to.
func (s *Store) Logger() *slog.Logger {
	return s.log
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() config.Config {
	return s.cfg
}

// Bolt returns the bolt database, or nil for the sql backends.
func (s *Store) Bolt() *bolt.DB {
	return s.boltDB
}

// Barrier makes every queued log record durable. Tree mutations are durable
// when their call returns; only the log sink is deferred.
func (s *Store) Barrier() error {
	if s.logs == nil {
		return nil
	}
	if err := s.logs.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}
	return nil
}

// Close flushes queued log records and closes the backend. A temporary bolt
// database is removed.
func (s *Store) Close() error {
	var firstErr error
	if s.logs != nil {
		if err := s.logs.Stop(); err != nil {
			firstErr = fmt.Errorf("failed to flush log buffer: %w", err)
		}
		s.logs = nil
	}

	switch {
	case s.boltDB != nil:
		closeFn := s.boltDB.Close
		if s.cfg.Path == "" {
			closeFn = s.boltDB.Cleanup
		}
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.boltDB = nil
	case s.sqlDB != nil:
		if err := s.sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
		s.sqlDB = nil
	}
	return firstErr
}

func (s *Store) location() string {
	if s.boltDB != nil {
		return s.boltDB.Path()
	}
	if s.cfg.Driver == config.DriverPostgres {
		return "(dsn)"
	}
	return s.cfg.SQLDataSource()
}
