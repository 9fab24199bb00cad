// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/bolt"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/config"
)

// newLogger builds the process logger. With the bolt backend every record is
// also persisted into the LOGS buckets through the write buffer.
func (s *Store) newLogger(w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(s.cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var stream slog.Handler
	if s.cfg.Log.Format == "json" {
		stream = slog.NewJSONHandler(w, handlerOpts)
	} else {
		stream = slog.NewTextHandler(w, handlerOpts)
	}

	if s.logs == nil {
		return slog.New(stream), nil
	}
	return slog.New(teeHandler{stream, bolt.NewLogHandler(s.logs, level)}), nil
}

// teeHandler forwards every record to each handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// QueryLogs returns persisted log records, oldest first. An empty level
// returns every level; limit <= 0 means no limit and otherwise keeps the
// newest entries.
func (s *Store) QueryLogs(level string, limit int) ([]*bolt.LogEntry, error) {
	if s.boltDB == nil {
		return nil, errors.New("persisted logs are only kept by the bolt backend")
	}
	if err := s.Barrier(); err != nil {
		return nil, err
	}

	var (
		entries []*bolt.LogEntry
		err     error
	)
	if level == "" {
		entries, err = bolt.GetAllLogs(s.boltDB)
	} else {
		entries, err = bolt.GetLogsByLevel(s.boltDB, level)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
