// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Tree is the index-maintenance engine for one tree type.
// It is safe for concurrent use; concurrency control is delegated to the store.
type Tree struct {
	store    BoundStore
	cfg      Config
	log      *slog.Logger
	listener Listener
	now      func() time.Time
}

// New builds an engine over store for the tree type described by cfg.
func New(store BoundStore, cfg Config) *Tree {
	t := &Tree{
		store:    store,
		cfg:      cfg,
		log:      cfg.Logger,
		listener: cfg.Listener,
		now:      time.Now,
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	if t.listener == nil {
		t.listener = nopListener{}
	}
	return t
}

// Config returns the configuration the engine was built with.
func (t *Tree) Config() Config {
	return t.cfg
}

// ScopeOf derives the scope tuple of a node.
func (t *Tree) ScopeOf(n *Node) Scope {
	return t.cfg.ScopeOf(n)
}

// txn carries one engine operation through a store transaction.
type txn struct {
	Tx
	t       *Tree
	ctx     context.Context
	op      string
	moved   []*Node // notified after commit
	shifted int
	checked bool // tree validated once in this transaction
}

// update runs fn inside one read-write transaction. Moved notifications are
// delivered only after the transaction commits.
func (t *Tree) update(ctx context.Context, op string, fn func(x *txn) error, attrs ...attribute.KeyValue) error {
	ctx, finish := startOp(ctx, op, attrs...)
	var x *txn
	err := t.store.Transaction(ctx, func(tx Tx) error {
		x = &txn{Tx: tx, t: t, ctx: ctx, op: op}
		return fn(x)
	})
	err = persistenceFailure(op, err)
	finish(err)
	if err != nil {
		t.log.DebugContext(ctx, "nested set operation failed", "op", op, "error", err)
		return err
	}

	rowsShifted.WithLabelValues(op).Add(float64(x.shifted))
	for _, n := range x.moved {
		t.listener.Moved(ctx, n)
	}
	return nil
}

// view runs fn inside one read-only transaction.
func (t *Tree) view(ctx context.Context, op string, fn func(x *txn) error) error {
	err := t.store.View(ctx, func(tx Tx) error {
		return fn(&txn{Tx: tx, t: t, ctx: ctx, op: op})
	})
	return persistenceFailure(op, err)
}

// findLive returns a live node, or ErrNodeNotFound for missing and trashed rows.
func (x *txn) findLive(id string) (*Node, error) {
	if id == "" {
		return nil, ErrNodeNotFound
	}
	n, err := x.Find(id)
	if err != nil {
		return nil, err
	}
	if n.Trashed() {
		return nil, fmt.Errorf("%w: %s is deleted", ErrNodeNotFound, id)
	}
	return n, nil
}

// reload re-reads a node after bulk updates changed its bounds.
func (x *txn) reload(n *Node) (*Node, error) {
	fresh, err := x.Find(n.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload node %s: %w", n.ID, err)
	}
	return fresh, nil
}

// level counts ancestors by following parent links up to a root.
func (x *txn) level(n *Node) (int, error) {
	depth := 0
	seen := map[string]bool{n.ID: true}
	for parentID := n.ParentID; parentID != ""; {
		if seen[parentID] {
			return 0, fmt.Errorf("%w: parent cycle through %s", ErrInvalidTreeState, parentID)
		}
		seen[parentID] = true
		parent, err := x.Find(parentID)
		if err != nil {
			return 0, fmt.Errorf("failed to load ancestor %s of %s: %w", parentID, n.ID, err)
		}
		depth++
		parentID = parent.ParentID
	}
	return depth, nil
}

// setDepthWithSubtree recomputes the depth of n from its ancestor chain and
// moves every descendant by the same delta.
func (x *txn) setDepthWithSubtree(scope Scope, n *Node) (*Node, error) {
	newDepth, err := x.level(n)
	if err != nil {
		return nil, err
	}
	delta := newDepth - n.Depth
	if delta == 0 {
		return n, nil
	}

	n.Depth = newDepth
	if err := x.Save(scope, n); err != nil {
		return nil, fmt.Errorf("failed to save depth of %s: %w", n.ID, err)
	}
	if !n.IsLeaf() {
		rows, err := x.ShiftDepth(scope, n.Left, n.Right, delta)
		if err != nil {
			return nil, fmt.Errorf("failed to shift subtree depth of %s: %w", n.ID, err)
		}
		x.shifted += rows
	}
	return n, nil
}

// ensureValid enforces StrictChecks.
func (x *txn) ensureValid() error {
	if !x.t.cfg.StrictChecks || x.checked {
		return nil
	}
	report, err := x.validate()
	if err != nil {
		return err
	}
	if !report.Valid() {
		return fmt.Errorf("%w: failed checks %v", ErrInvalidTreeState, report.Failed())
	}
	x.checked = true
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}
