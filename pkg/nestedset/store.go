// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"context"
	"time"
)

// BoundStore is the persistence and transaction boundary the engine drives.
type BoundStore interface {
	// Transaction runs fn in a read-write transaction. It commits when fn
	// returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a store transaction.
//
// Every scope-level method only sees live rows; soft-deleted rows are
// reachable through Find and TrashedDescendants alone. Methods returning
// several nodes may return them in any order.
type Tx interface {
	// Find returns the node with the given id, live or soft-deleted.
	// It returns ErrNodeNotFound when no such row exists.
	Find(id string) (*Node, error)

	// Scopes lists every scope that holds at least one live row.
	Scopes() ([]Scope, error)

	// Nodes returns every live row of a scope.
	Nodes(scope Scope) ([]*Node, error)

	// FindByParent returns the live children of parentID; "" returns the roots.
	FindByParent(scope Scope, parentID string) ([]*Node, error)

	// Descendants returns live rows with left > left and right < right.
	Descendants(scope Scope, left, right int64) ([]*Node, error)

	// TrashedDescendants returns soft-deleted rows with left > left and right < right.
	TrashedDescendants(scope Scope, left, right int64) ([]*Node, error)

	// MaxRight returns the largest live right bound in scope, or 0.
	MaxRight(scope Scope) (int64, error)

	// LockRange locks, for the rest of the transaction, every live row whose
	// left or right bound lies in [lo, hi].
	LockRange(scope Scope, lo, hi int64) error

	// BulkShift applies s to every live row whose left or right bound lies in
	// [s.A, s.D] and rewrites the parent of s.NodeID. It returns the row count.
	BulkShift(scope Scope, s Shift) (int, error)

	// ShiftFrom adds delta to every live bound >= from. It returns the row count.
	ShiftFrom(scope Scope, from, delta int64) (int, error)

	// ShiftDepth adds delta to the depth of every live row strictly inside
	// (left, right). It returns the row count.
	ShiftDepth(scope Scope, left, right int64, delta int) (int, error)

	// Save inserts or replaces a row.
	Save(scope Scope, n *Node) error

	// Delete removes rows permanently.
	Delete(scope Scope, ids []string) error

	// SoftDelete marks rows deleted at the given instant.
	SoftDelete(scope Scope, ids []string, at time.Time) error

	// Restore clears the deletion mark of rows.
	Restore(scope Scope, ids []string) error
}

// Shift is the closed-form interval transform used by Move. With the four
// edges sorted so that A <= B < C <= D, bounds in [A, B] move by D-B, bounds
// in [C, D] move by A-C and every other bound is unchanged. NodeID is the only
// row whose parent is rewritten, to ParentID ("" makes it a root).
type Shift struct {
	A, B, C, D int64
	NodeID     string
	ParentID   string
}

// Apply maps one bound through the transform.
func (s Shift) Apply(v int64) int64 {
	switch {
	case v >= s.A && v <= s.B:
		return v + s.D - s.B
	case v >= s.C && v <= s.D:
		return v + s.A - s.C
	default:
		return v
	}
}

// Touches reports whether a row with the given bounds is affected by the shift.
func (s Shift) Touches(left, right int64) bool {
	return (left >= s.A && left <= s.D) || (right >= s.A && right <= s.D)
}

// BulkValidator may be implemented by a Tx that can evaluate the validity
// checks as aggregate queries. The engine falls back to in-memory grouping
// over Nodes otherwise.
type BulkValidator interface {
	// BoundViolations returns ids of live rows with null or inverted bounds,
	// or whose interval is not strictly inside their live parent's.
	BoundViolations() ([]string, error)

	// DuplicateBounds returns ids of live rows sharing a left or right bound
	// with another live row of the same scope.
	DuplicateBounds() ([]string, error)

	// RootsByScope returns the live roots of every scope, each ordered by left.
	RootsByScope() (map[string][]*Node, error)
}
