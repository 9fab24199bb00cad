// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// Store is a nestedset.BoundStore backed by BoltDB.
//
// BoltDB allows a single read-write transaction at a time, so every
// structural mutation is serialized as a whole and LockRange has nothing
// left to do. Read-only transactions run concurrently with it.
type Store struct {
	db *DB
}

// NewStore wraps an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DB returns the wrapped database.
func (s *Store) DB() *DB {
	return s.db
}

// Transaction runs fn in one read-write BoltDB transaction.
func (s *Store) Transaction(ctx context.Context, fn func(nestedset.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// View runs fn in one read-only BoltDB transaction.
func (s *Store) View(ctx context.Context, fn func(nestedset.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// boltTx implements nestedset.Tx over one bbolt transaction.
type boltTx struct {
	tx *bolt.Tx
}

func (b *boltTx) Find(id string) (*nestedset.Node, error) {
	n, _, err := GetNodeInTx(b.tx, id)
	return n, err
}

func (b *boltTx) Scopes() ([]nestedset.Scope, error) {
	var scopes []nestedset.Scope
	err := IterateScopeKeysInTx(b.tx, func(scopeKey string) error {
		live, err := HasLiveNodesInTx(b.tx, scopeKey)
		if err != nil || !live {
			return err
		}
		scope, err := nestedset.ParseScopeKey(scopeKey)
		if err != nil {
			return err
		}
		scopes = append(scopes, scope)
		return nil
	})
	return scopes, err
}

// collect gathers the live nodes of scope accepted by keep.
func (b *boltTx) collect(scope nestedset.Scope, keep func(n *nestedset.Node) bool) ([]*nestedset.Node, error) {
	var nodes []*nestedset.Node
	err := IterateLiveNodesInTx(b.tx, scope.Key(), func(n *nestedset.Node) error {
		if keep(n) {
			nodes = append(nodes, n)
		}
		return nil
	})
	return nodes, err
}

func (b *boltTx) Nodes(scope nestedset.Scope) ([]*nestedset.Node, error) {
	return b.collect(scope, func(*nestedset.Node) bool { return true })
}

func (b *boltTx) FindByParent(scope nestedset.Scope, parentID string) ([]*nestedset.Node, error) {
	return b.collect(scope, func(n *nestedset.Node) bool { return n.ParentID == parentID })
}

func (b *boltTx) Descendants(scope nestedset.Scope, left, right int64) ([]*nestedset.Node, error) {
	return b.collect(scope, func(n *nestedset.Node) bool { return n.Left > left && n.Right < right })
}

func (b *boltTx) TrashedDescendants(scope nestedset.Scope, left, right int64) ([]*nestedset.Node, error) {
	var nodes []*nestedset.Node
	err := IterateNodesInTx(b.tx, scope.Key(), func(n *nestedset.Node) error {
		if n.Trashed() && n.Left > left && n.Right < right {
			nodes = append(nodes, n)
		}
		return nil
	})
	return nodes, err
}

func (b *boltTx) MaxRight(scope nestedset.Scope) (int64, error) {
	var maxRight int64
	err := IterateLiveNodesInTx(b.tx, scope.Key(), func(n *nestedset.Node) error {
		maxRight = max(maxRight, n.Right)
		return nil
	})
	return maxRight, err
}

// LockRange is satisfied by BoltDB's single writer.
func (b *boltTx) LockRange(nestedset.Scope, int64, int64) error {
	if !b.tx.Writable() {
		return fmt.Errorf("cannot lock rows in a read-only transaction")
	}
	return nil
}

// rewrite applies change to every live node of scope and writes back the ones
// it reports as modified. Writes happen after the scan so the cursor never
// observes its own updates.
func (b *boltTx) rewrite(scope nestedset.Scope, change func(n *nestedset.Node) bool) (int, error) {
	var changed []*nestedset.Node
	err := IterateLiveNodesInTx(b.tx, scope.Key(), func(n *nestedset.Node) error {
		if change(n) {
			changed = append(changed, n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, n := range changed {
		if err := SetNodeInTx(b.tx, scope.Key(), n); err != nil {
			return 0, err
		}
	}
	return len(changed), nil
}

func (b *boltTx) BulkShift(scope nestedset.Scope, s nestedset.Shift) (int, error) {
	return b.rewrite(scope, func(n *nestedset.Node) bool {
		if !s.Touches(n.Left, n.Right) {
			return false
		}
		n.Left = s.Apply(n.Left)
		n.Right = s.Apply(n.Right)
		if n.ID == s.NodeID {
			n.ParentID = s.ParentID
		}
		return true
	})
}

func (b *boltTx) ShiftFrom(scope nestedset.Scope, from, delta int64) (int, error) {
	return b.rewrite(scope, func(n *nestedset.Node) bool {
		touched := false
		if n.Left >= from {
			n.Left += delta
			touched = true
		}
		if n.Right >= from {
			n.Right += delta
			touched = true
		}
		return touched
	})
}

func (b *boltTx) ShiftDepth(scope nestedset.Scope, left, right int64, delta int) (int, error) {
	return b.rewrite(scope, func(n *nestedset.Node) bool {
		if n.Left > left && n.Right < right {
			n.Depth += delta
			return true
		}
		return false
	})
}

func (b *boltTx) Save(scope nestedset.Scope, n *nestedset.Node) error {
	return SetNodeInTx(b.tx, scope.Key(), n)
}

func (b *boltTx) Delete(scope nestedset.Scope, ids []string) error {
	return BatchDeleteNodesInTx(b.tx, scope.Key(), ids)
}

func (b *boltTx) SoftDelete(scope nestedset.Scope, ids []string, at time.Time) error {
	return b.mark(scope, ids, &at)
}

func (b *boltTx) Restore(scope nestedset.Scope, ids []string) error {
	return b.mark(scope, ids, nil)
}

// mark sets or clears the deletion mark of the given nodes.
func (b *boltTx) mark(scope nestedset.Scope, ids []string, at *time.Time) error {
	for _, id := range ids {
		n, scopeKey, err := GetNodeInTx(b.tx, id)
		if err != nil {
			return err
		}
		if scopeKey != scope.Key() {
			return fmt.Errorf("node %s is stored in scope %s, not %s", id, scopeKey, scope.Key())
		}
		n.DeletedAt = at
		if err := SetNodeInTx(b.tx, scopeKey, n); err != nil {
			return err
		}
	}
	return nil
}
