// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// GetNode retrieves a node by ULID in its own read transaction.
// It returns nestedset.ErrNodeNotFound when the id is unknown.
func GetNode(db *DB, nodeID string) (*nestedset.Node, error) {
	var node *nestedset.Node
	err := db.View(func(tx *bolt.Tx) error {
		var err error
		node, _, err = GetNodeInTx(tx, nodeID)
		return err
	})
	return node, err
}

// SetNode stores n as-is under scopeKey. Bounds, parent and depth are written
// exactly as given; nothing checks them against the rest of the tree.
// Use a nestedset.Tree for structural changes.
func SetNode(db *DB, scopeKey string, n *nestedset.Node) error {
	if n == nil {
		return fmt.Errorf("cannot store a nil node")
	}
	return db.Update(func(tx *bolt.Tx) error {
		return SetNodeInTx(tx, scopeKey, n)
	})
}

// BatchSetNodes stores several nodes of one scope in a single transaction.
func BatchSetNodes(db *DB, scopeKey string, nodes []*nestedset.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		for _, n := range nodes {
			if err := SetNodeInTx(tx, scopeKey, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// BatchDeleteNodes deletes multiple nodes of one scope in a single
// transaction. Gaps left in the bounds are not closed.
func BatchDeleteNodes(db *DB, scopeKey string, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		return BatchDeleteNodesInTx(tx, scopeKey, nodeIDs)
	})
}
