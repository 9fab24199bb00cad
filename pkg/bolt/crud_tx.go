// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// GetNodeInTx retrieves a node by ULID within an existing transaction, using
// the node-scope lookup to find its scope bucket. It returns
// nestedset.ErrNodeNotFound when the id is unknown.
func GetNodeInTx(tx *bolt.Tx, nodeID string) (*nestedset.Node, string, error) {
	lookup := GetNodeScopeBucket(tx)
	if lookup == nil {
		return nil, "", fmt.Errorf("node-scope bucket not found")
	}
	scopeKey := lookup.Get([]byte(nodeID))
	if scopeKey == nil {
		return nil, "", fmt.Errorf("%w: %s", nestedset.ErrNodeNotFound, nodeID)
	}

	nodesBucket := GetNodesBucket(tx, string(scopeKey))
	if nodesBucket == nil {
		return nil, "", fmt.Errorf("nodes bucket not found for scope %s", scopeKey)
	}
	data := nodesBucket.Get([]byte(nodeID))
	if data == nil {
		return nil, "", fmt.Errorf("%w: %s (dangling scope lookup)", nestedset.ErrNodeNotFound, nodeID)
	}

	n, err := nestedset.DeserializeNode(data)
	if err != nil {
		return nil, "", err
	}
	return n, string(scopeKey), nil
}

// SetNodeInTx stores a node in its scope's nodes bucket and records the
// node-scope lookup. Stats are bumped when the node is new.
func SetNodeInTx(tx *bolt.Tx, scopeKey string, n *nestedset.Node) error {
	if n.ID == "" {
		return fmt.Errorf("node must have ID (ULID)")
	}

	value, err := n.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize node: %w", err)
	}

	nodesBucket, err := GetOrCreateNodesBucket(tx, scopeKey)
	if err != nil {
		return err
	}
	lookup := GetNodeScopeBucket(tx)
	if lookup == nil {
		return fmt.Errorf("node-scope bucket not found")
	}

	nodeID := []byte(n.ID)
	if previous := lookup.Get(nodeID); previous != nil && string(previous) != scopeKey {
		return fmt.Errorf("node %s already stored in scope %s", n.ID, previous)
	}
	isNew := nodesBucket.Get(nodeID) == nil

	if err := nodesBucket.Put(nodeID, value); err != nil {
		return fmt.Errorf("failed to put node %s: %w", n.ID, err)
	}
	if err := lookup.Put(nodeID, []byte(scopeKey)); err != nil {
		return fmt.Errorf("failed to put node-scope lookup for %s: %w", n.ID, err)
	}
	if isNew {
		return UpdateBucketStats(tx, GetNodesBucketPath(scopeKey), 1)
	}
	return nil
}

// BatchDeleteNodesInTx deletes multiple nodes by their IDs within an existing transaction.
func BatchDeleteNodesInTx(tx *bolt.Tx, scopeKey string, nodeIDs []string) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	nodesBucket := GetNodesBucket(tx, scopeKey)
	if nodesBucket == nil {
		return fmt.Errorf("nodes bucket not found for scope %s", scopeKey)
	}
	lookup := GetNodeScopeBucket(tx)
	if lookup == nil {
		return fmt.Errorf("node-scope bucket not found")
	}

	var removed int64
	for _, nodeIDStr := range nodeIDs {
		nodeID := []byte(nodeIDStr)
		if nodesBucket.Get(nodeID) == nil {
			continue // Node doesn't exist, skip
		}
		if err := nodesBucket.Delete(nodeID); err != nil {
			return fmt.Errorf("failed to delete node %s: %w", nodeIDStr, err)
		}
		if err := lookup.Delete(nodeID); err != nil {
			return fmt.Errorf("failed to delete node-scope lookup for %s: %w", nodeIDStr, err)
		}
		removed++
	}

	return UpdateBucketStats(tx, GetNodesBucketPath(scopeKey), -removed)
}
