// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// errStopIteration ends a scan early without surfacing an error.
var errStopIteration = errors.New("stop iteration")

// IterateScopeKeysInTx calls fn with every scope key that has a bucket.
func IterateScopeKeysInTx(tx *bolt.Tx, fn func(scopeKey string) error) error {
	scopes := GetScopesBucket(tx)
	if scopes == nil {
		return fmt.Errorf("scopes bucket not found")
	}

	cursor := scopes.Cursor()
	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		if v != nil {
			continue // Not a bucket
		}
		if err := fn(string(k)); err != nil {
			return err
		}
	}
	return nil
}

// IterateNodesInTx calls fn with every node stored in a scope, live or
// soft-deleted. A scope that was never written yields nothing.
func IterateNodesInTx(tx *bolt.Tx, scopeKey string, fn func(n *nestedset.Node) error) error {
	bucket := GetNodesBucket(tx, scopeKey)
	if bucket == nil {
		return nil
	}

	cursor := bucket.Cursor()
	for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
		n, err := nestedset.DeserializeNode(v)
		if err != nil {
			return fmt.Errorf("failed to deserialize node %s: %w", k, err)
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// IterateLiveNodesInTx is IterateNodesInTx restricted to live nodes.
func IterateLiveNodesInTx(tx *bolt.Tx, scopeKey string, fn func(n *nestedset.Node) error) error {
	return IterateNodesInTx(tx, scopeKey, func(n *nestedset.Node) error {
		if n.Trashed() {
			return nil
		}
		return fn(n)
	})
}

// HasLiveNodesInTx reports whether a scope holds at least one live node.
func HasLiveNodesInTx(tx *bolt.Tx, scopeKey string) (bool, error) {
	found := false
	err := IterateLiveNodesInTx(tx, scopeKey, func(*nestedset.Node) error {
		found = true
		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return false, err
	}
	return found, nil
}

// HasItems checks if a bucket (specified by bucket path) has any items.
// This is O(1) - it only checks for the first key without counting all items.
func (db *DB) HasItems(bucketPath []string) (bool, error) {
	hasItems := false

	err := db.View(func(tx *bolt.Tx) error {
		bucket := getBucket(tx, bucketPath)
		if bucket == nil {
			return nil
		}

		key, _ := bucket.Cursor().First()
		hasItems = key != nil
		return nil
	})

	return hasItems, err
}

// CountNodes returns the number of records (live and soft-deleted) stored in a scope.
// Uses the stats bucket for O(1) lookup. Falls back to a cursor scan if stats are unavailable.
func (db *DB) CountNodes(scopeKey string) (int, error) {
	count, err := db.GetBucketCount(GetNodesBucketPath(scopeKey))
	if err == nil {
		return int(count), nil
	}
	return db.countNodesSlow(scopeKey)
}

// countNodesSlow performs a full cursor scan of a scope's nodes bucket.
func (db *DB) countNodesSlow(scopeKey string) (int, error) {
	count := 0

	err := db.View(func(tx *bolt.Tx) error {
		bucket := GetNodesBucket(tx, scopeKey)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})

	return count, err
}
