// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Bucket path constants
const (
	TreeDataBucket = "Tree-Data" // Root bucket for all tree-related data
	BucketLogs     = "LOGS"      // Separate island, not under Tree-Data
)

// Sub-bucket names
const (
	SubBucketScopes    = "scopes"     // One bucket per scope key
	SubBucketNodes     = "nodes"      // ULID → Node JSON, inside each scope bucket
	SubBucketNodeScope = "node-scope" // ULID → scope key lookup
	StatsBucketName    = "STATS"
)

// GetScopesBucketPath returns the bucket path holding every scope bucket.
// Returns: ["Tree-Data", "scopes"]
func GetScopesBucketPath() []string {
	return []string{TreeDataBucket, SubBucketScopes}
}

// GetScopeBucketPath returns the bucket path for one scope.
// Returns: ["Tree-Data", "scopes", "<scope key>"]
func GetScopeBucketPath(scopeKey string) []string {
	return []string{TreeDataBucket, SubBucketScopes, scopeKey}
}

// GetNodesBucketPath returns the bucket path for the nodes of one scope.
// Returns: ["Tree-Data", "scopes", "<scope key>", "nodes"]
func GetNodesBucketPath(scopeKey string) []string {
	return []string{TreeDataBucket, SubBucketScopes, scopeKey, SubBucketNodes}
}

// GetNodeScopeBucketPath returns the bucket path for the id → scope lookup.
// Returns: ["Tree-Data", "node-scope"]
func GetNodeScopeBucketPath() []string {
	return []string{TreeDataBucket, SubBucketNodeScope}
}

// GetStatsBucketPath returns the bucket path for record counters.
// Returns: ["Tree-Data", "STATS"]
func GetStatsBucketPath() []string {
	return []string{TreeDataBucket, StatsBucketName}
}

// GetLogsBucketPath returns the bucket path for logs.
// Returns: ["LOGS"]
func GetLogsBucketPath() []string {
	return []string{BucketLogs}
}

// GetScopesBucket returns the bucket holding every scope bucket.
func GetScopesBucket(tx *bolt.Tx) *bolt.Bucket {
	return getBucket(tx, GetScopesBucketPath())
}

// GetNodesBucket returns the nodes bucket of a scope, or nil if the scope was never written.
func GetNodesBucket(tx *bolt.Tx, scopeKey string) *bolt.Bucket {
	return getBucket(tx, GetNodesBucketPath(scopeKey))
}

// GetOrCreateNodesBucket returns or creates the nodes bucket of a scope.
func GetOrCreateNodesBucket(tx *bolt.Tx, scopeKey string) (*bolt.Bucket, error) {
	bucket, err := getOrCreateBucket(tx, GetNodesBucketPath(scopeKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create nodes bucket for scope %s: %w", scopeKey, err)
	}
	return bucket, nil
}

// GetNodeScopeBucket returns the id → scope lookup bucket.
func GetNodeScopeBucket(tx *bolt.Tx) *bolt.Bucket {
	return getBucket(tx, GetNodeScopeBucketPath())
}

// GetLogsBucket returns the logs bucket.
func GetLogsBucket(tx *bolt.Tx) *bolt.Bucket {
	return tx.Bucket([]byte(BucketLogs))
}
