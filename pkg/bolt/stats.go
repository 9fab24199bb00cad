// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"encoding/binary"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// bucketPathToString converts a bucket path array to a canonical string representation.
// Example: ["Tree-Data", "scopes", "[]", "nodes"] -> "Tree-Data/scopes/[]/nodes"
func bucketPathToString(bucketPath []string) string {
	return strings.Join(bucketPath, "/")
}

// getStatsBucket returns the stats bucket, creating it if it doesn't exist.
func getStatsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	bucket, err := getOrCreateBucket(tx, GetStatsBucketPath())
	if err != nil {
		return nil, fmt.Errorf("failed to get stats bucket: %w", err)
	}
	return bucket, nil
}

// UpdateBucketStats updates the count for a bucket path by the given delta.
// If the bucket path doesn't exist in stats, it's created with the delta value.
func UpdateBucketStats(tx *bolt.Tx, bucketPath []string, delta int64) error {
	if len(bucketPath) == 0 || delta == 0 {
		return nil
	}

	current, err := getBucketCount(tx, bucketPath)
	if err != nil {
		return err
	}
	return setBucketStats(tx, bucketPath, current+delta)
}

// setBucketStats sets the count for a bucket path to an absolute value.
// A zero count removes the entry.
func setBucketStats(tx *bolt.Tx, bucketPath []string, count int64) error {
	statsBucket, err := getStatsBucket(tx)
	if err != nil {
		return err
	}

	keyBytes := []byte(bucketPathToString(bucketPath))
	if count <= 0 {
		if err := statsBucket.Delete(keyBytes); err != nil {
			return fmt.Errorf("failed to delete stats entry: %w", err)
		}
		return nil
	}

	// Store count as 8-byte big-endian int64
	valueBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(valueBytes, uint64(count))
	if err := statsBucket.Put(keyBytes, valueBytes); err != nil {
		return fmt.Errorf("failed to set stats entry: %w", err)
	}
	return nil
}

// getBucketCount retrieves the count for a bucket path from the stats bucket.
// Returns 0 if the bucket path doesn't exist in stats.
func getBucketCount(tx *bolt.Tx, bucketPath []string) (int64, error) {
	statsBucket := getBucket(tx, GetStatsBucketPath())
	if statsBucket == nil {
		return 0, nil
	}

	value := statsBucket.Get([]byte(bucketPathToString(bucketPath)))
	if value == nil {
		return 0, nil
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("invalid stats value length: expected 8 bytes, got %d", len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

// UpdateBucketStatsBatch applies aggregated deltas keyed by bucketPathToString.
func UpdateBucketStatsBatch(tx *bolt.Tx, statsMap map[string]int64) error {
	for pathStr, delta := range statsMap {
		if err := UpdateBucketStats(tx, strings.Split(pathStr, "/"), delta); err != nil {
			return fmt.Errorf("failed to update stats for %s: %w", pathStr, err)
		}
	}
	return nil
}

// GetBucketCount retrieves the count for a bucket path from the stats bucket.
// Returns 0 if stats don't exist.
func (db *DB) GetBucketCount(bucketPath []string) (int64, error) {
	var count int64
	err := db.View(func(tx *bolt.Tx) error {
		var err error
		count, err = getBucketCount(tx, bucketPath)
		return err
	})
	return count, err
}

// SyncCounts rescans every scope nodes bucket and log level bucket and
// overwrites the stats with accurate counts. Useful for recovery or drift.
func (db *DB) SyncCounts() error {
	return db.Update(func(tx *bolt.Tx) error {
		err := IterateScopeKeysInTx(tx, func(scopeKey string) error {
			count := int64(0)
			if bucket := GetNodesBucket(tx, scopeKey); bucket != nil {
				cursor := bucket.Cursor()
				for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
					count++
				}
			}
			if err := setBucketStats(tx, GetNodesBucketPath(scopeKey), count); err != nil {
				return fmt.Errorf("failed to sync stats for scope %s: %w", scopeKey, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		logsBucket := GetLogsBucket(tx)
		if logsBucket == nil {
			return nil
		}
		for _, level := range LogLevels {
			count := int64(0)
			if levelBucket := logsBucket.Bucket([]byte(level)); levelBucket != nil {
				cursor := levelBucket.Cursor()
				for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
					count++
				}
			}
			if err := setBucketStats(tx, GetLogLevelBucketPath(level), count); err != nil {
				return fmt.Errorf("failed to sync stats for LOGS/%s: %w", level, err)
			}
		}
		return nil
	})
}
