// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DB wraps BoltDB instance with lifecycle management.
type DB struct {
	db     *bolt.DB
	dbPath string
}

// Options for BoltDB initialization
type Options struct {
	// Path is the path where BoltDB will store its data.
	// If empty, a temporary directory will be created.
	Path string

	// Timeout bounds how long Open waits for the file lock held by another
	// process. Zero waits forever.
	Timeout time.Duration
}

// DefaultOptions returns default options for BoltDB.
func DefaultOptions() Options {
	return Options{Timeout: 5 * time.Second}
}

// Open creates and opens a new BoltDB instance.
// The database will be created at the specified path.
// Call Close() when done to ensure proper cleanup.
func Open(opts Options) (*DB, error) {
	dbPath := opts.Path
	if dbPath == "" {
		tmpDir, err := os.MkdirTemp("", "sylos-bolt-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
		dbPath = filepath.Join(tmpDir, "nestedset.db")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create bolt directory: %w", err)
		}
	}

	boltDB, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	database := &DB{
		db:     boltDB,
		dbPath: dbPath,
	}

	if err := database.initializeBuckets(); err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return database, nil
}

// initializeBuckets creates the core bucket structure.
// Scope buckets are created on demand when their first node is written.
func (db *DB) initializeBuckets() error {
	return db.Update(func(tx *bolt.Tx) error {
		treeBucket, err := tx.CreateBucketIfNotExists([]byte(TreeDataBucket))
		if err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", TreeDataBucket, err)
		}

		for _, name := range []string{SubBucketScopes, SubBucketNodeScope, StatsBucketName} {
			if _, err := treeBucket.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s/%s bucket: %w", TreeDataBucket, name, err)
			}
		}

		// LOGS is its own island
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketLogs)); err != nil {
			return fmt.Errorf("failed to create LOGS bucket: %w", err)
		}

		return nil
	})
}

// Close closes the BoltDB instance.
// This does NOT delete the database file.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// Cleanup closes the database and deletes the database file.
func (db *DB) Cleanup() error {
	if db.db != nil {
		if err := db.db.Close(); err != nil {
			return fmt.Errorf("failed to close bolt db: %w", err)
		}
		db.db = nil
	}

	if db.dbPath != "" {
		if err := os.Remove(db.dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove bolt database: %w", err)
		}
	}

	return nil
}

// Path returns the path to the BoltDB file.
func (db *DB) Path() string {
	return db.dbPath
}

// Update executes a read-write transaction.
func (db *DB) Update(fn func(*bolt.Tx) error) error {
	return db.db.Update(fn)
}

// View executes a read-only transaction.
func (db *DB) View(fn func(*bolt.Tx) error) error {
	return db.db.View(fn)
}

// IsTemporary returns true if the database was created in a temporary directory.
func (db *DB) IsTemporary() bool {
	if db.dbPath == "" {
		return false
	}
	return strings.Contains(db.dbPath, os.TempDir()) ||
		strings.Contains(filepath.Base(filepath.Dir(db.dbPath)), "sylos-bolt-")
}

// ValidateCoreSchema validates that all buckets have the correct structure.
// It checks the bucket hierarchy only, not the records, which the tree
// validator covers.
func (db *DB) ValidateCoreSchema() error {
	return db.View(func(tx *bolt.Tx) error {
		treeBucket := tx.Bucket([]byte(TreeDataBucket))
		if treeBucket == nil {
			return fmt.Errorf("missing top-level bucket: %s", TreeDataBucket)
		}
		if GetLogsBucket(tx) == nil {
			return fmt.Errorf("missing top-level bucket: %s", BucketLogs)
		}

		for _, name := range []string{SubBucketScopes, SubBucketNodeScope, StatsBucketName} {
			if treeBucket.Bucket([]byte(name)) == nil {
				return fmt.Errorf("missing bucket: %s/%s", TreeDataBucket, name)
			}
		}

		// Every scope bucket must carry its nodes bucket
		scopes := treeBucket.Bucket([]byte(SubBucketScopes))
		cursor := scopes.Cursor()
		for scopeKey, v := cursor.First(); scopeKey != nil; scopeKey, v = cursor.Next() {
			if v != nil {
				return fmt.Errorf("unexpected value in %s/%s: %q", TreeDataBucket, SubBucketScopes, scopeKey)
			}
			if scopes.Bucket(scopeKey).Bucket([]byte(SubBucketNodes)) == nil {
				return fmt.Errorf("missing bucket: %s/%s/%s/%s", TreeDataBucket, SubBucketScopes, scopeKey, SubBucketNodes)
			}
		}

		return nil
	})
}

// getBucket navigates to a nested bucket given a path.
// Returns nil if any bucket in the path doesn't exist.
func getBucket(tx *bolt.Tx, bucketPath []string) *bolt.Bucket {
	if len(bucketPath) == 0 {
		return nil
	}

	bucket := tx.Bucket([]byte(bucketPath[0]))
	if bucket == nil {
		return nil
	}

	for i := 1; i < len(bucketPath); i++ {
		bucket = bucket.Bucket([]byte(bucketPath[i]))
		if bucket == nil {
			return nil
		}
	}

	return bucket
}

// getOrCreateBucket navigates to a nested bucket, creating buckets as needed.
func getOrCreateBucket(tx *bolt.Tx, bucketPath []string) (*bolt.Bucket, error) {
	if len(bucketPath) == 0 {
		return nil, fmt.Errorf("empty bucket path")
	}

	bucket, err := tx.CreateBucketIfNotExists([]byte(bucketPath[0]))
	if err != nil {
		return nil, err
	}

	for i := 1; i < len(bucketPath); i++ {
		bucket, err = bucket.CreateBucketIfNotExists([]byte(bucketPath[i]))
		if err != nil {
			return nil, err
		}
	}

	return bucket, nil
}
