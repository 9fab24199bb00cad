// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// WriteOperation is a single deferred write, queued in a buffer and applied
// later in a batch transaction.
type WriteOperation struct {
	BucketPath []string
	Key        []byte
	Value      []byte

	// Optional stats update (aggregated by the buffer before applying)
	StatsUpdate *StatsUpdate
}

// StatsUpdate is a counter delta for one bucket path.
type StatsUpdate struct {
	StatsBucketPath []string
	Delta           int64
}

// WriteQueue accepts deferred writes. buffer.Buffer implements it.
type WriteQueue interface {
	QueueWrite(op *WriteOperation)
}

// Execute performs the write operation within a transaction.
// Stats updates are NOT executed here; the buffer aggregates them.
func (op *WriteOperation) Execute(tx *bolt.Tx) error {
	if len(op.BucketPath) == 0 {
		return fmt.Errorf("bucket path cannot be empty")
	}

	bucket, err := getOrCreateBucket(tx, op.BucketPath)
	if err != nil {
		return fmt.Errorf("failed to get or create bucket at path %v: %w", op.BucketPath, err)
	}

	return bucket.Put(op.Key, op.Value)
}

// NewLogWriteOperation builds the deferred write storing one log entry.
func NewLogWriteOperation(entry LogEntry) (*WriteOperation, error) {
	data, err := SerializeLogEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize log entry: %w", err)
	}
	path := GetLogLevelBucketPath(entry.Level)
	return &WriteOperation{
		BucketPath:  path,
		Key:         []byte(entry.ID),
		Value:       data,
		StatsUpdate: &StatsUpdate{StatsBucketPath: path, Delta: 1},
	}, nil
}
