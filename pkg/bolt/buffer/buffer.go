// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package buffer batches deferred BoltDB writes, such as persisted log
// records, and applies them from a background goroutine.
package buffer

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	boltDB "github.com/Project-Sylos/Sylos-NestedSet/pkg/bolt"
)

// Buffer batches write operations for efficient database writes.
// It flushes on demand, on a timer, and when the batch size is reached.
// Queueing never touches the database, so it is safe to call while the
// caller holds a BoltDB write transaction.
type Buffer struct {
	db            *boltDB.DB
	mu            sync.Mutex
	flushMu       sync.Mutex
	operations    []*boltDB.WriteOperation
	batchSize     int
	flushInterval time.Duration
	kick          chan struct{}
	stopChan      chan struct{}
	wg            sync.WaitGroup
	paused        bool
	stopped       bool
}

// Config holds buffer configuration options.
type Config struct {
	BatchSize     int           // Number of operations before a threshold flush (default: 256)
	FlushInterval time.Duration // Interval for timer-based flushing (default: 1 second)
}

// DefaultConfig returns default buffer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     256,
		FlushInterval: time.Second,
	}
}

// New creates a buffer and starts its flush loop.
func New(db *boltDB.DB, config Config) *Buffer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultConfig().FlushInterval
	}

	b := &Buffer{
		db:            db,
		operations:    make([]*boltDB.WriteOperation, 0, config.BatchSize),
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		kick:          make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushLoop()

	return b
}

// QueueWrite queues a write operation. Reaching the batch size wakes the
// flush loop; the flush itself never runs on the caller's goroutine.
func (b *Buffer) QueueWrite(op *boltDB.WriteOperation) {
	if op == nil {
		return
	}

	b.mu.Lock()
	b.operations = append(b.operations, op)
	full := len(b.operations) >= b.batchSize
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default: // A flush is already pending
		}
	}
}

// Len returns the number of queued operations.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.operations)
}

// Flush writes all buffered operations to BoltDB in a single transaction.
// Operations are executed in the order they were queued and stats updates
// are aggregated first. On failure the batch is requeued.
func (b *Buffer) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.operations
	b.operations = make([]*boltDB.WriteOperation, 0, b.batchSize)
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	statsMap := make(map[string]int64)
	for _, op := range batch {
		if op.StatsUpdate != nil {
			statsMap[strings.Join(op.StatsUpdate.StatsBucketPath, "/")] += op.StatsUpdate.Delta
		}
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		for i, op := range batch {
			if err := op.Execute(tx); err != nil {
				return fmt.Errorf("failed to execute operation %d of %d: %w", i+1, len(batch), err)
			}
		}
		if len(statsMap) > 0 {
			if err := boltDB.UpdateBucketStatsBatch(tx, statsMap); err != nil {
				return fmt.Errorf("failed to update stats: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		b.mu.Lock()
		b.operations = append(batch, b.operations...)
		b.mu.Unlock()
		return fmt.Errorf("failed to flush buffer (%d operations): %w", len(batch), err)
	}

	return nil
}

// Clear discards all queued operations without writing them.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.operations = make([]*boltDB.WriteOperation, 0, b.batchSize)
}

// flushLoop runs in a goroutine and flushes on the timer or when kicked.
func (b *Buffer) flushLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-b.kick:
		case <-b.stopChan:
			return
		}

		b.mu.Lock()
		paused := b.paused
		b.mu.Unlock()
		if paused {
			continue
		}
		if err := b.Flush(); err != nil {
			// Not routed through slog: this buffer may be the log sink.
			fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		}
	}
}

// Pause stops background flushing after a forced flush.
func (b *Buffer) Pause() error {
	err := b.Flush()
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
	return err
}

// Resume resumes background flushing.
func (b *Buffer) Resume() {
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
}

// SetBatchSize sets the threshold that wakes the flush loop.
func (b *Buffer) SetBatchSize(size int) {
	if size <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchSize = size
}

// Stop ends the flush loop and writes whatever is still queued.
// It must not be called while holding a BoltDB write transaction.
func (b *Buffer) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()

	return b.Flush()
}
