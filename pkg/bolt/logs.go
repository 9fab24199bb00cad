// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// LogLevels are the level buckets under LOGS, lowest first.
var LogLevels = []string{"debug", "info", "warning", "error"}

// LogEntry represents a single log entry stored in BoltDB.
type LogEntry struct {
	ID        string            `json:"id"`                // UUID
	Timestamp string            `json:"timestamp"`         // RFC3339Nano format
	Level     string            `json:"level"`             // "debug", "info", "warning", "error"
	Op        string            `json:"op,omitempty"`      // Engine operation, e.g. "move"
	NodeID    string            `json:"node_id,omitempty"` // Node the record is about
	Scope     string            `json:"scope,omitempty"`   // Scope the node belongs to
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs,omitempty"` // Every other attribute, stringified
}

// SerializeLogEntry converts a LogEntry to bytes.
func SerializeLogEntry(entry LogEntry) ([]byte, error) {
	return json.Marshal(entry)
}

// DeserializeLogEntry converts bytes to a LogEntry.
func DeserializeLogEntry(data []byte) (*LogEntry, error) {
	var entry LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize log entry: %w", err)
	}
	return &entry, nil
}

// GenerateLogID generates a unique log ID (UUID v7, so keys sort by time).
func GenerateLogID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// LevelName maps a slog level onto a LOGS bucket name.
func LevelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warning"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// GetLogLevelBucketPath returns the bucket path for a specific log level.
// Returns: ["LOGS", "info"] or ["LOGS", "error"], etc.
func GetLogLevelBucketPath(level string) []string {
	return []string{BucketLogs, level}
}

// GetOrCreateLogLevelBucket returns or creates the log level bucket.
func GetOrCreateLogLevelBucket(tx *bolt.Tx, level string) (*bolt.Bucket, error) {
	logsBucket := GetLogsBucket(tx)
	if logsBucket == nil {
		return nil, fmt.Errorf("LOGS bucket not found")
	}

	levelBucket, err := logsBucket.CreateBucketIfNotExists([]byte(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create log level bucket %s: %w", level, err)
	}

	return levelBucket, nil
}

// GetLogLevelBucket returns the log level bucket (read-only).
func GetLogLevelBucket(tx *bolt.Tx, level string) *bolt.Bucket {
	logsBucket := GetLogsBucket(tx)
	if logsBucket == nil {
		return nil
	}
	return logsBucket.Bucket([]byte(level))
}

// InsertLogEntry inserts a single log entry into BoltDB under the appropriate level bucket.
func InsertLogEntry(db *DB, entry LogEntry) error {
	data, err := SerializeLogEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize log entry: %w", err)
	}

	return db.Update(func(tx *bolt.Tx) error {
		levelBucket, err := GetOrCreateLogLevelBucket(tx, entry.Level)
		if err != nil {
			return err
		}
		if err := levelBucket.Put([]byte(entry.ID), data); err != nil {
			return err
		}
		return UpdateBucketStats(tx, GetLogLevelBucketPath(entry.Level), 1)
	})
}

// GetLogEntry retrieves a log entry by ID and level.
func GetLogEntry(db *DB, level string, id string) (*LogEntry, error) {
	var entry *LogEntry

	err := db.View(func(tx *bolt.Tx) error {
		levelBucket := GetLogLevelBucket(tx, level)
		if levelBucket == nil {
			return nil // Bucket doesn't exist
		}

		data := levelBucket.Get([]byte(id))
		if data == nil {
			return nil // Not found
		}

		var err error
		entry, err = DeserializeLogEntry(data)
		return err
	})

	return entry, err
}

// GetLogsByLevel retrieves all log entries for a specific level, oldest first.
func GetLogsByLevel(db *DB, level string) ([]*LogEntry, error) {
	var logs []*LogEntry

	err := db.View(func(tx *bolt.Tx) error {
		levelBucket := GetLogLevelBucket(tx, level)
		if levelBucket == nil {
			return nil // No logs at this level yet
		}

		cursor := levelBucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			entry, err := DeserializeLogEntry(v)
			if err != nil {
				continue // Skip invalid entries
			}
			logs = append(logs, entry)
		}

		return nil
	})

	return logs, err
}

// GetAllLogs retrieves all log entries across all levels ordered by timestamp.
func GetAllLogs(db *DB) ([]*LogEntry, error) {
	var logs []*LogEntry
	for _, level := range LogLevels {
		entries, err := GetLogsByLevel(db, level)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entries...)
	}

	slices.SortStableFunc(logs, func(a, b *LogEntry) int {
		return strings.Compare(a.Timestamp, b.Timestamp)
	})
	return logs, nil
}

// LogHandler is a slog.Handler that persists records into the LOGS buckets.
// Records are queued rather than written directly: the engine logs from
// inside its own write transaction, and BoltDB admits one writer at a time.
type LogHandler struct {
	queue WriteQueue
	level slog.Leveler
	attrs []slog.Attr
	group string
}

// NewLogHandler returns a handler queueing records at or above level.
func NewLogHandler(queue WriteQueue, level slog.Leveler) *LogHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogHandler{queue: queue, level: level}
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := LogEntry{
		ID:        GenerateLogID(),
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Level:     LevelName(r.Level),
		Message:   r.Message,
	}

	for _, a := range h.attrs {
		fill(&entry, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		fill(&entry, h.group, a)
		return true
	})

	op, err := NewLogWriteOperation(entry)
	if err != nil {
		return err
	}
	h.queue.QueueWrite(op)
	return nil
}

// fill routes well-known attributes to their fields and keeps the rest.
func fill(entry *LogEntry, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}

	switch key {
	case "op":
		entry.Op = a.Value.String()
	case "node":
		entry.NodeID = a.Value.String()
	case "scope":
		entry.Scope = a.Value.String()
	default:
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]string)
		}
		entry.Attrs[key] = a.Value.String()
	}
}

// WithAttrs qualifies attrs with the current group right away, so groups
// opened later do not apply to them.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.group != "" {
		clone.group += "." + name
	} else {
		clone.group = name
	}
	return &clone
}
