// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package utils holds small helpers shared across packages.
package utils

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerateULID returns a new ULID string for a node id. IDs generated by one
// process sort by creation time, so ties between siblings with equal order
// keys fall back to insertion order.
func GenerateULID() string {
	return ulid.Make().String()
}

// ULIDTime returns the creation time encoded in id. The second result is
// false when id is not a ULID, e.g. an id supplied by the caller.
func ULIDTime(id string) (time.Time, bool) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
