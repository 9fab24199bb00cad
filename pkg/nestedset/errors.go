// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"errors"
	"fmt"
)

var (
	// ErrMoveNotPossible is returned for every Move precondition violation.
	// It is always raised before any write.
	ErrMoveNotPossible = errors.New("move not possible")

	// ErrInvalidTreeState is returned when StrictChecks is enabled and the
	// tree fails validation before a Move or Map.
	ErrInvalidTreeState = errors.New("invalid tree state")

	// ErrRestoreNotPossible is returned when a node cannot be restored.
	ErrRestoreNotPossible = errors.New("restore not possible")

	// ErrPersistence wraps every failure surfaced by the BoundStore.
	ErrPersistence = errors.New("persistence failure")

	// ErrNodeNotFound is returned by stores when a lookup misses.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists is returned by Create when the supplied id is taken.
	ErrNodeExists = errors.New("node already exists")
)

func moveNotPossible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMoveNotPossible, fmt.Sprintf(format, args...))
}

// persistenceFailure wraps store errors. Engine errors pass through unchanged.
func persistenceFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrMoveNotPossible, ErrInvalidTreeState, ErrRestoreNotPossible, ErrPersistence, ErrNodeNotFound, ErrNodeExists} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrPersistence, op, err)
}
