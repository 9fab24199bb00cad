// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package store

import (
	"context"
	"fmt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// ScopeReport summarizes one scope.
type ScopeReport struct {
	Scope      nestedset.Scope
	Roots      int
	LiveNodes  int
	Leaves     int
	MaxDepth   int
	StoredRows int // live and soft-deleted; -1 when the backend cannot tell
}

// DatabaseReport is a complete inspection of the store.
type DatabaseReport struct {
	Driver     string
	Scopes     []ScopeReport
	Validation nestedset.Report
}

// InspectionMode determines whether stored row counts come from the stats
// bucket (fast) or from a bucket scan (accurate).
type InspectionMode int

const (
	// InspectionModeStats reads maintained counters. They can drift if the
	// file was modified by an older build.
	InspectionModeStats InspectionMode = iota

	// InspectionModeScan counts the records actually stored.
	InspectionModeScan
)

// InspectScope walks the forest of one scope.
func (s *Store) InspectScope(ctx context.Context, scope nestedset.Scope, mode InspectionMode) (*ScopeReport, error) {
	forest, err := s.tree.ScopeHierarchy(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := &ScopeReport{Scope: scope, Roots: len(forest), StoredRows: -1}
	var walk func(n *nestedset.TreeNode)
	walk = func(n *nestedset.TreeNode) {
		report.LiveNodes++
		if len(n.Children) == 0 {
			report.Leaves++
		}
		if n.Depth > report.MaxDepth {
			report.MaxDepth = n.Depth
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, root := range forest {
		walk(root)
	}

	if s.boltDB != nil {
		if report.StoredRows, err = s.storedRows(scope, mode); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (s *Store) storedRows(scope nestedset.Scope, mode InspectionMode) (int, error) {
	if mode == InspectionModeScan {
		if err := s.boltDB.SyncCounts(); err != nil {
			return 0, fmt.Errorf("failed to resync counts: %w", err)
		}
	}
	return s.boltDB.CountNodes(scope.Key())
}

// InspectDatabase inspects every scope and validates the whole tree.
func (s *Store) InspectDatabase(ctx context.Context, mode InspectionMode) (*DatabaseReport, error) {
	scopes, err := s.tree.Scopes(ctx)
	if err != nil {
		return nil, err
	}

	report := &DatabaseReport{Driver: s.cfg.Driver}
	for _, scope := range scopes {
		sr, err := s.InspectScope(ctx, scope, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect scope %s: %w", scope, err)
		}
		report.Scopes = append(report.Scopes, *sr)
	}

	if report.Validation, err = s.tree.Validate(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
