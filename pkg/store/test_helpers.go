// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package store

import (
	"context"
	"fmt"
)

// SubtreeStats contains statistics about a subtree.
// Used by tests to verify tree structure and counts.
type SubtreeStats struct {
	TotalNodes int
	Leaves     int
	MaxDepth   int // relative to the subtree root
}

// CountSubtree performs a DFS over the parent links below rootID and checks
// that the bounds agree with what was walked.
//
// This is a test utility method and should not be used in production code.
// It performs O(n) traversal of the entire subtree.
func (s *Store) CountSubtree(ctx context.Context, rootID string) (SubtreeStats, error) {
	stats := SubtreeStats{}
	root, err := s.tree.Get(ctx, rootID)
	if err != nil {
		return stats, err
	}
	visited := make(map[string]bool)

	var dfs func(id string, depth int) error
	dfs = func(id string, depth int) error {
		if visited[id] {
			return fmt.Errorf("node %s reached twice", id)
		}
		visited[id] = true

		node, err := s.tree.Get(ctx, id)
		if err != nil {
			return err
		}
		stats.TotalNodes++
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}

		children, err := s.tree.Children(ctx, node)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			stats.Leaves++
		}
		for _, c := range children {
			if err := dfs(c.ID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := dfs(root.ID, 0); err != nil {
		return stats, err
	}

	// A consistent subtree of n nodes spans exactly 2n bound values.
	if want := int64(2 * stats.TotalNodes); root.Width() != want {
		return stats, fmt.Errorf("subtree %s spans %d bounds but holds %d nodes", rootID, root.Width(), stats.TotalNodes)
	}
	return stats, nil
}
