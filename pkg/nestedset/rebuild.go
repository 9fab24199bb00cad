// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Rebuild recomputes every bound and depth from parent pointers alone.
// Unless force is set, a tree that already validates is left untouched.
// Roots and siblings are visited in order of the configured order key,
// tie-broken by id. Rows unreachable from a root keep their bounds.
func (t *Tree) Rebuild(ctx context.Context, force bool) error {
	return t.update(ctx, "rebuild", func(x *txn) error {
		if !force {
			report, err := x.validate()
			if err != nil {
				return err
			}
			if report.Valid() {
				t.log.DebugContext(ctx, "tree is valid, skipping rebuild")
				return nil
			}
		}

		scopes, err := x.Scopes()
		if err != nil {
			return fmt.Errorf("failed to list scopes: %w", err)
		}
		for _, scope := range scopes {
			if err := x.rebuildScope(scope); err != nil {
				return err
			}
		}
		return nil
	}, attribute.Bool("force", force))
}

func (x *txn) rebuildScope(scope Scope) error {
	nodes, err := x.Nodes(scope)
	if err != nil {
		return fmt.Errorf("failed to load scope %s: %w", scope, err)
	}

	children := make(map[string][]*Node, len(nodes))
	for _, n := range nodes {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	for _, siblings := range children {
		x.t.cfg.sortSiblings(siblings)
	}

	var (
		counter int64
		visited = make(map[string]bool, len(nodes))
	)
	var visit func(n *Node, depth int) error
	visit = func(n *Node, depth int) error {
		if visited[n.ID] {
			return fmt.Errorf("%w: node %s reached twice during rebuild", ErrInvalidTreeState, n.ID)
		}
		visited[n.ID] = true

		counter++
		n.Left = counter
		for _, c := range children[n.ID] {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		counter++
		n.Right = counter
		n.Depth = depth

		if err := x.Save(scope, n); err != nil {
			return fmt.Errorf("failed to save rebuilt node %s: %w", n.ID, err)
		}
		return nil
	}

	for _, root := range children[""] {
		if err := visit(root, 0); err != nil {
			return err
		}
	}
	x.shifted += len(visited)

	if orphans := len(nodes) - len(visited); orphans > 0 {
		x.t.log.WarnContext(x.ctx, "rows unreachable from any root were left untouched",
			"scope", scope.String(), "count", orphans)
	}
	x.t.log.DebugContext(x.ctx, "rebuilt scope", "scope", scope.String(), "nodes", len(visited))
	return nil
}
