// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
)

// Position is where a moved node lands relative to its target.
type Position int

const (
	LeftOf Position = iota + 1
	RightOf
	ChildOf
	MakeRoot
)

func (p Position) String() string {
	switch p {
	case LeftOf:
		return "left"
	case RightOf:
		return "right"
	case ChildOf:
		return "child"
	case MakeRoot:
		return "root"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// Valid reports whether p is one of the four recognized positions.
func (p Position) Valid() bool {
	return p >= LeftOf && p <= MakeRoot
}

// ParsePosition accepts left, left-of, right, right-of, child, child-of, root and make-root.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "left", "left-of":
		return LeftOf, nil
	case "right", "right-of":
		return RightOf, nil
	case "child", "child-of":
		return ChildOf, nil
	case "root", "make-root":
		return MakeRoot, nil
	}
	return 0, moveNotPossible("position should be one of [child, left, right, root] but is %q", s)
}

// resolver picks the target and position for a move once the node is loaded.
// A nil target with MakeRoot is valid.
type resolver func(x *txn, node *Node) (*Node, Position, error)

// Move relocates n and its whole subtree next to, inside, or away from the
// target. n is refreshed in place and returned. A listener veto is not an
// error: the unchanged node is returned.
func (t *Tree) Move(ctx context.Context, n *Node, targetID string, pos Position) (*Node, error) {
	return t.relocate(ctx, n, func(x *txn, node *Node) (*Node, Position, error) {
		if pos == MakeRoot || !pos.Valid() {
			return nil, pos, nil
		}
		target, err := x.findLive(targetID)
		if err != nil {
			if isNotFound(err) {
				return nil, pos, moveNotPossible("could not resolve target node %q", targetID)
			}
			return nil, pos, err
		}
		return target, pos, nil
	})
}

// MoveLeft swaps n with its left sibling.
func (t *Tree) MoveLeft(ctx context.Context, n *Node) (*Node, error) {
	return t.relocate(ctx, n, func(x *txn, node *Node) (*Node, Position, error) {
		sibling, err := x.adjacentSibling(node, node.Left-1, func(s *Node) int64 { return s.Right })
		if err != nil {
			return nil, LeftOf, err
		}
		if sibling == nil {
			return nil, LeftOf, moveNotPossible("could not resolve target node, this node cannot move any further to the left")
		}
		return sibling, LeftOf, nil
	})
}

// MoveRight swaps n with its right sibling.
func (t *Tree) MoveRight(ctx context.Context, n *Node) (*Node, error) {
	return t.relocate(ctx, n, func(x *txn, node *Node) (*Node, Position, error) {
		sibling, err := x.adjacentSibling(node, node.Right+1, func(s *Node) int64 { return s.Left })
		if err != nil {
			return nil, RightOf, err
		}
		if sibling == nil {
			return nil, RightOf, moveNotPossible("could not resolve target node, this node cannot move any further to the right")
		}
		return sibling, RightOf, nil
	})
}

// MoveToLeftOf makes n the immediate left sibling of target.
func (t *Tree) MoveToLeftOf(ctx context.Context, n *Node, targetID string) (*Node, error) {
	return t.Move(ctx, n, targetID, LeftOf)
}

// MoveToRightOf makes n the immediate right sibling of target.
func (t *Tree) MoveToRightOf(ctx context.Context, n *Node, targetID string) (*Node, error) {
	return t.Move(ctx, n, targetID, RightOf)
}

// MakeSiblingOf is MoveToRightOf.
func (t *Tree) MakeSiblingOf(ctx context.Context, n *Node, targetID string) (*Node, error) {
	return t.Move(ctx, n, targetID, RightOf)
}

// MakeChildOf makes n the last child of parentID.
func (t *Tree) MakeChildOf(ctx context.Context, n *Node, parentID string) (*Node, error) {
	return t.Move(ctx, n, parentID, ChildOf)
}

// MakeLastChildOf is MakeChildOf.
func (t *Tree) MakeLastChildOf(ctx context.Context, n *Node, parentID string) (*Node, error) {
	return t.Move(ctx, n, parentID, ChildOf)
}

// MakeFirstChildOf makes n the first child of parentID.
func (t *Tree) MakeFirstChildOf(ctx context.Context, n *Node, parentID string) (*Node, error) {
	return t.relocate(ctx, n, func(x *txn, node *Node) (*Node, Position, error) {
		parent, err := x.findLive(parentID)
		if err != nil {
			if isNotFound(err) {
				return nil, ChildOf, moveNotPossible("could not resolve target node %q", parentID)
			}
			return nil, ChildOf, err
		}
		children, err := x.FindByParent(x.t.cfg.ScopeOf(parent), parent.ID)
		if err != nil {
			return nil, ChildOf, err
		}
		slices.SortFunc(children, func(a, b *Node) int { return cmp.Compare(a.Left, b.Left) })

		switch {
		case len(children) == 0:
			return parent, ChildOf, nil
		case children[0].ID != node.ID:
			return children[0], LeftOf, nil
		case len(children) > 1:
			// Already first: left of the second child is the no-op move.
			return children[1], LeftOf, nil
		default:
			return parent, ChildOf, nil
		}
	})
}

// MakeRoot promotes n to the rightmost root of its scope.
func (t *Tree) MakeRoot(ctx context.Context, n *Node) (*Node, error) {
	return t.Move(ctx, n, "", MakeRoot)
}

// relocate loads n, resolves the target inside the transaction and performs the move.
func (t *Tree) relocate(ctx context.Context, n *Node, resolve resolver) (*Node, error) {
	if n == nil || n.ID == "" {
		return nil, moveNotPossible("a new node cannot be moved")
	}

	var result *Node
	err := t.update(ctx, "move", func(x *txn) error {
		node, err := x.Find(n.ID)
		if err != nil {
			if isNotFound(err) {
				return moveNotPossible("a new node cannot be moved")
			}
			return err
		}
		target, pos, err := resolve(x, node)
		if err != nil {
			return err
		}
		result, err = x.move(node, target, pos)
		return err
	}, attribute.String("node", n.ID))
	if err != nil {
		return nil, err
	}

	*n = *result
	return n, nil
}

// adjacentSibling returns the sibling whose edge(s) equals want.
func (x *txn) adjacentSibling(node *Node, want int64, edge func(*Node) int64) (*Node, error) {
	siblings, err := x.FindByParent(x.t.cfg.ScopeOf(node), node.ParentID)
	if err != nil {
		return nil, err
	}
	for _, s := range siblings {
		if s.ID != node.ID && edge(s) == want {
			return s, nil
		}
	}
	return nil, nil
}

// guardMove rejects impossible moves before anything is written.
func (x *txn) guardMove(node, target *Node, pos Position) error {
	if !node.Persisted() {
		return moveNotPossible("a new node cannot be moved")
	}
	if node.Trashed() {
		return moveNotPossible("a deleted node cannot be moved")
	}
	if !pos.Valid() {
		return moveNotPossible("position should be one of [child, left, right, root] but is %s", pos)
	}
	if pos == MakeRoot {
		return nil
	}
	if target == nil {
		return moveNotPossible("could not resolve target node")
	}
	if node.Equals(target) {
		return moveNotPossible("a node cannot be moved to itself")
	}
	if !x.t.cfg.ScopeOf(node).Equal(x.t.cfg.ScopeOf(target)) {
		return moveNotPossible("a node cannot be moved to a different scope")
	}
	if target.InsideSubtree(node) {
		return moveNotPossible("a node cannot be moved to a descendant of itself (inside moved tree)")
	}
	return nil
}

// move performs the relocation of an already loaded node.
func (x *txn) move(node, target *Node, pos Position) (*Node, error) {
	if err := x.guardMove(node, target, pos); err != nil {
		return nil, err
	}
	if err := x.ensureValid(); err != nil {
		return nil, err
	}
	if !x.t.listener.Moving(x.ctx, node) {
		movesVetoed.Inc()
		x.t.log.DebugContext(x.ctx, "move vetoed", "node", node.ID, "position", pos.String())
		return node, nil
	}

	scope := x.t.cfg.ScopeOf(node)
	bound1, bound2, err := x.anchors(scope, node, target, pos)
	if err != nil {
		return nil, err
	}

	if bound1 != node.Left && bound1 != node.Right {
		edges := []int64{node.Left, node.Right, bound1, bound2}
		slices.Sort(edges)
		shift := Shift{
			A: edges[0], B: edges[1], C: edges[2], D: edges[3],
			NodeID:   node.ID,
			ParentID: newParentID(target, pos),
		}

		// Serialize against concurrent moves touching the same range
		if err := x.LockRange(scope, shift.A, shift.D); err != nil {
			return nil, fmt.Errorf("failed to lock bounds [%d, %d]: %w", shift.A, shift.D, err)
		}
		rows, err := x.BulkShift(scope, shift)
		if err != nil {
			return nil, fmt.Errorf("failed to shift bounds for %s: %w", node.ID, err)
		}
		x.shifted += rows

		if node, err = x.reload(node); err != nil {
			return nil, err
		}
		if node, err = x.setDepthWithSubtree(scope, node); err != nil {
			return nil, err
		}
		x.t.log.DebugContext(x.ctx, "moved node",
			"node", node.ID, "position", pos.String(), "scope", scope.String(),
			"lft", node.Left, "rgt", node.Right, "rows", rows)
	}

	x.moved = append(x.moved, node)
	return node, nil
}

// anchors derives the destination edges of a move. bound1 is the primary
// anchor; when it equals one of the node's own bounds the move changes nothing.
func (x *txn) anchors(scope Scope, node, target *Node, pos Position) (bound1, bound2 int64, err error) {
	switch pos {
	case ChildOf:
		bound1 = target.Right
	case LeftOf:
		bound1 = target.Left
	case RightOf:
		bound1 = target.Right + 1
	case MakeRoot:
		maxRight, err := x.MaxRight(scope)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read max right bound: %w", err)
		}
		bound1 = maxRight + 1
	}

	// Targets to the right of the node shrink by one so widths stay consistent
	if bound1 > node.Right {
		bound1--
		bound2 = node.Right + 1
	} else {
		bound2 = node.Left - 1
	}
	return bound1, bound2, nil
}

func newParentID(target *Node, pos Position) string {
	switch pos {
	case ChildOf:
		return target.ID
	case LeftOf, RightOf:
		return target.ParentID
	default:
		return ""
	}
}
