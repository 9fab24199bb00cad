// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// TreeNode is a node with its children materialized, as returned by the
// hierarchy queries.
type TreeNode struct {
	*Node
	Children []*TreeNode `json:"children,omitempty"`
}

// Get returns the node with the given id, including soft-deleted ones.
func (t *Tree) Get(ctx context.Context, id string) (*Node, error) {
	var n *Node
	err := t.view(ctx, "get", func(x *txn) error {
		var err error
		n, err = x.Find(id)
		return err
	})
	return n, err
}

// Scopes lists every scope holding at least one live node.
func (t *Tree) Scopes(ctx context.Context) ([]Scope, error) {
	var scopes []Scope
	err := t.view(ctx, "scopes", func(x *txn) error {
		var err error
		scopes, err = x.Scopes()
		return err
	})
	return scopes, err
}

// Roots returns the roots of scope in sibling order.
func (t *Tree) Roots(ctx context.Context, scope Scope) ([]*Node, error) {
	var roots []*Node
	err := t.view(ctx, "roots", func(x *txn) error {
		var err error
		roots, err = x.children(scope, "")
		return err
	})
	return roots, err
}

// Root returns the root of the tree containing n; a root returns itself.
func (t *Tree) Root(ctx context.Context, n *Node) (*Node, error) {
	chain, err := t.AncestorsAndSelf(ctx, n)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// Parent returns the parent of n, or nil for a root.
func (t *Tree) Parent(ctx context.Context, n *Node) (*Node, error) {
	var parent *Node
	err := t.view(ctx, "parent", func(x *txn) error {
		node, err := x.findLive(n.ID)
		if err != nil || node.ParentID == "" {
			return err
		}
		parent, err = x.Find(node.ParentID)
		return err
	})
	return parent, err
}

// Ancestors returns the ancestors of n from the root down.
func (t *Tree) Ancestors(ctx context.Context, n *Node) ([]*Node, error) {
	chain, err := t.AncestorsAndSelf(ctx, n)
	if err != nil {
		return nil, err
	}
	return chain[:len(chain)-1], nil
}

// AncestorsAndSelf is Ancestors with n appended.
func (t *Tree) AncestorsAndSelf(ctx context.Context, n *Node) ([]*Node, error) {
	var chain []*Node
	err := t.view(ctx, "ancestors", func(x *txn) error {
		node, err := x.findLive(n.ID)
		if err != nil {
			return err
		}
		chain, err = x.ancestry(node)
		return err
	})
	return chain, err
}

// Descendants returns every node below n ordered by left bound.
func (t *Tree) Descendants(ctx context.Context, n *Node) ([]*Node, error) {
	all, err := t.DescendantsAndSelf(ctx, n)
	if err != nil {
		return nil, err
	}
	return all[1:], nil
}

// DescendantsAndSelf is Descendants with n first.
func (t *Tree) DescendantsAndSelf(ctx context.Context, n *Node) ([]*Node, error) {
	var nodes []*Node
	err := t.view(ctx, "descendants", func(x *txn) error {
		var err error
		nodes, err = x.subtree(n.ID)
		return err
	})
	return nodes, err
}

// Children returns the direct children of n in sibling order.
func (t *Tree) Children(ctx context.Context, n *Node) ([]*Node, error) {
	var children []*Node
	err := t.view(ctx, "children", func(x *txn) error {
		node, err := x.findLive(n.ID)
		if err != nil {
			return err
		}
		children, err = x.children(t.cfg.ScopeOf(node), node.ID)
		return err
	})
	return children, err
}

// Siblings returns the nodes sharing n's parent, excluding n.
func (t *Tree) Siblings(ctx context.Context, n *Node) ([]*Node, error) {
	all, err := t.SiblingsAndSelf(ctx, n)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, n.Equals), nil
}

// SiblingsAndSelf returns the nodes sharing n's parent, including n.
func (t *Tree) SiblingsAndSelf(ctx context.Context, n *Node) ([]*Node, error) {
	var siblings []*Node
	err := t.view(ctx, "siblings", func(x *txn) error {
		node, err := x.findLive(n.ID)
		if err != nil {
			return err
		}
		siblings, err = x.children(t.cfg.ScopeOf(node), node.ParentID)
		return err
	})
	return siblings, err
}

// LeftSibling returns the sibling immediately to the left of n, or nil.
func (t *Tree) LeftSibling(ctx context.Context, n *Node) (*Node, error) {
	return t.adjacent(ctx, n, func(node, s *Node) bool { return s.Right == node.Left-1 })
}

// RightSibling returns the sibling immediately to the right of n, or nil.
func (t *Tree) RightSibling(ctx context.Context, n *Node) (*Node, error) {
	return t.adjacent(ctx, n, func(node, s *Node) bool { return s.Left == node.Right+1 })
}

func (t *Tree) adjacent(ctx context.Context, n *Node, match func(node, s *Node) bool) (*Node, error) {
	var found *Node
	err := t.view(ctx, "siblings", func(x *txn) error {
		node, err := x.findLive(n.ID)
		if err != nil {
			return err
		}
		siblings, err := x.FindByParent(t.cfg.ScopeOf(node), node.ParentID)
		if err != nil {
			return err
		}
		for _, s := range siblings {
			if !s.Equals(node) && match(node, s) {
				found = s
				return nil
			}
		}
		return nil
	})
	return found, err
}

// Leaves returns the leaf descendants of n ordered by left bound.
func (t *Tree) Leaves(ctx context.Context, n *Node) ([]*Node, error) {
	nodes, err := t.Descendants(ctx, n)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(nodes, func(d *Node) bool { return !d.IsLeaf() }), nil
}

// Level counts the ancestors of n by following parent links.
func (t *Tree) Level(ctx context.Context, n *Node) (int, error) {
	var depth int
	err := t.view(ctx, "level", func(x *txn) error {
		node, err := x.findLive(n.ID)
		if err != nil {
			return err
		}
		depth, err = x.level(node)
		return err
	})
	return depth, err
}

// Hierarchy returns n with its whole subtree nested in sibling order.
func (t *Tree) Hierarchy(ctx context.Context, n *Node) (*TreeNode, error) {
	nodes, err := t.DescendantsAndSelf(ctx, n)
	if err != nil {
		return nil, err
	}
	return t.buildHierarchy(nodes, nodes[0].ParentID)[0], nil
}

// ScopeHierarchy returns the whole forest of scope nested in sibling order.
func (t *Tree) ScopeHierarchy(ctx context.Context, scope Scope) ([]*TreeNode, error) {
	var nodes []*Node
	err := t.view(ctx, "hierarchy", func(x *txn) error {
		var err error
		nodes, err = x.Nodes(scope)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t.buildHierarchy(nodes, ""), nil
}

// buildHierarchy nests nodes under their parents starting from rootParent.
func (t *Tree) buildHierarchy(nodes []*Node, rootParent string) []*TreeNode {
	byParent := make(map[string][]*Node, len(nodes))
	for _, n := range nodes {
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}

	var build func(parentID string) []*TreeNode
	build = func(parentID string) []*TreeNode {
		children := byParent[parentID]
		t.cfg.sortSiblings(children)
		out := make([]*TreeNode, 0, len(children))
		for _, c := range children {
			out = append(out, &TreeNode{Node: c, Children: build(c.ID)})
		}
		return out
	}
	return build(rootParent)
}

// children returns the live children of parentID in sibling order.
func (x *txn) children(scope Scope, parentID string) ([]*Node, error) {
	nodes, err := x.FindByParent(scope, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load children of %q: %w", parentID, err)
	}
	x.t.cfg.sortSiblings(nodes)
	return nodes, nil
}

// ancestry returns node and its ancestors, root first.
func (x *txn) ancestry(node *Node) ([]*Node, error) {
	chain := []*Node{node}
	seen := map[string]bool{node.ID: true}
	for parentID := node.ParentID; parentID != ""; {
		if seen[parentID] {
			return nil, fmt.Errorf("%w: parent cycle through %s", ErrInvalidTreeState, parentID)
		}
		seen[parentID] = true
		parent, err := x.Find(parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ancestor %s: %w", parentID, err)
		}
		chain = append(chain, parent)
		parentID = parent.ParentID
	}
	slices.Reverse(chain)
	return chain, nil
}

// subtree returns the live node with the given id followed by its
// descendants, ordered by left bound.
func (x *txn) subtree(id string) ([]*Node, error) {
	node, err := x.findLive(id)
	if err != nil {
		return nil, err
	}
	descendants, err := x.Descendants(x.t.cfg.ScopeOf(node), node.Left, node.Right)
	if err != nil {
		return nil, fmt.Errorf("failed to load descendants of %s: %w", id, err)
	}
	slices.SortFunc(descendants, func(a, b *Node) int { return cmp.Compare(a.Left, b.Left) })
	return append([]*Node{node}, descendants...), nil
}
