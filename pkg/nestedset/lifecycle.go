// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/utils"
)

// PendingMove is the reparent a save detected before the row was written.
// It is carried explicitly from beginSave to completeSave.
type PendingMove struct {
	ParentID string // "" makes the node a root
}

// Create persists a new node as the rightmost root of its scope and, when
// n.ParentID is set, moves it under that parent. An empty id gets a ULID.
func (t *Tree) Create(ctx context.Context, n *Node) (*Node, error) {
	if n == nil {
		return nil, errors.New("cannot create a nil node")
	}
	return t.persist(ctx, "create", n, true)
}

// Save writes n. New nodes behave as in Create. For stored nodes only the
// attributes are taken from n; bounds and depth stay engine-owned, and a
// changed ParentID is carried out as a move after the row is written.
func (t *Tree) Save(ctx context.Context, n *Node) (*Node, error) {
	if n == nil {
		return nil, errors.New("cannot save a nil node")
	}
	return t.persist(ctx, "save", n, false)
}

func (t *Tree) persist(ctx context.Context, op string, n *Node, createOnly bool) (*Node, error) {
	var saved *Node
	err := t.update(ctx, op, func(x *txn) error {
		if createOnly && n.ID != "" {
			if _, err := x.Find(n.ID); err == nil {
				return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
			} else if !isNotFound(err) {
				return err
			}
		}
		var err error
		saved, err = x.save(n.Clone())
		return err
	}, attribute.String("node", n.ID))
	if err != nil {
		return nil, err
	}
	*n = *saved
	return n, nil
}

// save runs the full two-step protocol inside the current transaction.
func (x *txn) save(n *Node) (*Node, error) {
	scope := x.t.cfg.ScopeOf(n)
	pending, err := x.beginSave(scope, n)
	if err != nil {
		return nil, err
	}
	if err := x.Save(scope, n); err != nil {
		return nil, fmt.Errorf("failed to save node %s: %w", n.ID, err)
	}
	return x.completeSave(n, pending)
}

// beginSave prepares n for writing. It assigns ids and initial bounds to new
// nodes, restores engine-owned fields on stored ones, and reports whether a
// reparent has to follow the write.
func (x *txn) beginSave(scope Scope, n *Node) (*PendingMove, error) {
	if n.ID == "" {
		n.ID = utils.GenerateULID()
	}

	stored, err := x.Find(n.ID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to load node %s: %w", n.ID, err)
	}

	requested := n.ParentID
	if stored == nil {
		maxRight, err := x.MaxRight(scope)
		if err != nil {
			return nil, fmt.Errorf("failed to read max right bound: %w", err)
		}
		n.Left = maxRight + 1
		n.Right = maxRight + 2
		n.Depth = 0
		n.ParentID = ""
		n.DeletedAt = nil
		if requested == "" {
			return nil, nil
		}
		return &PendingMove{ParentID: requested}, nil
	}

	if !x.t.cfg.ScopeOf(stored).Equal(scope) {
		return nil, moveNotPossible("a node cannot be moved to a different scope")
	}
	n.Left, n.Right, n.Depth = stored.Left, stored.Right, stored.Depth
	n.ParentID = stored.ParentID
	n.DeletedAt = stored.DeletedAt
	if requested == stored.ParentID {
		return nil, nil
	}
	if stored.Trashed() {
		return nil, moveNotPossible("a deleted node cannot be moved")
	}
	return &PendingMove{ParentID: requested}, nil
}

// completeSave performs the reparent recorded by beginSave. A pending reparent
// always changes the parent, so a result still under the old parent means the
// listener vetoed it and the whole save fails.
func (x *txn) completeSave(n *Node, pending *PendingMove) (*Node, error) {
	if pending == nil {
		return n, nil
	}
	var (
		moved *Node
		err   error
	)
	if pending.ParentID == "" {
		moved, err = x.move(n, nil, MakeRoot)
	} else {
		parent, ferr := x.findLive(pending.ParentID)
		if ferr != nil {
			if isNotFound(ferr) {
				return nil, moveNotPossible("could not resolve target node %q", pending.ParentID)
			}
			return nil, ferr
		}
		moved, err = x.move(n, parent, ChildOf)
	}
	if err != nil {
		return nil, err
	}
	if moved.ParentID != pending.ParentID {
		return nil, moveNotPossible("placing %s under %q was vetoed by listener", n.ID, pending.ParentID)
	}
	return moved, nil
}

// Delete removes the node with the given id together with its subtree and
// closes the gap. With SoftDelete the rows stay addressable for Restore.
func (t *Tree) Delete(ctx context.Context, id string) error {
	return t.update(ctx, "delete", func(x *txn) error {
		node, err := x.findLive(id)
		if err != nil {
			return err
		}
		return x.delete(node)
	}, attribute.String("node", id))
}

func (x *txn) delete(node *Node) error {
	scope := x.t.cfg.ScopeOf(node)
	maxRight, err := x.MaxRight(scope)
	if err != nil {
		return fmt.Errorf("failed to read max right bound: %w", err)
	}
	if err := x.LockRange(scope, node.Left, maxRight); err != nil {
		return fmt.Errorf("failed to lock bounds [%d, %d]: %w", node.Left, maxRight, err)
	}

	descendants, err := x.Descendants(scope, node.Left, node.Right)
	if err != nil {
		return fmt.Errorf("failed to load descendants of %s: %w", node.ID, err)
	}
	ids := make([]string, 0, len(descendants)+1)
	ids = append(ids, node.ID)
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}

	if x.t.cfg.SoftDelete {
		err = x.SoftDelete(scope, ids, x.t.now().UTC())
	} else {
		err = x.Delete(scope, ids)
	}
	if err != nil {
		return fmt.Errorf("failed to delete subtree of %s: %w", node.ID, err)
	}

	rows, err := x.ShiftFrom(scope, node.Right+1, -node.Width())
	if err != nil {
		return fmt.Errorf("failed to close gap after %s: %w", node.ID, err)
	}
	x.shifted += rows

	x.t.log.DebugContext(x.ctx, "deleted subtree",
		"node", node.ID, "scope", scope.String(), "rows", len(ids), "soft", x.t.cfg.SoftDelete)
	return nil
}

// Restore brings a soft-deleted node back at its old position, reopening the
// gap, and restores the descendants that were deleted along with it.
func (t *Tree) Restore(ctx context.Context, id string) (*Node, error) {
	var restored *Node
	err := t.update(ctx, "restore", func(x *txn) error {
		var err error
		restored, err = x.restore(id)
		return err
	}, attribute.String("node", id))
	return restored, err
}

func (x *txn) restore(id string) (*Node, error) {
	node, err := x.Find(id)
	if err != nil {
		return nil, err
	}
	if !node.Trashed() {
		return nil, fmt.Errorf("%w: node %s is not deleted", ErrRestoreNotPossible, id)
	}
	scope := x.t.cfg.ScopeOf(node)

	if err := x.checkRestorePosition(scope, node); err != nil {
		return nil, err
	}

	maxRight, err := x.MaxRight(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to read max right bound: %w", err)
	}
	if err := x.LockRange(scope, node.Left, maxRight); err != nil {
		return nil, fmt.Errorf("failed to lock bounds [%d, %d]: %w", node.Left, maxRight, err)
	}
	rows, err := x.ShiftFrom(scope, node.Left, node.Width())
	if err != nil {
		return nil, fmt.Errorf("failed to reopen gap for %s: %w", id, err)
	}
	x.shifted += rows

	ids := []string{node.ID}
	trashed, err := x.TrashedDescendants(scope, node.Left, node.Right)
	if err != nil {
		return nil, fmt.Errorf("failed to load deleted descendants of %s: %w", id, err)
	}
	for _, d := range trashed {
		if d.DeletedAt.Equal(*node.DeletedAt) {
			ids = append(ids, d.ID)
		}
	}
	if err := x.Restore(scope, ids); err != nil {
		return nil, fmt.Errorf("failed to restore subtree of %s: %w", id, err)
	}

	if node, err = x.reload(node); err != nil {
		return nil, err
	}
	if node, err = x.setDepthWithSubtree(scope, node); err != nil {
		return nil, err
	}
	x.t.log.DebugContext(x.ctx, "restored subtree", "node", id, "scope", scope.String(), "rows", len(ids))
	return node, nil
}

// checkRestorePosition verifies that a row reinserted at node.Left would
// land directly under its recorded parent. The deepest live node whose
// interval encloses that position must be the parent, or none for a root.
func (x *txn) checkRestorePosition(scope Scope, node *Node) error {
	pos := node.Left
	encloses := func(c *Node) bool { return c.Left < pos && pos <= c.Right }
	fail := func() error {
		return fmt.Errorf("%w: the original position of %s is no longer under its parent", ErrRestoreNotPossible, node.ID)
	}

	if node.ParentID != "" {
		parent, err := x.Find(node.ParentID)
		if err != nil {
			if isNotFound(err) {
				return fail()
			}
			return err
		}
		if parent.Trashed() || !encloses(parent) {
			return fail()
		}
	}

	children, err := x.FindByParent(scope, node.ParentID)
	if err != nil {
		return fmt.Errorf("failed to load children of %q: %w", node.ParentID, err)
	}
	for _, c := range children {
		if encloses(c) {
			return fail()
		}
	}
	return nil
}

// Reload refreshes n from the store.
func (t *Tree) Reload(ctx context.Context, n *Node) (*Node, error) {
	fresh, err := t.Get(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	*n = *fresh
	return n, nil
}
