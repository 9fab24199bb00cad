// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

// Package nestedset maintains ordered trees stored as flat records using the
// nested set encoding. Every node carries left/right bounds such that the
// descendants of a node are exactly the records whose bounds fall strictly
// inside its own, plus a parent pointer and a depth.
//
// The engine never persists anything itself. It drives a BoundStore through a
// narrow contract (lookups, ranged bulk updates, row locks and transactions)
// and keeps bounds, parents and depths consistent across Move, Rebuild, Map,
// Delete and Restore.
package nestedset

import (
	"encoding/json"
	"fmt"
	"time"
)

// Node is one stored tree member.
type Node struct {
	ID        string         `json:"id"`                  // ULID unless supplied by the caller
	ParentID  string         `json:"parent_id,omitempty"` // Empty for roots
	Left      int64          `json:"lft"`                 // 0 means unset
	Right     int64          `json:"rgt"`                 // 0 means unset
	Depth     int            `json:"depth"`
	Attrs     map[string]any `json:"attrs,omitempty"`      // Non-structural attributes (name, scope fields, order key)
	DeletedAt *time.Time     `json:"deleted_at,omitempty"` // Set while soft-deleted
}

// Clone returns a deep enough copy of n for callers to mutate freely.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Attrs != nil {
		c.Attrs = make(map[string]any, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v
		}
	}
	if n.DeletedAt != nil {
		at := *n.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

// Attr returns the named attribute or nil.
func (n *Node) Attr(name string) any {
	if n.Attrs == nil {
		return nil
	}
	return n.Attrs[name]
}

// SetAttr sets a non-structural attribute.
func (n *Node) SetAttr(name string, value any) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]any)
	}
	n.Attrs[name] = value
}

// Name is a convenience accessor for the "name" attribute.
func (n *Node) Name() string {
	if v := n.Attr("name"); v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Persisted reports whether the node has been assigned bounds by the engine.
func (n *Node) Persisted() bool {
	return n.ID != "" && n.Left > 0 && n.Right > 0
}

// Trashed reports whether the node is soft-deleted.
func (n *Node) Trashed() bool {
	return n.DeletedAt != nil
}

// Width is the size of the node's interval, including both bounds.
func (n *Node) Width() int64 {
	return n.Right - n.Left + 1
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Persisted() && n.Right-n.Left == 1
}

// IsChild reports whether the node has a parent.
func (n *Node) IsChild() bool {
	return !n.IsRoot()
}

// IsTrunk reports whether the node is neither a root nor a leaf.
func (n *Node) IsTrunk() bool {
	return !n.IsRoot() && !n.IsLeaf()
}

// Equals compares identity, not contents.
func (n *Node) Equals(other *Node) bool {
	return other != nil && n.ID != "" && n.ID == other.ID
}

// IsAncestorOf reports whether other lies strictly inside n.
// Both nodes must belong to the same scope for the answer to be meaningful.
func (n *Node) IsAncestorOf(other *Node) bool {
	return other != nil && n.Left < other.Left && other.Right < n.Right
}

// IsSelfOrAncestorOf is IsAncestorOf that also accepts n itself.
func (n *Node) IsSelfOrAncestorOf(other *Node) bool {
	return other != nil && n.Left <= other.Left && other.Right <= n.Right
}

// IsDescendantOf reports whether n lies strictly inside other.
func (n *Node) IsDescendantOf(other *Node) bool {
	return other != nil && other.IsAncestorOf(n)
}

// IsSelfOrDescendantOf is IsDescendantOf that also accepts other itself.
func (n *Node) IsSelfOrDescendantOf(other *Node) bool {
	return other != nil && other.IsSelfOrAncestorOf(n)
}

// InsideSubtree reports whether n is other or one of its descendants.
func (n *Node) InsideSubtree(other *Node) bool {
	return n.IsSelfOrDescendantOf(other)
}

// Serialize converts a Node to bytes for key/value storage.
func (n *Node) Serialize() ([]byte, error) {
	return json.Marshal(n)
}

// DeserializeNode creates a Node from bytes written by Serialize.
func DeserializeNode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to deserialize node: %w", err)
	}
	return &n, nil
}
