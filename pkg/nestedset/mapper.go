// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// Description is the desired shape of one node and its subtree.
// It decodes from YAML or JSON objects: "id" and "children" are structural,
// every other key becomes an attribute.
type Description struct {
	ID       string
	Attrs    map[string]any
	Children []Description
}

// Keys the engine owns and never copies from a description.
var ignoredKeys = map[string]bool{
	"parent_id": true,
	"lft":       true,
	"rgt":       true,
	"depth":     true,
}

// DescriptionFromMap converts a generic decoded object into a Description.
func DescriptionFromMap(m map[string]any) (Description, error) {
	var d Description
	for k, v := range m {
		switch {
		case k == "id":
			if v != nil {
				d.ID = FormatScopeValue(v)
			}
		case k == "children":
			if v == nil {
				continue
			}
			items, ok := v.([]any)
			if !ok {
				return d, fmt.Errorf("children of %q must be a list, got %T", d.ID, v)
			}
			for i, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					return d, fmt.Errorf("child %d must be an object, got %T", i, item)
				}
				child, err := DescriptionFromMap(obj)
				if err != nil {
					return d, err
				}
				d.Children = append(d.Children, child)
			}
		case ignoredKeys[k]:
		default:
			if d.Attrs == nil {
				d.Attrs = make(map[string]any)
			}
			d.Attrs[k] = v
		}
	}
	return d, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Description) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return fmt.Errorf("failed to decode description: %w", err)
	}
	parsed, err := DescriptionFromMap(m)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Description) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode description: %w", err)
	}
	parsed, err := DescriptionFromMap(m)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDescriptions decodes a YAML (or JSON) list of descriptions.
func ParseDescriptions(data []byte) ([]Description, error) {
	var descs []Description
	if err := yaml.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("failed to parse descriptions: %w", err)
	}
	return descs, nil
}

// Map reconciles the children of parentID with descs. Described nodes are
// created or updated in place and moved under their described parent, and
// every live descendant of parentID left out of descs is deleted. It returns
// the ids of every described node in visiting order.
//
// An empty parentID maps the roots of the scope holding nodes without scope
// attributes, pruning that whole scope; MapRoots selects any other scope.
// A parentID naming no live node fails with ErrNodeNotFound.
func (t *Tree) Map(ctx context.Context, parentID string, descs []Description) ([]string, error) {
	if parentID == "" {
		return t.MapRoots(ctx, t.cfg.ScopeOf(&Node{}), descs)
	}
	var touched []string
	err := t.update(ctx, "map", func(x *txn) error {
		if err := x.ensureValid(); err != nil {
			return err
		}
		parent, err := x.findLive(parentID)
		if err != nil {
			return err
		}
		scope := x.t.cfg.ScopeOf(parent)

		if touched, err = x.mapChildren(scope, parent.ID, descs); err != nil {
			return err
		}
		if parent, err = x.reload(parent); err != nil {
			return err
		}
		existing, err := x.Descendants(scope, parent.Left, parent.Right)
		if err != nil {
			return fmt.Errorf("failed to load descendants of %s: %w", parent.ID, err)
		}
		return x.prune(existing, touched)
	}, attribute.String("parent", parentID))
	if err != nil {
		return nil, err
	}
	return touched, nil
}

// MapRoots reconciles the whole forest of scope with descs.
func (t *Tree) MapRoots(ctx context.Context, scope Scope, descs []Description) ([]string, error) {
	var touched []string
	err := t.update(ctx, "map", func(x *txn) error {
		if err := x.ensureValid(); err != nil {
			return err
		}
		var err error
		if touched, err = x.mapChildren(scope, "", descs); err != nil {
			return err
		}
		existing, err := x.Nodes(scope)
		if err != nil {
			return fmt.Errorf("failed to load scope %s: %w", scope, err)
		}
		return x.prune(existing, touched)
	}, attribute.String("scope", scope.String()))
	if err != nil {
		return nil, err
	}
	return touched, nil
}

func (x *txn) mapChildren(scope Scope, parentID string, descs []Description) ([]string, error) {
	var touched []string
	for _, d := range descs {
		n := &Node{ID: d.ID}
		if d.ID != "" {
			stored, err := x.Find(d.ID)
			switch {
			case err == nil && stored.Trashed():
				return nil, fmt.Errorf("%w: %s is deleted", ErrNodeNotFound, d.ID)
			case err == nil:
				n = stored.Clone()
			case !isNotFound(err):
				return nil, err
			}
		}

		for k, v := range d.Attrs {
			n.SetAttr(k, v)
		}
		for _, f := range scope {
			if n.Attr(f.Name) == nil {
				n.SetAttr(f.Name, f.Value)
			}
		}
		n.ParentID = parentID

		saved, err := x.save(n)
		if err != nil {
			return nil, err
		}
		touched = append(touched, saved.ID)

		below, err := x.mapChildren(scope, saved.ID, d.Children)
		if err != nil {
			return nil, err
		}
		touched = append(touched, below...)
	}
	return touched, nil
}

// prune deletes the topmost existing rows that were not touched, rightmost
// first so earlier deletions never shift the bounds of later ones.
func (x *txn) prune(existing []*Node, touched []string) error {
	keep := make(map[string]bool, len(touched))
	for _, id := range touched {
		keep[id] = true
	}
	omitted := make(map[string]bool)
	for _, n := range existing {
		if !keep[n.ID] {
			omitted[n.ID] = true
		}
	}

	var tops []*Node
	for _, n := range existing {
		if omitted[n.ID] && !omitted[n.ParentID] {
			tops = append(tops, n)
		}
	}
	slices.SortFunc(tops, func(a, b *Node) int { return cmp.Compare(b.Left, a.Left) })

	for _, n := range tops {
		if err := x.delete(n); err != nil {
			return err
		}
	}
	if len(tops) > 0 {
		x.t.log.DebugContext(x.ctx, "pruned omitted subtrees", "count", len(tops))
	}
	return nil
}
