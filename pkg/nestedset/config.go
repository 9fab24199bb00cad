// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// OrderLeft is the default sibling order key: the stored left bound.
const OrderLeft = "lft"

// Config describes one tree type. It is supplied once when the engine is built.
type Config struct {
	// ScopeFields names the attributes whose values partition the forest.
	// Empty means a single global scope.
	ScopeFields []string

	// OrderField names the attribute used to order siblings during Rebuild and
	// sibling listings. Empty or OrderLeft orders by the left bound.
	OrderField string

	// SoftDelete keeps deleted rows addressable so they can be restored later.
	SoftDelete bool

	// StrictChecks validates the whole tree before Move and Map and fails with
	// ErrInvalidTreeState instead of operating on a corrupt tree.
	StrictChecks bool

	// Listener receives moving/moved notifications. Nil means every vote proceeds.
	Listener Listener

	// Logger receives structured debug records for every structural mutation.
	// Nil falls back to slog.Default().
	Logger *slog.Logger
}

// ScopeOf derives the scope tuple of a node from its attributes.
func (c Config) ScopeOf(n *Node) Scope {
	scope := make(Scope, 0, len(c.ScopeFields))
	for _, name := range c.ScopeFields {
		scope = append(scope, ScopeField{Name: name, Value: FormatScopeValue(n.Attr(name))})
	}
	return scope
}

// applyScope copies scope values onto a node's attributes.
func (c Config) applyScope(n *Node, scope Scope) {
	for _, f := range scope {
		n.SetAttr(f.Name, f.Value)
	}
}

func (c Config) ordersByLeft() bool {
	return c.OrderField == "" || c.OrderField == OrderLeft
}

// compareSiblings orders nodes by the configured order key, tie-broken by id.
func (c Config) compareSiblings(a, b *Node) int {
	if c.ordersByLeft() {
		if r := cmp.Compare(a.Left, b.Left); r != 0 {
			return r
		}
	} else if r := compareValues(a.Attr(c.OrderField), b.Attr(c.OrderField)); r != 0 {
		return r
	}
	return cmp.Compare(a.ID, b.ID)
}

// sortSiblings sorts nodes in place using compareSiblings.
func (c Config) sortSiblings(nodes []*Node) {
	slices.SortFunc(nodes, c.compareSiblings)
}

// compareValues orders attribute values. Numbers compare numerically, nil
// sorts first, and anything else compares by its printed form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return cmp.Compare(af, bf)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
