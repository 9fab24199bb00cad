// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/bolt"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/sqlstore"
)

// backend opens one kind of BoundStore for a test and knows how to write a
// row behind the engine's back.
type backend struct {
	name string
	open func(t *testing.T, scopeFields []string) (nestedset.BoundStore, corrupter)
}

// corrupter overwrites the stored bounds of one row without any bookkeeping.
type corrupter func(t *testing.T, id string, left, right int64)

var backends = []backend{
	{name: "bolt", open: openBolt},
	{name: "sqlite", open: openSQLite},
}

func openBolt(t *testing.T, _ []string) (nestedset.BoundStore, corrupter) {
	db, err := bolt.Open(bolt.Options{Path: filepath.Join(t.TempDir(), "tree.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	corrupt := func(t *testing.T, id string, left, right int64) {
		err := db.Update(func(tx *bbolt.Tx) error {
			n, scopeKey, err := bolt.GetNodeInTx(tx, id)
			if err != nil {
				return err
			}
			n.Left, n.Right = left, right
			return bolt.SetNodeInTx(tx, scopeKey, n)
		})
		require.NoError(t, err)
	}
	return bolt.NewStore(db), corrupt
}

func openSQLite(t *testing.T, scopeFields []string) (nestedset.BoundStore, corrupter) {
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "tree.sqlite"), sqlstore.Options{
		ScopeFields: scopeFields,
	})
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() { s.Close() })

	corrupt := func(t *testing.T, id string, left, right int64) {
		_, err := s.DB().ExecContext(ctx, "UPDATE nodes SET lft = ?, rgt = ? WHERE id = ?",
			sqlBound(left), sqlBound(right), id)
		require.NoError(t, err)
	}
	return s, corrupt
}

func sqlBound(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}

// env is one engine under test.
type env struct {
	ctx     context.Context
	tree    *nestedset.Tree
	corrupt corrupter
}

// forEachBackend runs fn once per backend with a fresh engine built from cfg.
func forEachBackend(t *testing.T, cfg nestedset.Config, fn func(t *testing.T, e *env)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			store, corrupt := b.open(t, cfg.ScopeFields)
			c := cfg
			if c.Logger == nil {
				c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			}
			fn(t, &env{ctx: context.Background(), tree: nestedset.New(store, c), corrupt: corrupt})
		})
	}
}

// create stores a named node under parentID ("" for a root).
func (e *env) create(t *testing.T, id, name, parentID string, attrs ...any) *nestedset.Node {
	t.Helper()
	n := &nestedset.Node{ID: id, ParentID: parentID}
	n.SetAttr("name", name)
	for i := 0; i+1 < len(attrs); i += 2 {
		n.SetAttr(attrs[i].(string), attrs[i+1])
	}
	_, err := e.tree.Create(e.ctx, n)
	require.NoError(t, err)
	return n
}

func (e *env) get(t *testing.T, id string) *nestedset.Node {
	t.Helper()
	n, err := e.tree.Get(e.ctx, id)
	require.NoError(t, err)
	return n
}

// bounds reports [left, right] of a node as stored.
func (e *env) bounds(t *testing.T, id string) [2]int64 {
	t.Helper()
	n := e.get(t, id)
	return [2]int64{n.Left, n.Right}
}

// snapshot captures left, right, parent and depth of every live node of scope.
func (e *env) snapshot(t *testing.T, scope nestedset.Scope) map[string]string {
	t.Helper()
	forest, err := e.tree.ScopeHierarchy(e.ctx, scope)
	require.NoError(t, err)
	out := make(map[string]string)
	var walk func(n *nestedset.TreeNode)
	walk = func(n *nestedset.TreeNode) {
		out[n.ID] = fmt.Sprintf("[%d,%d] parent=%s depth=%d", n.Left, n.Right, n.ParentID, n.Depth)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, root := range forest {
		walk(root)
	}
	return out
}

// assertConsistent checks containment, leaf equivalence and depth
// consistency over every scope, and that the validator agrees.
func (e *env) assertConsistent(t *testing.T) {
	t.Helper()
	report, err := e.tree.Validate(e.ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid(), "validation report: %+v", report)

	scopes, err := e.tree.Scopes(e.ctx)
	require.NoError(t, err)
	for _, scope := range scopes {
		forest, err := e.tree.ScopeHierarchy(e.ctx, scope)
		require.NoError(t, err)

		var walk func(n *nestedset.TreeNode, parent *nestedset.Node, depth int)
		walk = func(n *nestedset.TreeNode, parent *nestedset.Node, depth int) {
			assert.Equal(t, depth, n.Depth, "depth of %s", n.Name())
			assert.Equal(t, len(n.Children) == 0, n.Right-n.Left == 1, "leaf equivalence of %s", n.Name())
			if parent != nil {
				assert.True(t, parent.Left < n.Left && n.Right < parent.Right,
					"%s [%d,%d] not inside %s [%d,%d]", n.Name(), n.Left, n.Right, parent.Name(), parent.Left, parent.Right)
			}
			for _, c := range n.Children {
				walk(c, n.Node, depth+1)
			}
		}
		for _, root := range forest {
			walk(root, nil, 0)
		}
	}
}

// seed builds the reference forest:
//
//	root1 [1,10]
//	  child1 [2,3]
//	  child2 [4,7]
//	    child2.1 [5,6]
//	  child3 [8,9]
//	root2 [11,12]
func (e *env) seed(t *testing.T, attrs ...any) {
	t.Helper()
	e.create(t, "root1", "Root 1", "", attrs...)
	e.create(t, "child1", "Child 1", "root1", attrs...)
	e.create(t, "child2", "Child 2", "root1", attrs...)
	e.create(t, "child2.1", "Child 2.1", "child2", attrs...)
	e.create(t, "child3", "Child 3", "root1", attrs...)
	e.create(t, "root2", "Root 2", "", attrs...)
}

func names(nodes []*nestedset.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
