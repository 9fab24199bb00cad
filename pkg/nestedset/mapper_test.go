// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// seedMapped builds a parent "p" with children "3" and "7".
func seedMapped(t *testing.T, e *env) {
	t.Helper()
	e.create(t, "p", "Parent", "")
	e.create(t, "3", "Three", "p")
	e.create(t, "7", "Seven", "p")
}

func TestMapReconcilesChildren(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		seedMapped(t, e)

		descs, err := nestedset.ParseDescriptions([]byte(`
- id: 3
  children:
    - name: X
`))
		require.NoError(t, err)

		touched, err := e.tree.Map(e.ctx, "p", descs)
		require.NoError(t, err)
		require.Len(t, touched, 2)
		assert.Equal(t, "3", touched[0])

		_, err = e.tree.Get(e.ctx, "7")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)

		three := e.get(t, "3")
		assert.Equal(t, "Three", three.Name())
		assert.Equal(t, [2]int64{2, 5}, [2]int64{three.Left, three.Right})

		x := e.get(t, touched[1])
		assert.Equal(t, "X", x.Name())
		assert.Equal(t, "3", x.ParentID)
		assert.Equal(t, 2, x.Depth)
		assert.Equal(t, [2]int64{3, 4}, [2]int64{x.Left, x.Right})
		assert.Equal(t, [2]int64{1, 6}, e.bounds(t, "p"))
		e.assertConsistent(t)
	})
}

func TestMapUpdatesAttributesInPlace(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		seedMapped(t, e)

		descs := []nestedset.Description{
			{ID: "7", Attrs: map[string]any{"name": "Seven!"}},
			{ID: "3"},
		}
		_, err := e.tree.Map(e.ctx, "p", descs)
		require.NoError(t, err)

		assert.Equal(t, "Seven!", e.get(t, "7").Name())
		assert.Equal(t, "Three", e.get(t, "3").Name())

		// Mapping never reorders existing siblings
		children, err := e.tree.Children(e.ctx, e.get(t, "p"))
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "7"}, names(children))
	})
}

func TestMapAdoptsNodeFromElsewhere(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		_, err := e.tree.Map(e.ctx, "root2", []nestedset.Description{{ID: "child1"}})
		require.NoError(t, err)

		assert.Equal(t, [2]int64{1, 8}, e.bounds(t, "root1"))
		assert.Equal(t, [2]int64{9, 12}, e.bounds(t, "root2"))
		assert.Equal(t, [2]int64{10, 11}, e.bounds(t, "child1"))
		assert.Equal(t, "root2", e.get(t, "child1").ParentID)
		e.assertConsistent(t)
	})
}

func TestMapRoots(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		descs := []nestedset.Description{
			{ID: "menu", Children: []nestedset.Description{{ID: "home"}, {ID: "about"}}},
			{ID: "footer"},
		}
		touched, err := e.tree.MapRoots(e.ctx, nil, descs)
		require.NoError(t, err)
		assert.Equal(t, []string{"menu", "home", "about", "footer"}, touched)
		assert.Equal(t, [2]int64{1, 6}, e.bounds(t, "menu"))
		assert.Equal(t, [2]int64{7, 8}, e.bounds(t, "footer"))

		_, err = e.tree.MapRoots(e.ctx, nil, []nestedset.Description{
			{ID: "menu", Children: []nestedset.Description{{ID: "about"}}},
		})
		require.NoError(t, err)

		roots, err := e.tree.Roots(e.ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"menu"}, names(roots))
		assert.Equal(t, [2]int64{2, 3}, e.bounds(t, "about"))
		_, err = e.tree.Get(e.ctx, "home")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)
		e.assertConsistent(t)
	})
}

func TestMapRootsFillsScope(t *testing.T) {
	cfg := nestedset.Config{ScopeFields: []string{"tenant"}}
	forEachBackend(t, cfg, func(t *testing.T, e *env) {
		scope := nestedset.Scope{{Name: "tenant", Value: "acme"}}

		_, err := e.tree.MapRoots(e.ctx, scope, []nestedset.Description{
			{ID: "r", Children: []nestedset.Description{{ID: "c"}}},
		})
		require.NoError(t, err)

		c := e.get(t, "c")
		assert.Equal(t, "acme", c.Attr("tenant"))
		assert.Equal(t, "r", c.ParentID)
		e.assertConsistent(t)
	})
}

func TestMapRejectsDeletedID(t *testing.T) {
	forEachBackend(t, nestedset.Config{SoftDelete: true}, func(t *testing.T, e *env) {
		seedMapped(t, e)
		require.NoError(t, e.tree.Delete(e.ctx, "7"))
		before := e.snapshot(t, nil)

		_, err := e.tree.Map(e.ctx, "p", []nestedset.Description{{ID: "7"}})
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)
		assert.Equal(t, before, e.snapshot(t, nil))
	})
}

func TestMapRollsBackOnFailure(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		seedMapped(t, e)
		before := e.snapshot(t, nil)

		// p cannot become a child of its own child
		descs := []nestedset.Description{
			{ID: "new"},
			{ID: "3", Children: []nestedset.Description{{ID: "p"}}},
		}
		_, err := e.tree.Map(e.ctx, "p", descs)
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)

		assert.Equal(t, before, e.snapshot(t, nil))
		_, err = e.tree.Get(e.ctx, "new")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)
	})
}

func TestMapWithoutParentMapsRoots(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		touched, err := e.tree.Map(e.ctx, "", []nestedset.Description{{ID: "root2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"root2"}, touched)

		roots, err := e.tree.Roots(e.ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"root2"}, names(roots))
		assert.Equal(t, [2]int64{1, 2}, e.bounds(t, "root2"))
		_, err = e.tree.Get(e.ctx, "child2.1")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)
		e.assertConsistent(t)
	})
}

func TestMapUnknownParent(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		_, err := e.tree.Map(e.ctx, "nope", nil)
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)
	})
}

func TestDescriptionDecoding(t *testing.T) {
	var d nestedset.Description
	err := json.Unmarshal([]byte(`{
		"id": 3,
		"name": "n",
		"lft": 9, "rgt": 10, "depth": 1, "parent_id": "x",
		"children": [{"name": "c"}]
	}`), &d)
	require.NoError(t, err)

	assert.Equal(t, "3", d.ID)
	assert.Equal(t, map[string]any{"name": "n"}, d.Attrs)
	require.Len(t, d.Children, 1)
	assert.Equal(t, "", d.Children[0].ID)
	assert.Equal(t, "c", d.Children[0].Attrs["name"])

	descs, err := nestedset.ParseDescriptions([]byte("- id: a\n  title: T\n  children: []\n- name: b\n"))
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "a", descs[0].ID)
	assert.Equal(t, "T", descs[0].Attrs["title"])
	assert.Empty(t, descs[0].Children)
	assert.Equal(t, "b", descs[1].Attrs["name"])
}

func TestDescriptionRejectsMalformedChildren(t *testing.T) {
	_, err := nestedset.DescriptionFromMap(map[string]any{"id": "a", "children": "x"})
	assert.ErrorContains(t, err, "must be a list")

	_, err = nestedset.DescriptionFromMap(map[string]any{"children": []any{1}})
	assert.ErrorContains(t, err, "must be an object")

	_, err = nestedset.ParseDescriptions([]byte("- children: nope\n"))
	assert.Error(t, err)
}
