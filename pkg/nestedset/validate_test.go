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

func TestValidateDetectsCorruption(t *testing.T) {
	cases := []struct {
		name        string
		node        string
		left, right int64
		want        nestedset.Report
	}{
		{
			name: "null left bound",
			node: "child1", left: 0, right: 3,
			want: nestedset.Report{Bounds: []string{"child1"}},
		},
		{
			name: "inverted bounds",
			node: "child1", left: 3, right: 2,
			want: nestedset.Report{Bounds: []string{"child1"}},
		},
		{
			name: "outside parent",
			node: "child2.1", left: 5, right: 8,
			want: nestedset.Report{Bounds: []string{"child2.1"}},
		},
		{
			name: "shared left bound",
			node: "child3", left: 4, right: 9,
			want: nestedset.Report{Duplicates: []string{"child2", "child3"}},
		},
		{
			name: "overlapping roots",
			node: "root2", left: 9, right: 12,
			want: nestedset.Report{Roots: []string{"root2"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
				e.seed(t)
				e.corrupt(t, tc.node, tc.left, tc.right)

				report, err := e.tree.Validate(e.ctx)
				require.NoError(t, err)
				assert.Equal(t, tc.want, report)

				valid, err := e.tree.IsValid(e.ctx)
				require.NoError(t, err)
				assert.False(t, valid)
			})
		})
	}
}

func TestValidateIgnoresDeletedRows(t *testing.T) {
	forEachBackend(t, nestedset.Config{SoftDelete: true}, func(t *testing.T, e *env) {
		e.seed(t)
		require.NoError(t, e.tree.Delete(e.ctx, "child2"))

		// The trashed rows keep their old bounds, which now collide with child3
		assert.Equal(t, [2]int64{4, 5}, e.bounds(t, "child3"))
		assert.Equal(t, [2]int64{4, 7}, e.bounds(t, "child2"))

		valid, err := e.tree.IsValid(e.ctx)
		require.NoError(t, err)
		assert.True(t, valid)
	})
}

func TestReportFailedAndJSON(t *testing.T) {
	r := nestedset.Report{Roots: []string{"r"}, Bounds: []string{"b"}}
	assert.False(t, r.Valid())
	assert.Equal(t, []nestedset.Check{nestedset.CheckBounds, nestedset.CheckRoots}, r.Failed())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bounds":["b"],"roots":["r"]}`, string(data))

	assert.True(t, nestedset.Report{}.Valid())
	assert.Empty(t, nestedset.Report{}.Failed())
}

func TestRebuildRepairsNullBound(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)
		original := e.snapshot(t, nil)
		e.corrupt(t, "child1", 0, 3)

		require.NoError(t, e.tree.Rebuild(e.ctx, false))
		assert.Equal(t, original, e.snapshot(t, nil))
		e.assertConsistent(t)
	})
}

func TestRebuildIsFixpointOnValidTree(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)
		original := e.snapshot(t, nil)

		require.NoError(t, e.tree.Rebuild(e.ctx, false))
		assert.Equal(t, original, e.snapshot(t, nil))

		require.NoError(t, e.tree.Rebuild(e.ctx, true))
		assert.Equal(t, original, e.snapshot(t, nil))
	})
}

func TestRebuildOrdersByStoredLeft(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)
		e.corrupt(t, "child2", 50, 60)

		require.NoError(t, e.tree.Rebuild(e.ctx, false))

		want := map[string]string{
			"root1":    "[1,10] parent= depth=0",
			"child1":   "[2,3] parent=root1 depth=1",
			"child3":   "[4,5] parent=root1 depth=1",
			"child2":   "[6,9] parent=root1 depth=1",
			"child2.1": "[7,8] parent=child2 depth=2",
			"root2":    "[11,12] parent= depth=0",
		}
		assert.Equal(t, want, e.snapshot(t, nil))
		e.assertConsistent(t)
	})
}

func TestRebuildUsesOrderField(t *testing.T) {
	forEachBackend(t, nestedset.Config{OrderField: "position"}, func(t *testing.T, e *env) {
		e.create(t, "r", "Root", "")
		e.create(t, "a", "A", "r", "position", 3)
		e.create(t, "b", "B", "r", "position", 1)
		e.create(t, "c", "C", "r", "position", 2)
		assert.Equal(t, [2]int64{2, 3}, e.bounds(t, "a"))

		// Sibling listings already follow the order field
		children, err := e.tree.Children(e.ctx, e.get(t, "r"))
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "a"}, names(children))

		require.NoError(t, e.tree.Rebuild(e.ctx, true))
		assert.Equal(t, [2]int64{2, 3}, e.bounds(t, "b"))
		assert.Equal(t, [2]int64{4, 5}, e.bounds(t, "c"))
		assert.Equal(t, [2]int64{6, 7}, e.bounds(t, "a"))
		e.assertConsistent(t)
	})
}

func TestRebuildPerScope(t *testing.T) {
	cfg := nestedset.Config{ScopeFields: []string{"tenant"}}
	forEachBackend(t, cfg, func(t *testing.T, e *env) {
		e.create(t, "a-root", "A", "", "tenant", "a")
		e.create(t, "a-1", "A1", "a-root", "tenant", "a")
		e.create(t, "b-root", "B", "", "tenant", "b")
		e.create(t, "b-1", "B1", "b-root", "tenant", "b")
		e.corrupt(t, "b-1", 7, 8)

		report, err := e.tree.Validate(e.ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b-1"}, report.Bounds)

		require.NoError(t, e.tree.Rebuild(e.ctx, false))
		assert.Equal(t, [2]int64{2, 3}, e.bounds(t, "b-1"))
		assert.Equal(t, [2]int64{2, 3}, e.bounds(t, "a-1"))
		e.assertConsistent(t)
	})
}
