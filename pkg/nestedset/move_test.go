// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

func TestCreateBuildsSeedTree(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		want := map[string]string{
			"root1":    "[1,10] parent= depth=0",
			"child1":   "[2,3] parent=root1 depth=1",
			"child2":   "[4,7] parent=root1 depth=1",
			"child2.1": "[5,6] parent=child2 depth=2",
			"child3":   "[8,9] parent=root1 depth=1",
			"root2":    "[11,12] parent= depth=0",
		}
		assert.Equal(t, want, e.snapshot(t, nil))
		e.assertConsistent(t)
	})
}

func TestCreateAssignsULID(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		n := &nestedset.Node{}
		n.SetAttr("name", "generated")
		_, err := e.tree.Create(e.ctx, n)
		require.NoError(t, err)

		assert.Len(t, n.ID, 26)
		assert.Equal(t, int64(1), n.Left)
		assert.Equal(t, int64(2), n.Right)
		assert.Equal(t, "generated", e.get(t, n.ID).Name())
	})
}

func TestCreateRejectsTakenID(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.create(t, "a", "A", "")

		_, err := e.tree.Create(e.ctx, &nestedset.Node{ID: "a"})
		assert.ErrorIs(t, err, nestedset.ErrNodeExists)
	})
}

func TestCreateUnderMissingParent(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		_, err := e.tree.Create(e.ctx, &nestedset.Node{ID: "orphan", ParentID: "nope"})
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)

		// The whole save rolled back
		_, err = e.tree.Get(e.ctx, "orphan")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)
	})
}

func TestMoveLeftSwapsWithSibling(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		n := e.get(t, "child2")
		_, err := e.tree.MoveLeft(e.ctx, n)
		require.NoError(t, err)
		assert.Equal(t, [2]int64{2, 5}, [2]int64{n.Left, n.Right})

		assert.Equal(t, [2]int64{3, 4}, e.bounds(t, "child2.1"))
		assert.Equal(t, [2]int64{6, 7}, e.bounds(t, "child1"))

		left, err := e.tree.LeftSibling(e.ctx, n)
		require.NoError(t, err)
		assert.Nil(t, left)

		right, err := e.tree.RightSibling(e.ctx, n)
		require.NoError(t, err)
		require.NotNil(t, right)
		assert.Equal(t, "child1", right.ID)

		e.assertConsistent(t)
	})
}

func TestMoveRightSwapsWithSibling(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		n := e.get(t, "child1")
		_, err := e.tree.MoveRight(e.ctx, n)
		require.NoError(t, err)

		assert.Equal(t, [2]int64{2, 5}, e.bounds(t, "child2"))
		assert.Equal(t, [2]int64{6, 7}, e.bounds(t, "child1"))
		e.assertConsistent(t)
	})
}

func TestMoveBeyondOuterSiblingFails(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)
		before := e.snapshot(t, nil)

		_, err := e.tree.MoveLeft(e.ctx, e.get(t, "child1"))
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)

		_, err = e.tree.MoveRight(e.ctx, e.get(t, "child3"))
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)

		assert.Equal(t, before, e.snapshot(t, nil))
	})
}

func TestMakeChildOfKeepsSubtree(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		n := e.get(t, "child2")
		_, err := e.tree.MakeChildOf(e.ctx, n, "child1")
		require.NoError(t, err)

		assert.Equal(t, [2]int64{2, 7}, e.bounds(t, "child1"))
		assert.Equal(t, [2]int64{3, 6}, e.bounds(t, "child2"))
		assert.Equal(t, [2]int64{4, 5}, e.bounds(t, "child2.1"))
		assert.Equal(t, "root1", e.get(t, "child1").ParentID)
		assert.Equal(t, "child1", n.ParentID)
		assert.Equal(t, 2, n.Depth)
		assert.Equal(t, 3, e.get(t, "child2.1").Depth)

		e.assertConsistent(t)
	})
}

func TestMakeFirstChildOf(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		_, err := e.tree.MakeFirstChildOf(e.ctx, e.get(t, "child3"), "root1")
		require.NoError(t, err)

		assert.Equal(t, [2]int64{2, 3}, e.bounds(t, "child3"))
		assert.Equal(t, [2]int64{4, 5}, e.bounds(t, "child1"))
		assert.Equal(t, [2]int64{6, 9}, e.bounds(t, "child2"))
		assert.Equal(t, [2]int64{7, 8}, e.bounds(t, "child2.1"))
		e.assertConsistent(t)
	})
}

func TestMakeRootPromotesSubtree(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		n := e.get(t, "child2")
		_, err := e.tree.MakeRoot(e.ctx, n)
		require.NoError(t, err)

		want := map[string]string{
			"root1":    "[1,6] parent= depth=0",
			"child1":   "[2,3] parent=root1 depth=1",
			"child3":   "[4,5] parent=root1 depth=1",
			"root2":    "[7,8] parent= depth=0",
			"child2":   "[9,12] parent= depth=0",
			"child2.1": "[10,11] parent=child2 depth=1",
		}
		assert.Equal(t, want, e.snapshot(t, nil))

		roots, err := e.tree.Roots(e.ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"root1", "root2", "child2"}, names(roots))
		e.assertConsistent(t)
	})
}

func TestMoveToRightOfAcrossTrees(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		_, err := e.tree.MoveToRightOf(e.ctx, e.get(t, "root2"), "child2.1")
		require.NoError(t, err)

		root2 := e.get(t, "root2")
		assert.Equal(t, "child2", root2.ParentID)
		assert.Equal(t, 2, root2.Depth)
		assert.Equal(t, [2]int64{1, 12}, e.bounds(t, "root1"))
		assert.Equal(t, [2]int64{4, 9}, e.bounds(t, "child2"))
		assert.Equal(t, [2]int64{7, 8}, [2]int64{root2.Left, root2.Right})
		e.assertConsistent(t)
	})
}

// Every position has a destination equal to where the node already is.
func TestMoveNoOpPerPosition(t *testing.T) {
	cases := []struct {
		name   string
		node   string
		target string
		pos    nestedset.Position
	}{
		{"left of right sibling", "child1", "child2", nestedset.LeftOf},
		{"right of left sibling", "child2", "child1", nestedset.RightOf},
		{"last child of parent", "child3", "root1", nestedset.ChildOf},
		{"rightmost root", "root2", "", nestedset.MakeRoot},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var moving, moved int
			cfg := nestedset.Config{Listener: nestedset.ListenerFuncs{
				OnMoving: func(context.Context, *nestedset.Node) bool { moving++; return true },
				OnMoved:  func(context.Context, *nestedset.Node) { moved++ },
			}}
			forEachBackend(t, cfg, func(t *testing.T, e *env) {
				// Seeding places children through moves; count only what follows
				e.seed(t)
				moving, moved = 0, 0
				before := e.snapshot(t, nil)

				n, err := e.tree.Move(e.ctx, e.get(t, tc.node), tc.target, tc.pos)
				require.NoError(t, err)
				assert.Equal(t, tc.node, n.ID)

				assert.Equal(t, before, e.snapshot(t, nil))
				assert.Equal(t, 1, moving)
				assert.Equal(t, 1, moved)
			})
		})
	}
}

func TestMoveIsReversible(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)
		original := e.snapshot(t, nil)

		n := e.get(t, "child1")
		_, err := e.tree.MoveToLeftOf(e.ctx, n, "child3")
		require.NoError(t, err)
		assert.Equal(t, [2]int64{6, 7}, [2]int64{n.Left, n.Right})
		assert.Equal(t, [2]int64{2, 5}, e.bounds(t, "child2"))
		assert.Equal(t, [2]int64{3, 4}, e.bounds(t, "child2.1"))

		_, err = e.tree.MoveToLeftOf(e.ctx, n, "child2")
		require.NoError(t, err)
		assert.Equal(t, original, e.snapshot(t, nil))
	})
}

func TestMakeSiblingOfIsRightOf(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		e.seed(t)

		_, err := e.tree.MakeSiblingOf(e.ctx, e.get(t, "child1"), "child3")
		require.NoError(t, err)

		siblings, err := e.tree.Children(e.ctx, e.get(t, "root1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"child2", "child3", "child1"}, names(siblings))
		e.assertConsistent(t)
	})
}

func TestMoveGuards(t *testing.T) {
	forEachBackend(t, nestedset.Config{SoftDelete: true}, func(t *testing.T, e *env) {
		e.seed(t)
		e.create(t, "gone", "Gone", "root2")
		require.NoError(t, e.tree.Delete(e.ctx, "gone"))
		before := e.snapshot(t, nil)

		cases := []struct {
			name   string
			node   *nestedset.Node
			target string
			pos    nestedset.Position
		}{
			{"to itself", e.get(t, "child2"), "child2", nestedset.ChildOf},
			{"into own subtree", e.get(t, "child2"), "child2.1", nestedset.ChildOf},
			{"beside own descendant", e.get(t, "root1"), "child2.1", nestedset.LeftOf},
			{"unknown position", e.get(t, "child1"), "root2", nestedset.Position(9)},
			{"missing target", e.get(t, "child1"), "nope", nestedset.LeftOf},
			{"deleted target", e.get(t, "child1"), "gone", nestedset.ChildOf},
			{"new node", &nestedset.Node{}, "root2", nestedset.ChildOf},
			{"unsaved node", &nestedset.Node{ID: "ghost"}, "root2", nestedset.ChildOf},
			{"deleted node", e.get(t, "gone"), "root1", nestedset.ChildOf},
		}
		for _, tc := range cases {
			_, err := e.tree.Move(e.ctx, tc.node, tc.target, tc.pos)
			assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible, tc.name)
		}

		assert.Equal(t, before, e.snapshot(t, nil))
	})
}

func TestMovingListenerVeto(t *testing.T) {
	var (
		armed bool
		moved []string
	)
	cfg := nestedset.Config{Listener: nestedset.ListenerFuncs{
		OnMoving: func(_ context.Context, n *nestedset.Node) bool { return !armed || n.ID != "child2" },
		OnMoved:  func(_ context.Context, n *nestedset.Node) { moved = append(moved, n.ID) },
	}}
	forEachBackend(t, cfg, func(t *testing.T, e *env) {
		armed = false
		e.seed(t)
		armed, moved = true, nil
		before := e.snapshot(t, nil)

		n := e.get(t, "child2")
		out, err := e.tree.MakeChildOf(e.ctx, n, "child1")
		require.NoError(t, err)
		assert.Equal(t, "root1", out.ParentID)
		assert.Equal(t, before, e.snapshot(t, nil))
		assert.Empty(t, moved)

		_, err = e.tree.MakeChildOf(e.ctx, e.get(t, "child3"), "child1")
		require.NoError(t, err)
		assert.Equal(t, []string{"child3"}, moved)
	})
}

func TestMovedReceivesFinalState(t *testing.T) {
	var got *nestedset.Node
	cfg := nestedset.Config{Listener: nestedset.ListenerFuncs{
		OnMoved: func(_ context.Context, n *nestedset.Node) { got = n.Clone() },
	}}
	forEachBackend(t, cfg, func(t *testing.T, e *env) {
		e.seed(t)
		got = nil

		_, err := e.tree.MakeChildOf(e.ctx, e.get(t, "child2"), "child1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "child1", got.ParentID)
		assert.Equal(t, [2]int64{3, 6}, [2]int64{got.Left, got.Right})
		assert.Equal(t, 2, got.Depth)
	})
}

func TestStrictChecksRejectCorruptTree(t *testing.T) {
	forEachBackend(t, nestedset.Config{StrictChecks: true}, func(t *testing.T, e *env) {
		e.seed(t)
		e.corrupt(t, "child1", 0, 3)

		_, err := e.tree.MoveRight(e.ctx, e.get(t, "child2"))
		assert.ErrorIs(t, err, nestedset.ErrInvalidTreeState)

		_, err = e.tree.Map(e.ctx, "root2", nil)
		assert.ErrorIs(t, err, nestedset.ErrInvalidTreeState)

		require.NoError(t, e.tree.Rebuild(e.ctx, false))
		_, err = e.tree.MoveRight(e.ctx, e.get(t, "child2"))
		assert.NoError(t, err)
	})
}

func TestConcurrentCreatesStayValid(t *testing.T) {
	forEachBackend(t, nestedset.Config{}, func(t *testing.T, e *env) {
		const workers = 20
		errs := make(chan error, workers)
		for range workers {
			go func() {
				_, err := e.tree.Create(e.ctx, &nestedset.Node{})
				errs <- err
			}()
		}
		for range workers {
			require.NoError(t, <-errs)
		}

		roots, err := e.tree.Roots(e.ctx, nil)
		require.NoError(t, err)
		assert.Len(t, roots, workers)
		for i, r := range roots {
			assert.Equal(t, int64(2*i+1), r.Left)
		}
		e.assertConsistent(t)
	})
}

func TestPositionParsing(t *testing.T) {
	for in, want := range map[string]nestedset.Position{
		"left":      nestedset.LeftOf,
		"left-of":   nestedset.LeftOf,
		"right-of":  nestedset.RightOf,
		"child":     nestedset.ChildOf,
		"make-root": nestedset.MakeRoot,
	} {
		got, err := nestedset.ParsePosition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := nestedset.ParsePosition("above")
	assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)

	assert.Equal(t, "child", nestedset.ChildOf.String())
	assert.Equal(t, "Position(0)", nestedset.Position(0).String())
	assert.False(t, nestedset.Position(0).Valid())
}

func TestCreateAndSaveNotifyListener(t *testing.T) {
	var moved []string
	cfg := nestedset.Config{Listener: nestedset.ListenerFuncs{
		OnMoved: func(_ context.Context, n *nestedset.Node) { moved = append(moved, n.ID) },
	}}
	forEachBackend(t, cfg, func(t *testing.T, e *env) {
		moved = nil
		e.create(t, "r", "Root", "")
		assert.Empty(t, moved)

		e.create(t, "c", "Child", "r")
		assert.Equal(t, []string{"c"}, moved)
	})
}

func TestVetoedPlacementFailsSave(t *testing.T) {
	var armed bool
	cfg := nestedset.Config{Listener: nestedset.ListenerFuncs{
		OnMoving: func(_ context.Context, n *nestedset.Node) bool {
			return !armed || (n.ID != "kid" && n.ID != "child1")
		},
	}}
	forEachBackend(t, cfg, func(t *testing.T, e *env) {
		armed = false
		e.seed(t)
		armed = true
		before := e.snapshot(t, nil)

		_, err := e.tree.Create(e.ctx, &nestedset.Node{ID: "kid", ParentID: "root1"})
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)
		assert.ErrorContains(t, err, "vetoed by listener")
		_, err = e.tree.Get(e.ctx, "kid")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)

		child1 := e.get(t, "child1")
		child1.ParentID = "root2"
		child1.SetAttr("name", "renamed")
		_, err = e.tree.Save(e.ctx, child1)
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)
		assert.Equal(t, "Child 1", e.get(t, "child1").Name())

		_, err = e.tree.Map(e.ctx, "root2", []nestedset.Description{{ID: "kid"}})
		assert.ErrorIs(t, err, nestedset.ErrMoveNotPossible)
		_, err = e.tree.Get(e.ctx, "kid")
		assert.ErrorIs(t, err, nestedset.ErrNodeNotFound)

		assert.Equal(t, before, e.snapshot(t, nil))
	})
}
