// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import "context"

// Listener observes moves. Moving runs inside the store transaction, after
// the move preconditions pass and before any write; returning false vetoes
// the move and the call returns the unchanged node. Moved runs after commit.
//
// Listeners run synchronously and must not open their own store transactions.
type Listener interface {
	Moving(ctx context.Context, n *Node) bool
	Moved(ctx context.Context, n *Node)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnMoving func(ctx context.Context, n *Node) bool
	OnMoved  func(ctx context.Context, n *Node)
}

func (l ListenerFuncs) Moving(ctx context.Context, n *Node) bool {
	if l.OnMoving == nil {
		return true
	}
	return l.OnMoving(ctx, n)
}

func (l ListenerFuncs) Moved(ctx context.Context, n *Node) {
	if l.OnMoved != nil {
		l.OnMoved(ctx, n)
	}
}

type nopListener struct{}

func (nopListener) Moving(context.Context, *Node) bool { return true }
func (nopListener) Moved(context.Context, *Node)       {}
