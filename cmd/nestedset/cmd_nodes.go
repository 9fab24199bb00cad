// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

func runCreate(cmd *cobra.Command, _ []string) error {
	attrs, err := parseAttrs(attrFlags)
	if err != nil {
		return err
	}
	n := &nestedset.Node{ID: idFlag, ParentID: parentFlag, Attrs: attrs}
	if nameFlag != "" {
		n.SetAttr("name", nameFlag)
	}
	if _, err := st.Tree().Create(cmd.Context(), n); err != nil {
		return err
	}
	return printNode(cmd, n)
}

// moveFunc performs one of the move verbs accepted on the command line.
type moveFunc func(ctx context.Context, t *nestedset.Tree, n *nestedset.Node, target string) (*nestedset.Node, error)

var moveVerbs = map[string]moveFunc{
	"up": func(ctx context.Context, t *nestedset.Tree, n *nestedset.Node, _ string) (*nestedset.Node, error) {
		return t.MoveLeft(ctx, n)
	},
	"down": func(ctx context.Context, t *nestedset.Tree, n *nestedset.Node, _ string) (*nestedset.Node, error) {
		return t.MoveRight(ctx, n)
	},
	"first-child": func(ctx context.Context, t *nestedset.Tree, n *nestedset.Node, target string) (*nestedset.Node, error) {
		return t.MakeFirstChildOf(ctx, n, target)
	},
}

func runMove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tree := st.Tree()
	n, err := tree.Get(ctx, args[0])
	if err != nil {
		return err
	}
	target := ""
	if len(args) == 3 {
		target = args[2]
	}

	if verb, ok := moveVerbs[args[1]]; ok {
		if _, err := verb(ctx, tree, n, target); err != nil {
			return err
		}
		return printNode(cmd, n)
	}

	pos, err := nestedset.ParsePosition(args[1])
	if err != nil {
		return err
	}
	if pos != nestedset.MakeRoot && target == "" {
		return fmt.Errorf("position %s needs a target id", pos)
	}
	if _, err := tree.Move(ctx, n, target, pos); err != nil {
		return err
	}
	return printNode(cmd, n)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := st.Tree().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	n, err := st.Tree().Restore(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printNode(cmd, n)
}

func printNode(cmd *cobra.Command, n *nestedset.Node) error {
	if asJSON {
		return printJSON(cmd.OutOrStdout(), n)
	}
	fmt.Fprintln(cmd.OutOrStdout(), describe(n))
	return nil
}
