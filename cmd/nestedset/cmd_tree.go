// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/store"
)

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tree := st.Tree()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		node, err := tree.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if node.Trashed() {
			if asJSON {
				return printJSON(out, node)
			}
			fmt.Fprintln(out, describe(node))
			return nil
		}
		h, err := tree.Hierarchy(ctx, node)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(out, h)
		}
		printHierarchy(out, []*nestedset.TreeNode{h}, 0)
		return nil
	}

	var scopes []nestedset.Scope
	if scopeFlag != "" || len(st.Config().Tree.ScopeFields) == 0 {
		scope, err := parseScope(st.Config().Tree.ScopeFields, scopeFlag)
		if err != nil {
			return err
		}
		scopes = []nestedset.Scope{scope}
	} else {
		var err error
		if scopes, err = tree.Scopes(ctx); err != nil {
			return err
		}
	}

	forests := make(map[string][]*nestedset.TreeNode, len(scopes))
	for _, scope := range scopes {
		forest, err := tree.ScopeHierarchy(ctx, scope)
		if err != nil {
			return err
		}
		if asJSON {
			forests[scope.String()] = forest
			continue
		}
		if len(scopes) > 1 {
			fmt.Fprintf(out, "# %s\n", scope)
		}
		printHierarchy(out, forest, 0)
	}
	if asJSON {
		return printJSON(out, forests)
	}
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	report, err := st.Tree().Validate(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if !report.Valid() {
		return fmt.Errorf("%w: failed checks %v", nestedset.ErrInvalidTreeState, report.Failed())
	}
	return nil
}

func printReport(out io.Writer, report nestedset.Report) {
	if report.Valid() {
		fmt.Fprintln(out, "tree is valid")
		return
	}
	for _, c := range []struct {
		check nestedset.Check
		ids   []string
	}{
		{nestedset.CheckBounds, report.Bounds},
		{nestedset.CheckDuplicates, report.Duplicates},
		{nestedset.CheckRoots, report.Roots},
	} {
		if len(c.ids) > 0 {
			fmt.Fprintf(out, "%s: %d node(s): %v\n", c.check, len(c.ids), c.ids)
		}
	}
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	if err := st.Tree().Rebuild(cmd.Context(), forceFlag); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "rebuild complete")
	return nil
}

func runInspect(cmd *cobra.Command, _ []string) error {
	mode := store.InspectionModeStats
	if scanFlag {
		mode = store.InspectionModeScan
	}
	report, err := st.InspectDatabase(cmd.Context(), mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, report)
	}
	fmt.Fprintf(out, "driver: %s\n", report.Driver)
	for _, s := range report.Scopes {
		fmt.Fprintf(out, "scope %s: roots=%d live=%d leaves=%d max_depth=%d", s.Scope, s.Roots, s.LiveNodes, s.Leaves, s.MaxDepth)
		if s.StoredRows >= 0 {
			fmt.Fprintf(out, " stored=%d", s.StoredRows)
		}
		fmt.Fprintln(out)
	}
	printReport(out, report.Validation)
	return nil
}

func runMap(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	descs, err := nestedset.ParseDescriptions(data)
	if err != nil {
		return err
	}

	var ids []string
	if parentFlag != "" {
		ids, err = st.Tree().Map(cmd.Context(), parentFlag, descs)
	} else {
		scope, perr := parseScope(st.Config().Tree.ScopeFields, scopeFlag)
		if perr != nil {
			return perr
		}
		ids, err = st.Tree().MapRoots(cmd.Context(), scope, descs)
	}
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), ids)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mapped %d node(s)\n", len(ids))
	return nil
}
