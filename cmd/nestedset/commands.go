// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/config"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/store"
)

// --- Global Command Variables ---
var (
	configPath string
	asJSON     bool

	// opened in PersistentPreRunE, closed in PersistentPostRunE
	st *store.Store

	rootCmd = &cobra.Command{
		Use:   "nestedset",
		Short: "Inspect and edit a nested set tree",
		Long: `nestedset maintains trees stored with left/right bounds, parent ids
and depths. It works on a bolt file, a sqlite file or a postgres table,
as selected by the config file.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}

	// --- Tree-wide ---
	showCmd = &cobra.Command{
		Use:   "show [id]",
		Short: "Print a subtree, or every forest of the selected scope",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runShow,
	}
	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check bounds, duplicates and root overlap",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}
	rebuildCmd = &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every bound and depth from the parent ids",
		Args:  cobra.NoArgs,
		RunE:  runRebuild,
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Summarize every scope and validate the tree",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}
	mapCmd = &cobra.Command{
		Use:   "map <file>",
		Short: "Reconcile a YAML or JSON hierarchy into the tree",
		Long: `map reads a list of node descriptions and makes the children of --parent
(or the roots of --scope) match it. Described nodes are created or updated,
every other node below the target is deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: runMap,
	}

	// --- Single node ---
	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a node, as a new root or under --parent",
		Args:  cobra.NoArgs,
		RunE:  runCreate,
	}
	moveCmd = &cobra.Command{
		Use:   "move <id> <left|right|child|root|up|down|first-child> [target]",
		Short: "Move a node and its subtree",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runMove,
	}
	deleteCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a node and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	restoreCmd = &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted node and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}

	// --- Logs ---
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Print persisted log records (bolt only)",
		Args:  cobra.NoArgs,
		RunE:  runLogs,
	}
)

var (
	scopeFlag  string
	parentFlag string
	idFlag     string
	nameFlag   string
	attrFlags  []string
	forceFlag  bool
	scanFlag   bool
	levelFlag  string
	limitFlag  int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nestedset.yaml",
		"Config file; created with defaults when missing")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")

	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringVar(&scopeFlag, "scope", "", "Scope as field=value pairs separated by commas")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().BoolVar(&forceFlag, "force", false, "Rebuild even if the tree already validates")

	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&scanFlag, "scan", false, "Count stored rows by scanning instead of reading stats")

	rootCmd.AddCommand(mapCmd)
	mapCmd.Flags().StringVar(&parentFlag, "parent", "", "Parent whose children are reconciled")
	mapCmd.Flags().StringVar(&scopeFlag, "scope", "", "Scope whose roots are reconciled when --parent is empty")

	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&idFlag, "id", "", "Node id; a ULID is generated when empty")
	createCmd.Flags().StringVar(&nameFlag, "name", "", "Value of the name attribute")
	createCmd.Flags().StringVar(&parentFlag, "parent", "", "Parent id; empty creates a root")
	createCmd.Flags().StringArrayVar(&attrFlags, "attr", nil, "Extra attribute as key=value (repeatable)")

	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(restoreCmd)

	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&levelFlag, "level", "", "Only this level (debug, info, warning, error)")
	logsCmd.Flags().IntVar(&limitFlag, "limit", 50, "Newest records to print; 0 prints all")
}

func openStore(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return err
	}
	st, err = store.Open(cmd.Context(), cfg, store.WithLogOutput(cmd.ErrOrStderr()))
	return err
}

func closeStore(*cobra.Command, []string) error {
	if st == nil {
		return nil
	}
	err := st.Close()
	st = nil
	return err
}
