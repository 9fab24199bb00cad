// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func runLogs(cmd *cobra.Command, _ []string) error {
	entries, err := st.QueryLogs(levelFlag, limitFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, entries)
	}
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "%s %-7s %s", e.Timestamp, strings.ToUpper(e.Level), e.Message)
		if e.Op != "" {
			fmt.Fprintf(&b, " op=%s", e.Op)
		}
		if e.NodeID != "" {
			fmt.Fprintf(&b, " node=%s", e.NodeID)
		}
		if e.Scope != "" {
			fmt.Fprintf(&b, " scope=%s", e.Scope)
		}
		for _, k := range slices.Sorted(maps.Keys(e.Attrs)) {
			fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
		}
		fmt.Fprintln(out, b.String())
	}
	return nil
}
