// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/utils"
)

// parseScope turns "field=value,field=value" into a scope ordered by fields.
// Fields left out get the empty value.
func parseScope(fields []string, s string) (nestedset.Scope, error) {
	values := make(map[string]string)
	if s != "" {
		for _, pair := range strings.Split(s, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("scope pair %q is not field=value", pair)
			}
			values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	scope := make(nestedset.Scope, 0, len(fields))
	for _, f := range fields {
		scope = append(scope, nestedset.ScopeField{Name: f, Value: values[f]})
		delete(values, f)
	}
	if len(values) > 0 {
		unknown := slices.Sorted(maps.Keys(values))
		return nil, fmt.Errorf("not configured scope fields: %s", strings.Join(unknown, ", "))
	}
	return scope, nil
}

// parseAttrs turns key=value flags into attributes. Integers and booleans
// keep their type so they order and compare naturally.
func parseAttrs(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("attribute %q is not key=value", pair)
		}
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			attrs[k] = i
		} else if b, err := strconv.ParseBool(v); err == nil {
			attrs[k] = b
		} else {
			attrs[k] = v
		}
	}
	return attrs, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe renders one node on a single line.
func describe(n *nestedset.Node) string {
	label := n.Name()
	if label == "" {
		label = n.ID
	} else {
		label = fmt.Sprintf("%s (%s)", label, n.ID)
	}
	line := fmt.Sprintf("%s [%d,%d] depth=%d", label, n.Left, n.Right, n.Depth)
	if created, ok := utils.ULIDTime(n.ID); ok {
		line += " created=" + created.UTC().Format("2006-01-02T15:04:05Z")
	}
	if n.Trashed() {
		line += " deleted"
	}
	return line
}

// printHierarchy writes an indented outline of the nested nodes.
func printHierarchy(w io.Writer, nodes []*nestedset.TreeNode, indent int) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", indent), describe(n.Node))
		printHierarchy(w, n.Children, indent+1)
	}
}
