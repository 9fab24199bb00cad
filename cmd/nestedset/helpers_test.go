// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
	"github.com/Project-Sylos/Sylos-NestedSet/pkg/utils"
)

func TestParseScope(t *testing.T) {
	fields := []string{"tenant", "kind"}

	scope, err := parseScope(fields, "kind=menu, tenant=acme")
	require.NoError(t, err)
	assert.Equal(t, nestedset.Scope{{Name: "tenant", Value: "acme"}, {Name: "kind", Value: "menu"}}, scope)

	scope, err = parseScope(fields, "")
	require.NoError(t, err)
	assert.Equal(t, nestedset.Scope{{Name: "tenant"}, {Name: "kind"}}, scope)

	_, err = parseScope(fields, "tenant")
	assert.ErrorContains(t, err, "not field=value")

	_, err = parseScope(fields, "zone=x,color=y")
	assert.ErrorContains(t, err, "not configured scope fields: color, zone")
}

func TestParseAttrs(t *testing.T) {
	attrs, err := parseAttrs([]string{"name=Home", "position=3", "hidden=true", "path=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":     "Home",
		"position": int64(3),
		"hidden":   true,
		"path":     "a=b",
	}, attrs)

	_, err = parseAttrs([]string{"=x"})
	assert.Error(t, err)
	_, err = parseAttrs([]string{"novalue"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	n := &nestedset.Node{ID: "a", Left: 1, Right: 2}
	assert.Equal(t, "a [1,2] depth=0", describe(n))

	n.SetAttr("name", "Home")
	now := time.Now()
	n.DeletedAt = &now
	assert.Equal(t, "Home (a) [1,2] depth=0 deleted", describe(n))

	generated := &nestedset.Node{ID: utils.GenerateULID(), Left: 3, Right: 4, Depth: 1}
	assert.Contains(t, describe(generated), " created=")
}

func TestPrintHierarchy(t *testing.T) {
	forest := []*nestedset.TreeNode{{
		Node: &nestedset.Node{ID: "r", Left: 1, Right: 4},
		Children: []*nestedset.TreeNode{{
			Node: &nestedset.Node{ID: "c", ParentID: "r", Left: 2, Right: 3, Depth: 1},
		}},
	}}

	var buf bytes.Buffer
	printHierarchy(&buf, forest, 0)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"r [1,4] depth=0", "  c [2,3] depth=1"}, lines)
}
