// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Check names one of the three validity checks.
type Check string

const (
	CheckBounds     Check = "bounds"
	CheckDuplicates Check = "duplicates"
	CheckRoots      Check = "roots"
)

// Report lists the ids of the rows failing each check.
type Report struct {
	Bounds     []string `json:"bounds,omitempty"`     // null or inverted bounds, or not strictly inside the parent
	Duplicates []string `json:"duplicates,omitempty"` // sharing a left or right bound within a scope
	Roots      []string `json:"roots,omitempty"`      // roots overlapping the previous root of their scope
}

// Valid reports whether every check passed.
func (r Report) Valid() bool {
	return len(r.Bounds) == 0 && len(r.Duplicates) == 0 && len(r.Roots) == 0
}

// Failed lists the checks that did not pass.
func (r Report) Failed() []Check {
	var failed []Check
	if len(r.Bounds) > 0 {
		failed = append(failed, CheckBounds)
	}
	if len(r.Duplicates) > 0 {
		failed = append(failed, CheckDuplicates)
	}
	if len(r.Roots) > 0 {
		failed = append(failed, CheckRoots)
	}
	return failed
}

// IsValid runs all checks and reports whether the stored tree is consistent.
func (t *Tree) IsValid(ctx context.Context) (bool, error) {
	report, err := t.Validate(ctx)
	if err != nil {
		return false, err
	}
	return report.Valid(), nil
}

// Validate runs all checks and returns the offending rows. It never writes.
func (t *Tree) Validate(ctx context.Context) (Report, error) {
	var report Report
	ctx, finish := startOp(ctx, "validate")
	err := t.view(ctx, "validate", func(x *txn) error {
		var err error
		report, err = x.validate()
		return err
	})
	finish(err)
	return report, err
}

func (x *txn) validate() (Report, error) {
	if bulk, ok := x.Tx.(BulkValidator); ok {
		return validateBulk(bulk)
	}

	var report Report
	scopes, err := x.Scopes()
	if err != nil {
		return report, fmt.Errorf("failed to list scopes: %w", err)
	}
	for _, scope := range scopes {
		nodes, err := x.Nodes(scope)
		if err != nil {
			return report, fmt.Errorf("failed to load scope %s: %w", scope, err)
		}
		report.Bounds = append(report.Bounds, boundViolations(nodes)...)
		report.Duplicates = append(report.Duplicates, duplicateBounds(nodes)...)

		var roots []*Node
		for _, n := range nodes {
			if n.ParentID == "" {
				roots = append(roots, n)
			}
		}
		report.Roots = append(report.Roots, overlappingRoots(roots)...)
	}
	return report.normalized(), nil
}

func validateBulk(bulk BulkValidator) (Report, error) {
	var report Report
	var err error
	if report.Bounds, err = bulk.BoundViolations(); err != nil {
		return report, fmt.Errorf("failed to check bounds: %w", err)
	}
	if report.Duplicates, err = bulk.DuplicateBounds(); err != nil {
		return report, fmt.Errorf("failed to check duplicate bounds: %w", err)
	}
	byScope, err := bulk.RootsByScope()
	if err != nil {
		return report, fmt.Errorf("failed to load roots: %w", err)
	}
	for _, roots := range byScope {
		report.Roots = append(report.Roots, overlappingRoots(roots)...)
	}
	return report.normalized(), nil
}

// boundViolations flags null or inverted bounds and rows not strictly inside
// their parent. A parent that is missing from the scope counts as a violation.
func boundViolations(nodes []*Node) []string {
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var ids []string
	for _, n := range nodes {
		if n.Left <= 0 || n.Right <= 0 || n.Left >= n.Right {
			ids = append(ids, n.ID)
			continue
		}
		if n.ParentID == "" {
			continue
		}
		parent, ok := byID[n.ParentID]
		if !ok || !(parent.Left < n.Left && n.Right < parent.Right) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func duplicateBounds(nodes []*Node) []string {
	lefts := make(map[int64][]string)
	rights := make(map[int64][]string)
	for _, n := range nodes {
		lefts[n.Left] = append(lefts[n.Left], n.ID)
		rights[n.Right] = append(rights[n.Right], n.ID)
	}

	var ids []string
	for _, group := range []map[int64][]string{lefts, rights} {
		for _, sharing := range group {
			if len(sharing) > 1 {
				ids = append(ids, sharing...)
			}
		}
	}
	return ids
}

// overlappingRoots sorts roots by left and flags every root that does not
// start and end after the previous one.
func overlappingRoots(roots []*Node) []string {
	sorted := slices.Clone(roots)
	slices.SortFunc(sorted, func(a, b *Node) int {
		if r := cmp.Compare(a.Left, b.Left); r != 0 {
			return r
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var ids []string
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Left <= prev.Right || cur.Right <= prev.Right {
			ids = append(ids, cur.ID)
		}
	}
	return ids
}

func (r Report) normalized() Report {
	return Report{
		Bounds:     uniqueSorted(r.Bounds),
		Duplicates: uniqueSorted(r.Duplicates),
		Roots:      uniqueSorted(r.Roots),
	}
}

func uniqueSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return slices.Compact(ids)
}
