// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package sqlstore

import (
	"fmt"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// BoundViolations returns live rows with null or inverted bounds, or whose
// interval is not strictly inside their live parent's, in one join.
func (t *sqlTx) BoundViolations() ([]string, error) {
	c := t.s.cols
	query := fmt.Sprintf(`SELECT c.%[2]s FROM %[1]s c
LEFT JOIN %[1]s p ON p.%[2]s = c.%[3]s AND p.%[6]s IS NULL AND %[7]s
WHERE c.%[6]s IS NULL AND (
	c.%[4]s IS NULL OR c.%[5]s IS NULL OR c.%[4]s <= 0 OR c.%[5]s <= 0 OR c.%[4]s >= c.%[5]s
	OR (c.%[3]s IS NOT NULL AND (p.%[2]s IS NULL OR c.%[4]s <= p.%[4]s OR c.%[5]s >= p.%[5]s))
)`, c.Table, c.ID, c.Parent, c.Left, c.Right, c.DeletedAt, t.s.scopeJoin("p", "c"))
	return t.queryIDs(query)
}

// DuplicateBounds returns live rows sharing a left or right bound with
// another live row of the same scope.
func (t *sqlTx) DuplicateBounds() ([]string, error) {
	var ids []string
	for _, bound := range []string{t.s.cols.Left, t.s.cols.Right} {
		found, err := t.queryIDs(t.duplicatesQuery(bound))
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

func (t *sqlTx) duplicatesQuery(bound string) string {
	c := t.s.cols
	groupCols := bound
	for _, f := range t.s.scope {
		groupCols = f + ", " + groupCols
	}
	return fmt.Sprintf(`SELECT c.%[2]s FROM %[1]s c
JOIN (
	SELECT %[4]s FROM %[1]s WHERE %[5]s IS NULL GROUP BY %[4]s HAVING COUNT(*) > 1
) d ON d.%[3]s = c.%[3]s AND %[6]s
WHERE c.%[5]s IS NULL`, c.Table, c.ID, bound, groupCols, c.DeletedAt, t.s.scopeJoin("d", "c"))
}

// RootsByScope returns the live roots of every scope keyed by scope key,
// each ordered by left bound.
func (t *sqlTx) RootsByScope() (map[string][]*nestedset.Node, error) {
	c := t.s.cols
	order := c.Left
	for i := len(t.s.scope) - 1; i >= 0; i-- {
		order = t.s.scope[i] + ", " + order
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NULL AND %s IS NULL ORDER BY %s",
		t.s.columnList(""), c.Table, c.DeletedAt, c.Parent, order)
	roots, err := t.queryNodes(query)
	if err != nil {
		return nil, err
	}

	byScope := make(map[string][]*nestedset.Node)
	for _, r := range roots {
		key := t.s.scopeOf(r).Key()
		byScope[key] = append(byScope[key], r)
	}
	return byScope, nil
}

func (t *sqlTx) queryIDs(query string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, t.s.dialect.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scopeOf reads the scope tuple of a scanned row.
func (s *Store) scopeOf(n *nestedset.Node) nestedset.Scope {
	scope := make(nestedset.Scope, len(s.scope))
	for i, name := range s.scope {
		scope[i] = nestedset.ScopeField{Name: name, Value: nestedset.FormatScopeValue(n.Attr(name))}
	}
	return scope
}
