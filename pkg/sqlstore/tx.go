// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset"
)

// maxBatch bounds the ids bound into one IN list.
const maxBatch = 500

// sqlTx implements nestedset.Tx over one database/sql transaction.
type sqlTx struct {
	s   *Store
	tx  *sql.Tx
	ctx context.Context
}

func (t *sqlTx) exec(query string, args ...any) (int, error) {
	res, err := t.tx.ExecContext(t.ctx, t.s.dialect.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// queryNodes runs a query projecting columnList and decodes every row.
func (t *sqlTx) queryNodes(query string, args ...any) ([]*nestedset.Node, error) {
	rows, err := t.tx.QueryContext(t.ctx, t.s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*nestedset.Node
	for rows.Next() {
		n, err := t.s.scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// liveWhere selects the live rows of scope, followed by an optional extra predicate.
func (t *sqlTx) liveWhere(scope nestedset.Scope, extra string) (string, []any, error) {
	filter, args, err := t.s.scopeFilter("", scope)
	if err != nil {
		return "", nil, err
	}
	where := fmt.Sprintf("%s IS NULL AND %s", t.s.cols.DeletedAt, filter)
	if extra != "" {
		where += " AND " + extra
	}
	return where, args, nil
}

func (t *sqlTx) selectLive(scope nestedset.Scope, extra string, extraArgs ...any) ([]*nestedset.Node, error) {
	where, args, err := t.liveWhere(scope, extra)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", t.s.columnList(""), t.s.cols.Table, where)
	return t.queryNodes(query, append(args, extraArgs...)...)
}

func (t *sqlTx) Find(id string) (*nestedset.Node, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.s.columnList(""), t.s.cols.Table, t.s.cols.ID)
	row := t.tx.QueryRowContext(t.ctx, t.s.dialect.rebind(query), id)
	n, err := t.s.scanNode(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", nestedset.ErrNodeNotFound, id)
	}
	return n, err
}

func (t *sqlTx) Scopes() ([]nestedset.Scope, error) {
	c := t.s.cols
	if len(t.s.scope) == 0 {
		var one int
		query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s IS NULL LIMIT 1", c.Table, c.DeletedAt)
		err := t.tx.QueryRowContext(t.ctx, query).Scan(&one)
		switch {
		case isNoRows(err):
			return nil, nil
		case err != nil:
			return nil, err
		}
		return []nestedset.Scope{{}}, nil
	}

	fields := strings.Join(t.s.scope, ", ")
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NULL ORDER BY %s", fields, c.Table, c.DeletedAt, fields)
	rows, err := t.tx.QueryContext(t.ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []nestedset.Scope
	for rows.Next() {
		values := make([]string, len(t.s.scope))
		dest := make([]any, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		scope := make(nestedset.Scope, len(values))
		for i, name := range t.s.scope {
			scope[i] = nestedset.ScopeField{Name: name, Value: values[i]}
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

func (t *sqlTx) Nodes(scope nestedset.Scope) ([]*nestedset.Node, error) {
	return t.selectLive(scope, "")
}

func (t *sqlTx) FindByParent(scope nestedset.Scope, parentID string) ([]*nestedset.Node, error) {
	if parentID == "" {
		return t.selectLive(scope, t.s.cols.Parent+" IS NULL")
	}
	return t.selectLive(scope, t.s.cols.Parent+" = ?", parentID)
}

func (t *sqlTx) Descendants(scope nestedset.Scope, left, right int64) ([]*nestedset.Node, error) {
	c := t.s.cols
	return t.selectLive(scope, fmt.Sprintf("%s > ? AND %s < ?", c.Left, c.Right), left, right)
}

func (t *sqlTx) TrashedDescendants(scope nestedset.Scope, left, right int64) ([]*nestedset.Node, error) {
	c := t.s.cols
	filter, args, err := t.s.scopeFilter("", scope)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL AND %s AND %s > ? AND %s < ?",
		t.s.columnList(""), c.Table, c.DeletedAt, filter, c.Left, c.Right)
	return t.queryNodes(query, append(args, left, right)...)
}

func (t *sqlTx) MaxRight(scope nestedset.Scope) (int64, error) {
	where, args, err := t.liveWhere(scope, "")
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s WHERE %s", t.s.cols.Right, t.s.cols.Table, where)
	var maxRight int64
	err = t.tx.QueryRowContext(t.ctx, t.s.dialect.rebind(query), args...).Scan(&maxRight)
	return maxRight, err
}

// LockRange takes row locks where the engine supports them. SQLite access is
// already serialized through a single connection.
func (t *sqlTx) LockRange(scope nestedset.Scope, lo, hi int64) error {
	if !t.s.dialect.rowLocks {
		return nil
	}
	c := t.s.cols
	where, args, err := t.liveWhere(scope, fmt.Sprintf("(%s BETWEEN ? AND ? OR %s BETWEEN ? AND ?)", c.Left, c.Right))
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s FOR UPDATE", c.ID, c.Table, where)
	rows, err := t.tx.QueryContext(t.ctx, t.s.dialect.rebind(query), append(args, lo, hi, lo, hi)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (t *sqlTx) BulkShift(scope nestedset.Scope, s nestedset.Shift) (int, error) {
	c := t.s.cols
	caseFor := func(col string) string {
		return fmt.Sprintf("CASE WHEN %[1]s BETWEEN ? AND ? THEN %[1]s + ? WHEN %[1]s BETWEEN ? AND ? THEN %[1]s + ? ELSE %[1]s END", col)
	}
	caseArgs := []any{s.A, s.B, s.D - s.B, s.C, s.D, s.A - s.C}

	where, scopeArgs, err := t.liveWhere(scope, fmt.Sprintf("(%s BETWEEN ? AND ? OR %s BETWEEN ? AND ?)", c.Left, c.Right))
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s, %s = CASE WHEN %s = ? THEN ? ELSE %s END WHERE %s",
		c.Table,
		c.Left, caseFor(c.Left),
		c.Right, caseFor(c.Right),
		c.Parent, c.ID, c.Parent,
		where)

	args := make([]any, 0, 20)
	args = append(args, caseArgs...)
	args = append(args, caseArgs...)
	args = append(args, s.NodeID, nullString(s.ParentID))
	args = append(args, scopeArgs...)
	args = append(args, s.A, s.D, s.A, s.D)
	return t.exec(query, args...)
}

func (t *sqlTx) ShiftFrom(scope nestedset.Scope, from, delta int64) (int, error) {
	c := t.s.cols
	where, scopeArgs, err := t.liveWhere(scope, fmt.Sprintf("(%s >= ? OR %s >= ?)", c.Left, c.Right))
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %[2]s = CASE WHEN %[2]s >= ? THEN %[2]s + ? ELSE %[2]s END, %[3]s = CASE WHEN %[3]s >= ? THEN %[3]s + ? ELSE %[3]s END WHERE %[4]s",
		c.Table, c.Left, c.Right, where)
	args := append([]any{from, delta, from, delta}, scopeArgs...)
	return t.exec(query, append(args, from, from)...)
}

func (t *sqlTx) ShiftDepth(scope nestedset.Scope, left, right int64, delta int) (int, error) {
	c := t.s.cols
	where, scopeArgs, err := t.liveWhere(scope, fmt.Sprintf("%s > ? AND %s < ?", c.Left, c.Right))
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = %s + ? WHERE %s", c.Table, c.Depth, c.Depth, where)
	args := append([]any{delta}, scopeArgs...)
	return t.exec(query, append(args, left, right)...)
}

func (t *sqlTx) Save(scope nestedset.Scope, n *nestedset.Node) error {
	if n.ID == "" {
		return fmt.Errorf("node must have an id")
	}
	c := t.s.cols
	attrs, err := encodeAttrs(n.Attrs)
	if err != nil {
		return err
	}

	cols := []string{c.ID, c.Parent, c.Left, c.Right, c.Depth, c.Attrs, c.DeletedAt}
	args := []any{n.ID, nullString(n.ParentID), nullBound(n.Left), nullBound(n.Right), n.Depth, attrs, nullTime(n.DeletedAt)}
	for _, name := range t.s.scope {
		value, ok := scope.Value(name)
		if !ok {
			return fmt.Errorf("scope %s is missing field %q", scope, name)
		}
		cols = append(cols, name)
		args = append(args, value)
	}

	updates := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		c.Table, strings.Join(cols, ", "), placeholders, c.ID, strings.Join(updates, ", "))
	_, err = t.exec(query, args...)
	return err
}

func (t *sqlTx) Delete(scope nestedset.Scope, ids []string) error {
	return t.byIDs(scope, ids, func(in string) string {
		return fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", t.s.cols.Table, t.s.cols.ID, in)
	})
}

func (t *sqlTx) SoftDelete(scope nestedset.Scope, ids []string, at time.Time) error {
	return t.byIDs(scope, ids, func(in string) string {
		return fmt.Sprintf("UPDATE %s SET %s = %d WHERE %s IN (%s)", t.s.cols.Table, t.s.cols.DeletedAt, at.UnixNano(), t.s.cols.ID, in)
	})
}

func (t *sqlTx) Restore(scope nestedset.Scope, ids []string) error {
	return t.byIDs(scope, ids, func(in string) string {
		return fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IN (%s)", t.s.cols.Table, t.s.cols.DeletedAt, t.s.cols.ID, in)
	})
}

// byIDs runs a statement over ids in batches, restricted to scope.
func (t *sqlTx) byIDs(scope nestedset.Scope, ids []string, statement func(in string) string) error {
	filter, scopeArgs, err := t.s.scopeFilter("", scope)
	if err != nil {
		return err
	}
	for start := 0; start < len(ids); start += maxBatch {
		batch := ids[start:min(start+maxBatch, len(ids))]
		in := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		args := make([]any, 0, len(batch)+len(scopeArgs))
		for _, id := range batch {
			args = append(args, id)
		}
		args = append(args, scopeArgs...)
		if _, err := t.exec(statement(in)+" AND "+filter, args...); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanNode decodes one row projected by columnList.
func (s *Store) scanNode(row scanner) (*nestedset.Node, error) {
	var (
		id        string
		parent    sql.NullString
		left      sql.NullInt64
		right     sql.NullInt64
		depth     int
		attrs     sql.NullString
		deletedAt sql.NullInt64
	)
	scopeValues := make([]string, len(s.scope))
	dest := []any{&id, &parent, &left, &right, &depth, &attrs, &deletedAt}
	for i := range scopeValues {
		dest = append(dest, &scopeValues[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	n := &nestedset.Node{
		ID:       id,
		ParentID: parent.String,
		Left:     left.Int64,
		Right:    right.Int64,
		Depth:    depth,
	}
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &n.Attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attrs of %s: %w", id, err)
		}
	}
	for i, name := range s.scope {
		if _, ok := n.Attrs[name]; !ok {
			n.SetAttr(name, scopeValues[i])
		}
	}
	if deletedAt.Valid {
		at := time.Unix(0, deletedAt.Int64).UTC()
		n.DeletedAt = &at
	}
	return n, nil
}

func encodeAttrs(attrs map[string]any) (sql.NullString, error) {
	if len(attrs) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode attrs: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullBound stores unset bounds as NULL.
func nullBound(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
