// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package sqlstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Columns names the table and columns holding the tree. Scope columns are
// named after the scope fields and hold the stringified scope values.
type Columns struct {
	Table     string `yaml:"table"`
	ID        string `yaml:"id"`
	Parent    string `yaml:"parent"`
	Left      string `yaml:"left"`
	Right     string `yaml:"right"`
	Depth     string `yaml:"depth"`
	Attrs     string `yaml:"attrs"`
	DeletedAt string `yaml:"deleted_at"`
}

// DefaultColumns returns the conventional naming.
func DefaultColumns() Columns {
	return Columns{
		Table:     "nodes",
		ID:        "id",
		Parent:    "parent_id",
		Left:      "lft",
		Right:     "rgt",
		Depth:     "depth",
		Attrs:     "attrs",
		DeletedAt: "deleted_at",
	}
}

// withDefaults fills every empty name from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Table == "" {
		c.Table = d.Table
	}
	if c.ID == "" {
		c.ID = d.ID
	}
	if c.Parent == "" {
		c.Parent = d.Parent
	}
	if c.Left == "" {
		c.Left = d.Left
	}
	if c.Right == "" {
		c.Right = d.Right
	}
	if c.Depth == "" {
		c.Depth = d.Depth
	}
	if c.Attrs == "" {
		c.Attrs = d.Attrs
	}
	if c.DeletedAt == "" {
		c.DeletedAt = d.DeletedAt
	}
	return c
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validate rejects names that cannot be spliced into SQL unquoted.
func (c Columns) validate(scopeFields []string) error {
	names := append([]string{c.Table, c.ID, c.Parent, c.Left, c.Right, c.Depth, c.Attrs, c.DeletedAt}, scopeFields...)
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if !identifier.MatchString(name) {
			return fmt.Errorf("invalid SQL identifier %q", name)
		}
		if i > 0 && seen[name] {
			return fmt.Errorf("column %q is configured twice", name)
		}
		seen[name] = true
	}
	return nil
}

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Driver       string // database/sql driver name
	numbered     bool   // $1 placeholders instead of ?
	rowLocks     bool   // supports SELECT ... FOR UPDATE
	readOnlyTx   bool   // honours sql.TxOptions.ReadOnly
	singleWriter bool   // serialize all access through one connection
}

var (
	SQLite   = Dialect{Driver: "sqlite", singleWriter: true}
	Postgres = Dialect{Driver: "pgx", numbered: true, rowLocks: true, readOnlyTx: true}
)

// DialectFor maps a configured driver name onto a dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

// rebind rewrites ? placeholders for dialects using numbered parameters.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
