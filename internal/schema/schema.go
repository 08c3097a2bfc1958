// Package schema resolves the sqlite_schema table into table and index definitions.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jordanwade90/rawseek/internal/btree"
	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/record"
)

// ErrNotFound is returned when a table or index name is not in the schema.
var ErrNotFound = errors.New("schema object not found")

// Column describes a table column or one column of an index key.
type Column struct {
	Name string
	// Type is the declared type of a table column.
	Type       string
	PrimaryKey bool
	Desc       bool
	// Collation is empty for the default BINARY collation.
	Collation string
	// Expr marks an index key that is an expression rather than a column.
	Expr bool
}

// Binary reports whether values of the column compare byte-wise.
func (c Column) Binary() bool {
	return c.Collation == "" || strings.EqualFold(c.Collation, "BINARY")
}

// Entry is one row of the sqlite_schema table with its SQL scanned.
type Entry struct {
	Type      string
	Name      string
	TableName string
	RootPage  pagebuf.PageNumber
	SQL       string

	// Columns holds the table columns, or the key columns of an index
	// (without the trailing rowid).
	Columns []Column
	// RowidAlias is the index in Columns of the INTEGER PRIMARY KEY column, or -1.
	RowidAlias   int
	WithoutRowid bool
	Virtual      bool

	Unique  bool
	Partial bool
	// Auto marks an index SQLite created for a PRIMARY KEY or UNIQUE constraint.
	Auto bool

	uniques []constraint
}

// Column returns the position of the named column, or -1.
func (e *Entry) Column(name string) int {
	for i, c := range e.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Schema is an immutable snapshot of a database schema.
type Schema struct {
	Entries []*Entry
	byName  map[string]*Entry
}

// names of the schema table itself, which has no row of its own
var schemaTableNames = []string{"sqlite_schema", "sqlite_master"}

var schemaTableColumns = []Column{
	{Name: "type", Type: "TEXT"},
	{Name: "name", Type: "TEXT"},
	{Name: "tbl_name", Type: "TEXT"},
	{Name: "rootpage", Type: "INT"},
	{Name: "sql", Type: "TEXT"},
}

// Resolve reads the schema table rooted at page 1.
func Resolve(tree *btree.Tree, decoder record.Decoder) (*Schema, error) {
	s := &Schema{byName: map[string]*Entry{}}
	for _, name := range schemaTableNames {
		s.byName[name] = &Entry{Type: "table", Name: name, TableName: name, RootPage: 1, Columns: schemaTableColumns, RowidAlias: -1}
	}

	for row, err := range tree.Scan(1) {
		if err != nil {
			return nil, fmt.Errorf("schema table: %w", err)
		}
		values, err := decoder.Decode(row.Payload, len(schemaTableColumns))
		if err != nil {
			return nil, fmt.Errorf("schema row %d: %w", row.Rowid, err)
		}
		e, err := newEntry(values)
		if err != nil {
			return nil, fmt.Errorf("schema row %d: %w", row.Rowid, err)
		}
		s.Entries = append(s.Entries, e)
		s.byName[strings.ToLower(e.Name)] = e
	}

	for _, e := range s.Entries {
		if e.Type == "index" && e.Auto {
			s.resolveAutoIndex(e)
		}
	}
	return s, nil
}

func newEntry(values []any) (*Entry, error) {
	e := &Entry{RowidAlias: -1}
	var ok bool
	if e.Type, ok = values[0].(string); !ok {
		return nil, fmt.Errorf("type is %T", values[0])
	}
	if e.Name, ok = values[1].(string); !ok {
		return nil, fmt.Errorf("name is %T", values[1])
	}
	if e.TableName, ok = values[2].(string); !ok {
		return nil, fmt.Errorf("tbl_name is %T", values[2])
	}
	switch root := values[3].(type) {
	case int64:
		if root < 0 || root > 1<<32-1 {
			return nil, fmt.Errorf("%s %q: root page %d: %w", e.Type, e.Name, root, pagebuf.ErrCorrupt)
		}
		e.RootPage = pagebuf.PageNumber(root)
	case nil:
		// views and triggers
	default:
		return nil, fmt.Errorf("rootpage is %T", values[3])
	}
	switch sql := values[4].(type) {
	case string:
		e.SQL = sql
	case nil:
		// automatic indexes
	default:
		return nil, fmt.Errorf("sql is %T", values[4])
	}

	switch {
	case e.Type == "table" && e.SQL != "":
		def, err := parseCreateTable(e.SQL)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", e.Name, err)
		}
		e.Columns = def.columns
		e.WithoutRowid = def.withoutRowid
		e.Virtual = def.virtual
		e.uniques = def.uniques
		e.RowidAlias = rowidAlias(def)
	case e.Type == "index" && e.SQL != "":
		def, err := parseCreateIndex(e.SQL)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", e.Name, err)
		}
		e.Columns = def.columns
		e.Unique = def.unique
		e.Partial = def.partial
	case e.Type == "index":
		e.Auto = true
		e.Unique = true
	}
	return e, nil
}

// rowidAlias finds the column that aliases the rowid: a single-column PRIMARY KEY
// declared exactly as INTEGER. Because of a long-standing SQLite quirk,
// a column-level "INTEGER PRIMARY KEY DESC" is not an alias.
func rowidAlias(def *tableDef) int {
	if def.withoutRowid || len(def.primaryKey) != 1 {
		return -1
	}
	for i, c := range def.columns {
		if !strings.EqualFold(c.Name, def.primaryKey[0].Name) {
			continue
		}
		if !strings.EqualFold(c.Type, "INTEGER") || (c.PrimaryKey && c.Desc) {
			return -1
		}
		return i
	}
	return -1
}

// resolveAutoIndex matches sqlite_autoindex_<table>_<N> to the Nth
// constraint of its table that needed an index.
func (s *Schema) resolveAutoIndex(e *Entry) {
	prefix := "sqlite_autoindex_" + e.TableName + "_"
	if len(e.Name) <= len(prefix) || !strings.EqualFold(e.Name[:len(prefix)], prefix) {
		return
	}
	n, err := strconv.Atoi(e.Name[len(prefix):])
	if err != nil || n < 1 {
		return
	}
	t, ok := s.byName[strings.ToLower(e.TableName)]
	if !ok || t.Type != "table" {
		return
	}

	var indexed [][]Column
	for _, c := range t.uniques {
		if c.primaryKey && (t.RowidAlias >= 0 || t.WithoutRowid) {
			continue
		}
		if containsColumns(indexed, c.columns) {
			continue
		}
		indexed = append(indexed, c.columns)
	}
	if n > len(indexed) {
		return
	}

	cols := make([]Column, len(indexed[n-1]))
	for i, c := range indexed[n-1] {
		cols[i] = c
		if c.Collation == "" {
			if j := t.Column(c.Name); j >= 0 {
				cols[i].Collation = t.Columns[j].Collation
			}
		}
	}
	e.Columns = cols
}

func containsColumns(sets [][]Column, cols []Column) bool {
outer:
	for _, set := range sets {
		if len(set) != len(cols) {
			continue
		}
		for i := range set {
			if !strings.EqualFold(set[i].Name, cols[i].Name) {
				continue outer
			}
		}
		return true
	}
	return false
}

// Lookup returns the entry with the given name, ignoring case.
func (s *Schema) Lookup(name string) (*Entry, error) {
	e, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Entry, error) {
	e, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if e.Type != "table" {
		return nil, fmt.Errorf("%w: %q is a %s, not a table", ErrNotFound, name, e.Type)
	}
	return e, nil
}

// Indexes returns the indexes on a table, in schema order.
func (s *Schema) Indexes(table string) []*Entry {
	var indexes []*Entry
	for _, e := range s.Entries {
		if e.Type == "index" && strings.EqualFold(e.TableName, table) {
			indexes = append(indexes, e)
		}
	}
	return indexes
}
