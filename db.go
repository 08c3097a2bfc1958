package rawseek

import (
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jordanwade90/rawseek/internal/btree"
	"github.com/jordanwade90/rawseek/internal/pager"
	"github.com/jordanwade90/rawseek/internal/schema"
	"github.com/jordanwade90/rawseek/record"
)

type (
	// Header is the parsed 100-byte database header.
	Header = pager.Header
	// Schema is the snapshot of sqlite_schema taken when the DB was opened.
	Schema = schema.Schema
	// SchemaEntry is one table, index, view or trigger of the schema.
	SchemaEntry = schema.Entry
	// Column is a table column or an index key column.
	Column = schema.Column
)

// DB is an open database file.
type DB struct {
	closer  io.Closer
	pager   *pager.Pager
	tree    *btree.Tree
	decoder record.Decoder
	schema  *schema.Schema
	logger  *zap.Logger
}

type options struct {
	logger *zap.Logger
}

// Option configures Open and NewReader.
type Option func(*options)

// WithLogger sets the logger for debug output. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open opens the database file at path.
func Open(path string, opts ...Option) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%w: %w", ErrIO, err), f.Close())
	}
	db, err := NewReader(f, info.Size(), opts...)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%s: %w", path, err), f.Close())
	}
	db.closer = f
	return db, nil
}

// NewReader reads a database image of size bytes from r.
// The DB does not close r.
func NewReader(r io.ReaderAt, size int64, opts ...Option) (*DB, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	p, err := pager.New(r, size)
	if err != nil {
		return nil, err
	}
	db := &DB{
		pager:   p,
		tree:    btree.New(p),
		decoder: p.Decoder(),
		logger:  o.logger,
	}
	if db.schema, err = schema.Resolve(db.tree, db.decoder); err != nil {
		return nil, err
	}

	h := p.Header()
	db.logger.Debug("opened database",
		zap.Int("page_size", h.PageSize),
		zap.Uint32("page_count", p.PageCount()),
		zap.Stringer("text_encoding", db.decoder.Encoding),
		zap.Int("schema_entries", len(db.schema.Entries)),
	)
	return db, nil
}

// Close closes the file opened by Open. It is a no-op for a DB from NewReader.
func (db *DB) Close() error {
	if db.closer == nil {
		return nil
	}
	err := db.closer.Close()
	db.closer = nil
	return err
}

func (db *DB) Header() Header { return db.pager.Header() }

func (db *DB) Schema() *Schema { return db.schema }

// table returns a rowid table that queries can read.
func (db *DB) table(name string) (*schema.Entry, error) {
	t, err := db.schema.Table(name)
	if err != nil {
		return nil, err
	}
	switch {
	case t.WithoutRowid:
		return nil, fmt.Errorf("%w: %q is a WITHOUT ROWID table", ErrUnsupportedTable, t.Name)
	case t.Virtual || t.RootPage == 0:
		return nil, fmt.Errorf("%w: %q is a virtual table", ErrUnsupportedTable, t.Name)
	}
	return t, nil
}

func (db *DB) row(t *schema.Entry, e btree.Entry) (Row, error) {
	values, err := db.decoder.Decode(e.Payload, len(t.Columns))
	if err != nil {
		return Row{}, fmt.Errorf("%s rowid %d: %w", t.Name, e.Rowid, err)
	}
	if t.RowidAlias >= 0 {
		values[t.RowidAlias] = e.Rowid
	}
	columns := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		columns[i] = c.Name
	}
	return Row{Rowid: e.Rowid, Columns: columns, Values: values}, nil
}

// FindByRowid returns the row of table with the given rowid.
// ok is false if the table has no such row.
func (db *DB) FindByRowid(table string, rowid int64) (row Row, ok bool, err error) {
	t, err := db.table(table)
	if err != nil {
		return Row{}, false, err
	}
	e, ok, err := db.tree.FindByRowid(t.RootPage, rowid)
	if err != nil || !ok {
		return Row{}, false, err
	}
	row, err = db.row(t, e)
	return row, err == nil, err
}

// FindByIndexedColumn returns the rows of table whose column equals value,
// in index order. The column must be the first key column of an index,
// or the INTEGER PRIMARY KEY of the table.
// value is converted with the column's type affinity first,
// so the text "450" finds 450 in an INTEGER column.
func (db *DB) FindByIndexedColumn(table, column string, value any) ([]Row, error) {
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	value, err = record.Normalize(value)
	if err != nil {
		return nil, err
	}

	ci := t.Column(column)
	if ci < 0 {
		if !isRowidName(column) {
			return nil, fmt.Errorf("%w: column %s.%s", ErrSchemaNotFound, t.Name, column)
		}
		return db.findByRowidColumn(t, schema.AffinityInteger.Apply(value))
	}
	value = schema.ColumnAffinity(t.Columns[ci].Type).Apply(value)
	if ci == t.RowidAlias {
		return db.findByRowidColumn(t, value)
	}

	ix := db.chooseIndex(t, ci)
	if ix == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuitableIndex, t.Name, t.Columns[ci].Name)
	}
	if s, ok := value.(string); ok {
		if value, err = db.decoder.Encoding.Encode(s); err != nil {
			return nil, err
		}
	}
	rowids, err := db.tree.FindByKey(ix.RootPage, []any{value}, []bool{ix.Columns[0].Desc})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", ix.Name, err)
	}
	db.logger.Debug("index lookup",
		zap.String("table", t.Name),
		zap.String("index", ix.Name),
		zap.Int("matches", len(rowids)),
	)

	rows := make([]Row, 0, len(rowids))
	for _, rowid := range rowids {
		e, ok, err := db.tree.FindByRowid(t.RootPage, rowid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: index %s refers to missing rowid %d", ErrCorruptBTree, ix.Name, rowid)
		}
		row, err := db.row(t, e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (db *DB) findByRowidColumn(t *schema.Entry, value any) ([]Row, error) {
	rowid, ok := value.(int64)
	if !ok {
		// The rowid is always an integer, so nothing else can match.
		return []Row{}, nil
	}
	e, ok, err := db.tree.FindByRowid(t.RootPage, rowid)
	if err != nil || !ok {
		return []Row{}, err
	}
	row, err := db.row(t, e)
	if err != nil {
		return nil, err
	}
	return []Row{row}, nil
}

func isRowidName(name string) bool {
	switch strings.ToLower(name) {
	case "rowid", "oid", "_rowid_":
		return true
	}
	return false
}

// chooseIndex picks an index whose first key is column ci, compared byte-wise.
// Partial indexes are skipped since they may not hold every row.
// Single-column indexes are preferred, then unique ones.
func (db *DB) chooseIndex(t *schema.Entry, ci int) *schema.Entry {
	var best *schema.Entry
	var bestScore int
	for _, ix := range db.schema.Indexes(t.Name) {
		if ix.Partial || ix.RootPage == 0 || len(ix.Columns) == 0 {
			continue
		}
		key := ix.Columns[0]
		if key.Expr || !strings.EqualFold(key.Name, t.Columns[ci].Name) {
			continue
		}
		if key.Collation == "" {
			key.Collation = t.Columns[ci].Collation
		}
		if !key.Binary() {
			continue
		}
		score := 1
		if len(ix.Columns) == 1 {
			score += 2
		}
		if ix.Unique {
			score++
		}
		if score > bestScore {
			best, bestScore = ix, score
		}
	}
	if best != nil {
		db.logger.Debug("chose index", zap.String("table", t.Name), zap.String("index", best.Name))
	}
	return best
}

// Scan returns every row of table in rowid order.
// Each iteration walks the table afresh from its root.
func (db *DB) Scan(table string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		t, err := db.table(table)
		if err != nil {
			yield(Row{}, err)
			return
		}
		for e, err := range db.tree.Scan(t.RootPage) {
			if err != nil {
				yield(Row{}, err)
				return
			}
			row, err := db.row(t, e)
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}
