// Package dbtest builds synthetic SQLite database images for tests.
//
// Trees are bulk loaded bottom-up from sorted input,
// so the caller controls the exact keys a tree holds.
package dbtest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/record"
)

// Row is a table row to load.
type Row struct {
	Rowid  int64
	Values []any
}

// Builder accumulates the pages of a database image.
type Builder struct {
	pageSize int
	// pages[0] is page 1, written by Bytes.
	pages  [][]byte
	schema []Row
}

func New(pageSize int) *Builder {
	return &Builder{pageSize: pageSize, pages: [][]byte{nil}}
}

func (b *Builder) PageSize() int { return b.pageSize }

func (b *Builder) alloc(page []byte) pagebuf.PageNumber {
	b.pages = append(b.pages, page)
	return pagebuf.PageNumber(len(b.pages))
}

// overflow writes content to a chain of overflow pages and returns the first page.
func (b *Builder) overflow(content []byte) pagebuf.PageNumber {
	if len(content) == 0 {
		return 0
	}
	var pages [][]byte
	for len(content) > 0 {
		page := make([]byte, b.pageSize)
		n := copy(page[4:], content)
		content = content[n:]
		pages = append(pages, page)
	}
	first := pagebuf.PageNumber(len(b.pages) + 1)
	for i, page := range pages {
		if i+1 < len(pages) {
			binary.BigEndian.PutUint32(page, uint32(first)+uint32(i)+1)
		}
		b.alloc(page)
	}
	return first
}

// Table loads rows, which must be sorted by rowid, into a new table b-tree
// and records it in the schema. It returns the root page.
func (b *Builder) Table(name, sql string, rows []Row) pagebuf.PageNumber {
	root := b.TableTree(rows, false)
	b.addSchema("table", name, name, root, sql)
	return root
}

// Index loads entries, which must be sorted in index order and end in a rowid,
// into a new index b-tree and records it in the schema.
// A nil sql marks an automatic index.
func (b *Builder) Index(name, table string, sql any, entries [][]any) pagebuf.PageNumber {
	root := b.IndexTree(entries)
	b.addSchema("index", name, table, root, sql)
	return root
}

func (b *Builder) addSchema(typ, name, table string, root pagebuf.PageNumber, sql any) {
	b.schema = append(b.schema, Row{
		Rowid:  int64(len(b.schema) + 1),
		Values: []any{typ, name, table, int64(root), sql},
	})
}

type tableChild struct {
	page   pagebuf.PageNumber
	maxKey int64
}

// TableTree loads rows into a table b-tree without a schema entry.
// If first is set the root is placed on page 1.
func (b *Builder) TableTree(rows []Row, first bool) pagebuf.PageNumber {
	cells := make([][]byte, len(rows))
	for i, row := range rows {
		payload, err := record.Encode(row.Values...)
		if err != nil {
			panic(fmt.Sprintf("row %d: %v", row.Rowid, err))
		}
		local, rest := pagebuf.SplitPayload(b.pageSize, payload, true)
		cells[i] = pagebuf.AppendTableLeafCell(nil, row.Rowid, len(payload), local, b.overflow(rest))
	}

	if root, ok := b.tryRoot(pagebuf.TableLeaf, cells, 0, first); ok {
		return root
	}

	var level []tableChild
	leaf := pagebuf.NewBuilder(b.pageSize, pagebuf.TableLeaf, false)
	for i, cell := range cells {
		if !leaf.Add(cell) {
			level = append(level, tableChild{b.alloc(leaf.Finish()), rows[i-1].Rowid})
			leaf = pagebuf.NewBuilder(b.pageSize, pagebuf.TableLeaf, false)
			leaf.Add(cell)
		}
	}
	level = append(level, tableChild{b.alloc(leaf.Finish()), rows[len(rows)-1].Rowid})

	for {
		cells := make([][]byte, len(level)-1)
		for i, c := range level[:len(level)-1] {
			cells[i] = pagebuf.AppendTableInteriorCell(nil, c.page, c.maxKey)
		}
		if root, ok := b.tryRoot(pagebuf.TableInterior, cells, level[len(level)-1].page, first); ok {
			return root
		}

		var next []tableChild
		interior := pagebuf.NewBuilder(b.pageSize, pagebuf.TableInterior, false)
		pending := level[0]
		for _, c := range level[1:] {
			if interior.Add(pagebuf.AppendTableInteriorCell(nil, pending.page, pending.maxKey)) {
				pending = c
				continue
			}
			interior.SetRightMost(pending.page)
			next = append(next, tableChild{b.alloc(interior.Finish()), pending.maxKey})
			interior = pagebuf.NewBuilder(b.pageSize, pagebuf.TableInterior, false)
			pending = c
		}
		interior.SetRightMost(pending.page)
		next = append(next, tableChild{b.alloc(interior.Finish()), pending.maxKey})
		level = next
	}
}

// IndexTree loads entries into an index b-tree without a schema entry.
func (b *Builder) IndexTree(entries [][]any) pagebuf.PageNumber {
	leafCells := make([][]byte, len(entries))
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		payload, err := record.Encode(e...)
		if err != nil {
			panic(fmt.Sprintf("entry %d: %v", i, err))
		}
		payloads[i] = payload
		local, rest := pagebuf.SplitPayload(b.pageSize, payload, false)
		leafCells[i] = pagebuf.AppendIndexLeafCell(nil, len(payload), local, b.overflow(rest))
	}

	if root, ok := b.tryRoot(pagebuf.IndexLeaf, leafCells, 0, false); ok {
		return root
	}

	// children[i] holds entries sorting before separators[i].
	var children []pagebuf.PageNumber
	var separators [][]byte
	leaf := pagebuf.NewBuilder(b.pageSize, pagebuf.IndexLeaf, false)
	for i, cell := range leafCells {
		if leaf.Add(cell) {
			continue
		}
		children = append(children, b.alloc(leaf.Finish()))
		separators = append(separators, payloads[i])
		leaf = pagebuf.NewBuilder(b.pageSize, pagebuf.IndexLeaf, false)
	}
	children = append(children, b.alloc(leaf.Finish()))

	for {
		cells := make([][]byte, len(separators))
		for i, sep := range separators {
			cells[i] = b.indexInteriorCell(children[i], sep)
		}
		if root, ok := b.tryRoot(pagebuf.IndexInterior, cells, children[len(children)-1], false); ok {
			return root
		}

		var nextChildren []pagebuf.PageNumber
		var nextSeparators [][]byte
		interior := pagebuf.NewBuilder(b.pageSize, pagebuf.IndexInterior, false)
		for i, cell := range cells {
			if interior.Add(cell) {
				continue
			}
			interior.SetRightMost(children[i])
			nextChildren = append(nextChildren, b.alloc(interior.Finish()))
			nextSeparators = append(nextSeparators, separators[i])
			interior = pagebuf.NewBuilder(b.pageSize, pagebuf.IndexInterior, false)
		}
		interior.SetRightMost(children[len(children)-1])
		nextChildren = append(nextChildren, b.alloc(interior.Finish()))
		children, separators = nextChildren, nextSeparators
	}
}

func (b *Builder) indexInteriorCell(left pagebuf.PageNumber, payload []byte) []byte {
	local, rest := pagebuf.SplitPayload(b.pageSize, payload, false)
	return pagebuf.AppendIndexInteriorCell(nil, left, len(payload), local, b.overflow(rest))
}

// tryRoot places cells on a single page if they fit.
func (b *Builder) tryRoot(typ pagebuf.PageType, cells [][]byte, rightMost pagebuf.PageNumber, first bool) (pagebuf.PageNumber, bool) {
	page := pagebuf.NewBuilder(b.pageSize, typ, first)
	for _, cell := range cells {
		if !page.Add(cell) {
			return 0, false
		}
	}
	page.SetRightMost(rightMost)
	if first {
		b.pages[0] = page.Finish()
		return 1, true
	}
	return b.alloc(page.Finish()), true
}

// Bytes writes the schema table on page 1 and returns the database image.
// It must be called once, after every tree has been loaded.
func (b *Builder) Bytes() []byte {
	b.TableTree(b.schema, true)
	pagebuf.PutDatabaseHeader(b.pages[0], uint32(len(b.pages)), uint32(record.UTF8))

	var buf bytes.Buffer
	for _, page := range b.pages {
		buf.Write(page)
	}
	return buf.Bytes()
}

// Page returns the bytes of page n within a database image.
func Page(image []byte, pageSize int, n pagebuf.PageNumber) []byte {
	off := int(n-1) * pageSize
	return image[off : off+pageSize]
}
