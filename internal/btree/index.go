package btree

import (
	"fmt"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/record"
)

// FindByKey returns the rowids of every entry of the index b-tree rooted at root
// whose leading columns equal key, in index order.
// desc marks index columns stored in descending order.
// Text in the index is compared in its stored encoding,
// so text in key must already be in that encoding (see record.TextEncoding.Encode).
func (t *Tree) FindByKey(root pagebuf.PageNumber, key []any, desc []bool) ([]int64, error) {
	normalized := make([]any, len(key))
	for i, k := range key {
		v, err := record.Normalize(k)
		if err != nil {
			return nil, fmt.Errorf("key column %d: %w", i, err)
		}
		normalized[i] = v
	}
	f := finder{tree: t, key: normalized, desc: desc}
	if err := f.collect(root, 0); err != nil {
		return nil, err
	}
	return f.rowids, nil
}

type finder struct {
	tree *Tree
	// The zero Decoder leaves text in its stored encoding.
	decoder record.Decoder
	key     []any
	desc    []bool
	rowids  []int64
}

type indexPage struct {
	*pagebuf.Page
	cells   []pagebuf.Cell
	entries [][]any
}

func (p *indexPage) cell(i int) (pagebuf.Cell, error) {
	if p.cells[i].Size == 0 {
		c, err := p.Cell(i)
		if err != nil {
			return c, err
		}
		p.cells[i] = c
	}
	return p.cells[i], nil
}

func (f *finder) entry(p *indexPage, i int) ([]any, error) {
	if p.entries[i] != nil {
		return p.entries[i], nil
	}
	c, err := p.cell(i)
	if err != nil {
		return nil, err
	}
	payload, err := f.tree.payload(c)
	if err != nil {
		return nil, fmt.Errorf("page %d: cell %d: %w", p.Number, i, err)
	}
	values, err := f.decoder.Decode(payload, 0)
	if err != nil {
		return nil, fmt.Errorf("page %d: cell %d: %w", p.Number, i, err)
	}
	if len(values) < len(f.key)+1 {
		return nil, fmt.Errorf("page %d: cell %d: index entry has %d values: %w", p.Number, i, len(values), pagebuf.ErrCorrupt)
	}
	p.entries[i] = values
	return values, nil
}

func (f *finder) match(p *indexPage, i int) (int, error) {
	e, err := f.entry(p, i)
	if err != nil {
		return 0, err
	}
	return record.ComparePrefix(f.key, e, f.desc), nil
}

func (f *finder) appendRowid(p *indexPage, i int) error {
	e := p.entries[i]
	rowid, ok := e[len(e)-1].(int64)
	if !ok {
		return fmt.Errorf("page %d: cell %d: index entry ends in %T, not a rowid: %w", p.Number, i, e[len(e)-1], pagebuf.ErrCorrupt)
	}
	f.rowids = append(f.rowids, rowid)
	return nil
}

func (f *finder) collect(n pagebuf.PageNumber, depth int) error {
	raw, err := f.tree.page(n, depth, false)
	if err != nil {
		return err
	}
	p := &indexPage{Page: raw, cells: make([]pagebuf.Cell, raw.NumCells), entries: make([][]any, raw.NumCells)}

	// first entry >= key
	lo, err := search(p.NumCells, func(i int) (bool, error) {
		c, err := f.match(p, i)
		return c <= 0, err
	})
	if err != nil {
		return err
	}

	for i := lo; i < p.NumCells; i++ {
		if p.Type == pagebuf.IndexInterior {
			// Entries in the left child sort before entry i but may still match.
			c, err := p.cell(i)
			if err != nil {
				return err
			}
			if err := f.collect(c.Left, depth+1); err != nil {
				return err
			}
		}
		c, err := f.match(p, i)
		if err != nil {
			return err
		}
		if c != 0 {
			return nil
		}
		if err := f.appendRowid(p, i); err != nil {
			return err
		}
	}

	if p.Type == pagebuf.IndexInterior {
		return f.collect(p.RightMost, depth+1)
	}
	return nil
}
