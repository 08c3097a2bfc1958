// Package btree walks SQLite table and index b-trees.
//
// Table b-trees are keyed by rowid and store records in their leaves.
// Index b-trees are keyed by a record of the indexed columns followed by the rowid,
// and store entries in both interior and leaf cells.
package btree

import (
	"errors"
	"fmt"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/record"
)

// MaxDepth bounds the depth of a b-tree. A deeper tree is treated as corrupt,
// which also stops traversal of a cycle of child pointers.
const MaxDepth = 20

// Pages is the page source a Tree reads from. *pager.Pager implements it.
type Pages interface {
	Page(n pagebuf.PageNumber) (*pagebuf.Page, error)
	ReadPage(n pagebuf.PageNumber) ([]byte, error)
	UsableSize() int
	PageCount() uint32
}

// Tree traverses the b-trees of one database.
// A Tree has no mutable state; concurrent traversals are safe
// whenever the Pages are.
type Tree struct {
	pages Pages
}

func New(pages Pages) *Tree {
	return &Tree{pages: pages}
}

// Entry is one row of a table b-tree.
type Entry struct {
	Rowid int64
	// Payload is the complete record, including any overflow content.
	Payload []byte
}

var errStop = errors.New("stop")

func (t *Tree) page(n pagebuf.PageNumber, depth int, table bool) (*pagebuf.Page, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("page %d: b-tree deeper than %d levels: %w", n, MaxDepth, pagebuf.ErrCorrupt)
	}
	p, err := t.pages.Page(n)
	if err != nil {
		return nil, err
	}
	if p.Type.IsTable() != table {
		return nil, fmt.Errorf("page %d: unexpected %s page: %w", n, p.Type, pagebuf.ErrCorrupt)
	}
	return p, nil
}

func (t *Tree) payload(c pagebuf.Cell) ([]byte, error) {
	return record.Stitch(t.pages, c.Local, c.PayloadSize, c.Overflow)
}

// search returns the smallest i in [0, n) for which f(i) is true, or n.
// f must be false then true over the range.
func search(n int, f func(int) (bool, error)) (int, error) {
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		ok, err := f(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}
