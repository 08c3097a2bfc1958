package btree

import (
	"fmt"
	"iter"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
)

// FindByRowid looks up rowid in the table b-tree rooted at root.
// The boolean result is false if no such row exists.
func (t *Tree) FindByRowid(root pagebuf.PageNumber, rowid int64) (Entry, bool, error) {
	n := root
	for depth := 0; ; depth++ {
		p, err := t.page(n, depth, true)
		if err != nil {
			return Entry{}, false, err
		}

		var cell pagebuf.Cell
		i, err := search(p.NumCells, func(i int) (bool, error) {
			c, err := p.Cell(i)
			if err != nil {
				return false, err
			}
			return c.Rowid >= rowid, nil
		})
		if err != nil {
			return Entry{}, false, err
		}
		if i < p.NumCells {
			if cell, err = p.Cell(i); err != nil {
				return Entry{}, false, err
			}
		}

		if p.Type == pagebuf.TableLeaf {
			if i == p.NumCells || cell.Rowid != rowid {
				return Entry{}, false, nil
			}
			payload, err := t.payload(cell)
			if err != nil {
				return Entry{}, false, fmt.Errorf("rowid %d: %w", rowid, err)
			}
			return Entry{Rowid: rowid, Payload: payload}, true, nil
		}

		if i < p.NumCells {
			n = cell.Left
		} else {
			n = p.RightMost
		}
	}
}

// Scan returns every row of the table b-tree rooted at root in rowid order.
// Iteration stops at the first error, which is yielded with a zero Entry.
// Each call to the returned function starts again from the root.
func (t *Tree) Scan(root pagebuf.PageNumber) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s := scanner{tree: t, yield: yield}
		if err := s.walk(root, 0); err != nil && err != errStop {
			yield(Entry{}, err)
		}
	}
}

type scanner struct {
	tree    *Tree
	yield   func(Entry, error) bool
	started bool
	last    int64
}

func (s *scanner) walk(n pagebuf.PageNumber, depth int) error {
	p, err := s.tree.page(n, depth, true)
	if err != nil {
		return err
	}

	for i := 0; i < p.NumCells; i++ {
		c, err := p.Cell(i)
		if err != nil {
			return err
		}
		if p.Type == pagebuf.TableInterior {
			if err := s.walk(c.Left, depth+1); err != nil {
				return err
			}
			continue
		}

		if s.started && c.Rowid <= s.last {
			return fmt.Errorf("page %d: rowid %d follows %d: %w", n, c.Rowid, s.last, pagebuf.ErrCorrupt)
		}
		s.started, s.last = true, c.Rowid

		payload, err := s.tree.payload(c)
		if err != nil {
			return fmt.Errorf("rowid %d: %w", c.Rowid, err)
		}
		if !s.yield(Entry{Rowid: c.Rowid, Payload: payload}, nil) {
			return errStop
		}
	}

	if p.Type == pagebuf.TableInterior {
		return s.walk(p.RightMost, depth+1)
	}
	return nil
}
