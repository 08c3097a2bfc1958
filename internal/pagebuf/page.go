// Package pagebuf parses and builds SQLite b-tree pages.
//
// See "B-tree Pages" in https://sqlite.org/fileformat2.html.
// A Page is a read-only view over a page-sized byte slice;
// cells are resolved lazily through the cell pointer array.
package pagebuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	DatabaseHeaderSize = 100
	LeafHeaderSize     = 8
	InteriorHeaderSize = 12
)

var (
	// ErrUnknownPageType is returned for a page whose type byte is not a b-tree page type.
	ErrUnknownPageType = errors.New("unknown page type")
	// ErrCorrupt is returned when a structural invariant of the file is violated.
	ErrCorrupt = errors.New("corrupt b-tree")
)

// PageNumber annotates uint32s that are actually page numbers.
type PageNumber uint32

// PageType is the flag byte at the start of a b-tree page header.
type PageType byte

const (
	IndexInterior PageType = 0x02
	TableInterior PageType = 0x05
	IndexLeaf     PageType = 0x0a
	TableLeaf     PageType = 0x0d
)

func (t PageType) Valid() bool {
	switch t {
	case IndexInterior, TableInterior, IndexLeaf, TableLeaf:
		return true
	}
	return false
}

func (t PageType) IsLeaf() bool  { return t == IndexLeaf || t == TableLeaf }
func (t PageType) IsTable() bool { return t == TableInterior || t == TableLeaf }

// HeaderSize returns the size of the page header for this page type.
func (t PageType) HeaderSize() int {
	if t.IsLeaf() {
		return LeafHeaderSize
	}
	return InteriorHeaderSize
}

func (t PageType) String() string {
	switch t {
	case IndexInterior:
		return "index-interior"
	case TableInterior:
		return "table-interior"
	case IndexLeaf:
		return "index-leaf"
	case TableLeaf:
		return "table-leaf"
	}
	return fmt.Sprintf("PageType(%#02x)", byte(t))
}

// Header is a decoded b-tree page header.
type Header struct {
	Type PageType
	// FirstFreeblock is the offset of the first freeblock, or 0.
	FirstFreeblock  int
	NumCells        int
	ContentStart    int
	FragmentedBytes int
	// RightMost is only set on interior pages.
	RightMost PageNumber
}

// Page is a parsed b-tree page.
type Page struct {
	Header
	Number PageNumber

	buf        []byte
	usableSize int
	pointers   int
}

// HeaderOffset returns where the b-tree page header starts within a page.
// Page 1 begins with the 100-byte database header.
func HeaderOffset(pageNumber PageNumber) int {
	if pageNumber == 1 {
		return DatabaseHeaderSize
	}
	return 0
}

// Parse parses the header of buf, which holds the whole of page pageNumber.
// usableSize is the page size minus the reserved bytes at the end of each page.
func Parse(buf []byte, pageNumber PageNumber, usableSize int) (*Page, error) {
	if usableSize > len(buf) {
		return nil, fmt.Errorf("page %d: usable size %d exceeds page length %d: %w", pageNumber, usableSize, len(buf), ErrCorrupt)
	}
	off := HeaderOffset(pageNumber)
	if off+LeafHeaderSize > usableSize {
		return nil, fmt.Errorf("page %d: too short for a page header: %w", pageNumber, ErrCorrupt)
	}

	typ := PageType(buf[off])
	if !typ.Valid() {
		return nil, fmt.Errorf("page %d: type %#02x: %w", pageNumber, buf[off], ErrUnknownPageType)
	}

	p := &Page{
		Header: Header{
			Type:            typ,
			FirstFreeblock:  int(binary.BigEndian.Uint16(buf[off+1:])),
			NumCells:        int(binary.BigEndian.Uint16(buf[off+3:])),
			ContentStart:    int(binary.BigEndian.Uint16(buf[off+5:])),
			FragmentedBytes: int(buf[off+7]),
		},
		Number:     pageNumber,
		buf:        buf[:usableSize],
		usableSize: usableSize,
		pointers:   off + typ.HeaderSize(),
	}
	if p.ContentStart == 0 {
		p.ContentStart = 65536
	}
	if !typ.IsLeaf() {
		if off+InteriorHeaderSize > usableSize {
			return nil, fmt.Errorf("page %d: too short for an interior page header: %w", pageNumber, ErrCorrupt)
		}
		p.RightMost = PageNumber(binary.BigEndian.Uint32(buf[off+8:]))
	}

	pointersEnd := p.pointers + 2*p.NumCells
	if pointersEnd > usableSize || (p.NumCells > 0 && pointersEnd > p.ContentStart) {
		return nil, fmt.Errorf("page %d: %d cells overlap the cell content area at %d: %w", pageNumber, p.NumCells, p.ContentStart, ErrCorrupt)
	}
	return p, nil
}

// CellOffset returns the offset of cell i within the page.
func (p *Page) CellOffset(i int) (int, error) {
	if i < 0 || i >= p.NumCells {
		return 0, fmt.Errorf("page %d: cell index %d out of range [0, %d): %w", p.Number, i, p.NumCells, ErrCorrupt)
	}
	ptr := int(binary.BigEndian.Uint16(p.buf[p.pointers+2*i:]))
	if ptr < p.pointers+2*p.NumCells || ptr >= p.usableSize {
		return 0, fmt.Errorf("page %d: cell %d pointer %d out of bounds: %w", p.Number, i, ptr, ErrCorrupt)
	}
	return ptr, nil
}

// UsableSize returns the usable size the page was parsed with.
func (p *Page) UsableSize() int { return p.usableSize }
