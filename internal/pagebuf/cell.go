package pagebuf

import (
	"encoding/binary"
	"fmt"

	"github.com/jordanwade90/rawseek/internal/svarint"
)

// Cell is one decoded cell. Which fields are set depends on the page type:
//
//	table leaf:     Rowid, PayloadSize, Local, Overflow
//	table interior: Left, Rowid
//	index leaf:     PayloadSize, Local, Overflow
//	index interior: Left, PayloadSize, Local, Overflow
type Cell struct {
	Left        PageNumber
	Rowid       int64
	PayloadSize int64
	// Local is the part of the payload stored on the page.
	// It aliases the page buffer.
	Local []byte
	// Overflow is the first overflow page, or 0 when the payload is entirely local.
	Overflow PageNumber
	// Size is the number of bytes the cell occupies on the page.
	Size int
}

// MaxPayload is the largest payload a cell may declare.
// SQLite never stores a value or record longer than 2^31-1 bytes.
const MaxPayload = 1<<31 - 1

// LocalPayload returns how many bytes of a payload of size payloadSize are stored on a page.
// See the "alternative description" of the payload overflow calculation
// in https://sqlite.org/fileformat2.html.
func LocalPayload(usableSize int, payloadSize int64, table bool) int {
	U := int64(usableSize)
	X := ((U-12)*64/255 - 23)
	if table {
		X = U - 35
	}
	M := ((U - 12) * 32 / 255) - 23
	K := M + ((payloadSize - M) % (U - 4))
	switch {
	case payloadSize <= X:
		return int(payloadSize)
	case K <= X:
		return int(K)
	default:
		return int(M)
	}
}

// Cell decodes cell i.
func (p *Page) Cell(i int) (Cell, error) {
	off, err := p.CellOffset(i)
	if err != nil {
		return Cell{}, err
	}
	c, err := p.cellAt(off)
	if err != nil {
		return Cell{}, fmt.Errorf("page %d: cell %d at offset %d: %w", p.Number, i, off, err)
	}
	return c, nil
}

func (p *Page) cellAt(off int) (Cell, error) {
	var c Cell
	buf := p.buf
	pos := off
	if !p.Type.IsLeaf() {
		if pos+4 > len(buf) {
			return c, ErrCorrupt
		}
		c.Left = PageNumber(binary.BigEndian.Uint32(buf[pos:]))
		pos += 4
	}

	var err error
	if p.Type == TableInterior {
		if c.Rowid, pos, err = svarint.GetAt(buf, pos); err != nil {
			return c, err
		}
		c.Size = pos - off
		return c, nil
	}

	if c.PayloadSize, pos, err = svarint.GetAt(buf, pos); err != nil {
		return c, err
	}
	if c.PayloadSize < 0 || c.PayloadSize > MaxPayload {
		return c, fmt.Errorf("payload size %d out of range: %w", c.PayloadSize, ErrCorrupt)
	}
	if p.Type == TableLeaf {
		if c.Rowid, pos, err = svarint.GetAt(buf, pos); err != nil {
			return c, err
		}
	}

	local := LocalPayload(p.usableSize, c.PayloadSize, p.Type.IsTable())
	if pos+local > len(buf) {
		return c, fmt.Errorf("payload of %d bytes runs past the page end: %w", local, ErrCorrupt)
	}
	c.Local = buf[pos : pos+local : pos+local]
	pos += local

	if int64(local) < c.PayloadSize {
		if pos+4 > len(buf) {
			return c, fmt.Errorf("overflow pointer runs past the page end: %w", ErrCorrupt)
		}
		c.Overflow = PageNumber(binary.BigEndian.Uint32(buf[pos:]))
		pos += 4
		if c.Overflow == 0 {
			return c, fmt.Errorf("payload of %d bytes has no overflow page: %w", c.PayloadSize, ErrCorrupt)
		}
	}
	c.Size = pos - off
	return c, nil
}
