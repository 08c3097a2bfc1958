package pagebuf

import (
	"encoding/binary"

	"github.com/jordanwade90/rawseek/internal/svarint"
)

// Builder writes cells into a single b-tree page.
// It is used to produce fixture databases.
type Builder struct {
	page         []byte
	typ          PageType
	headerOffset int
	contentStart int
	numCells     int
	rightMost    PageNumber
}

// NewBuilder returns an empty page of the given type.
// Set first when building page 1, which starts with the database header.
func NewBuilder(pageSize int, typ PageType, first bool) *Builder {
	b := &Builder{
		page:         make([]byte, pageSize),
		typ:          typ,
		contentStart: pageSize,
	}
	if first {
		b.headerOffset = DatabaseHeaderSize
	}
	return b
}

// Add tries to add a cell to the page, returning true if it fits.
func (b *Builder) Add(cell []byte) bool {
	// Cells are written back-to-front, so contentStart is the larger number.
	contentStart := b.contentStart - len(cell)
	contentEnd := b.headerOffset + b.typ.HeaderSize() + 2*b.numCells
	if contentStart < contentEnd+2 {
		return false
	}

	binary.BigEndian.PutUint16(b.page[contentEnd:], uint16(contentStart))
	copy(b.page[contentStart:], cell)
	b.contentStart = contentStart
	b.numCells++
	return true
}

// SetRightMost sets the right-most child pointer of an interior page.
func (b *Builder) SetRightMost(pageNumber PageNumber) { b.rightMost = pageNumber }

// Len returns the number of cells added so far.
func (b *Builder) Len() int { return b.numCells }

// Finish writes the page header and returns the page.
// The Builder must not be used afterwards.
func (b *Builder) Finish() []byte {
	h := b.page[b.headerOffset:]
	h[0] = byte(b.typ)
	h[1], h[2] = 0, 0
	binary.BigEndian.PutUint16(h[3:], uint16(b.numCells))
	binary.BigEndian.PutUint16(h[5:], uint16(b.contentStart))
	h[7] = 0
	if !b.typ.IsLeaf() {
		binary.BigEndian.PutUint32(h[8:], uint32(b.rightMost))
	}
	return b.page
}

// SplitPayload splits a payload into the part stored on a b-tree page and the part
// stored on overflow pages.
func SplitPayload(usableSize int, payload []byte, table bool) (local, overflow []byte) {
	n := LocalPayload(usableSize, int64(len(payload)), table)
	return payload[:n], payload[n:]
}

func AppendTableLeafCell(buf []byte, rowid int64, payloadSize int, local []byte, overflow PageNumber) []byte {
	buf = svarint.Append(buf, payloadSize)
	buf = svarint.Append(buf, rowid)
	return appendLocal(buf, local, overflow)
}

func AppendTableInteriorCell(buf []byte, left PageNumber, rowid int64) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(left))
	return svarint.Append(buf, rowid)
}

func AppendIndexLeafCell(buf []byte, payloadSize int, local []byte, overflow PageNumber) []byte {
	buf = svarint.Append(buf, payloadSize)
	return appendLocal(buf, local, overflow)
}

func AppendIndexInteriorCell(buf []byte, left PageNumber, payloadSize int, local []byte, overflow PageNumber) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(left))
	return AppendIndexLeafCell(buf, payloadSize, local, overflow)
}

func appendLocal(buf, local []byte, overflow PageNumber) []byte {
	buf = append(buf, local...)
	if overflow != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(overflow))
	}
	return buf
}

// Database header field offsets.
const (
	OffsetPageSize      = 16
	OffsetReserved      = 20
	OffsetChangeCounter = 24
	OffsetPageCount     = 28
	OffsetSchemaCookie  = 40
	OffsetSchemaFormat  = 44
	OffsetTextEncoding  = 56
	OffsetVersionValid  = 92
	OffsetSQLiteVersion = 96
)

// Magic is the string every SQLite database file starts with.
const Magic = "SQLite format 3\000"

// PutDatabaseHeader writes a database header into the first 100 bytes of page.
// The page size is taken from len(page).
func PutDatabaseHeader(page []byte, pageCount uint32, textEncoding uint32) {
	copy(page, Magic)
	if len(page) == 65536 {
		binary.BigEndian.PutUint16(page[OffsetPageSize:], 1)
	} else {
		binary.BigEndian.PutUint16(page[OffsetPageSize:], uint16(len(page)))
	}
	page[18], page[19] = 1, 1
	page[OffsetReserved] = 0
	page[21], page[22], page[23] = 64, 32, 32
	binary.BigEndian.PutUint32(page[OffsetChangeCounter:], 1)
	binary.BigEndian.PutUint32(page[OffsetPageCount:], pageCount)
	binary.BigEndian.PutUint32(page[OffsetSchemaCookie:], 1)
	binary.BigEndian.PutUint32(page[OffsetSchemaFormat:], 4)
	binary.BigEndian.PutUint32(page[48:], uint32(2048000/len(page)))
	binary.BigEndian.PutUint32(page[OffsetTextEncoding:], textEncoding)
	binary.BigEndian.PutUint32(page[OffsetVersionValid:], 1)
	binary.BigEndian.PutUint32(page[OffsetSQLiteVersion:], 3045000)
}
