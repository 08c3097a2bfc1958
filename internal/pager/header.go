package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/record"
)

// ErrInvalidHeader is returned when the 100-byte database header is not usable.
var ErrInvalidHeader = errors.New("invalid database header")

// Header is the decoded database header at offset 0 of the file.
type Header struct {
	PageSize      int
	WriteVersion  uint8
	ReadVersion   uint8
	ReservedBytes int
	ChangeCounter uint32
	// PageCount is the in-header database size. It is only trusted when
	// VersionValidFor equals ChangeCounter.
	PageCount       uint32
	FreelistTrunk   uint32
	FreelistCount   uint32
	SchemaCookie    uint32
	SchemaFormat    uint32
	TextEncoding    record.TextEncoding
	UserVersion     uint32
	ApplicationID   uint32
	VersionValidFor uint32
	SQLiteVersion   uint32
}

// UsableSize returns the number of bytes of each page available to b-tree content.
func (h Header) UsableSize() int { return h.PageSize - h.ReservedBytes }

// ParseHeader decodes the database header from the first 100 bytes of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < pagebuf.DatabaseHeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(buf))
	}
	if string(buf[:len(pagebuf.Magic)]) != pagebuf.Magic {
		return Header{}, fmt.Errorf("%w: not a SQLite 3 database", ErrInvalidHeader)
	}

	be := binary.BigEndian
	h := Header{
		PageSize:        int(be.Uint16(buf[pagebuf.OffsetPageSize:])),
		WriteVersion:    buf[18],
		ReadVersion:     buf[19],
		ReservedBytes:   int(buf[pagebuf.OffsetReserved]),
		ChangeCounter:   be.Uint32(buf[pagebuf.OffsetChangeCounter:]),
		PageCount:       be.Uint32(buf[pagebuf.OffsetPageCount:]),
		FreelistTrunk:   be.Uint32(buf[32:]),
		FreelistCount:   be.Uint32(buf[36:]),
		SchemaCookie:    be.Uint32(buf[pagebuf.OffsetSchemaCookie:]),
		SchemaFormat:    be.Uint32(buf[pagebuf.OffsetSchemaFormat:]),
		TextEncoding:    record.TextEncoding(be.Uint32(buf[pagebuf.OffsetTextEncoding:])),
		UserVersion:     be.Uint32(buf[60:]),
		ApplicationID:   be.Uint32(buf[68:]),
		VersionValidFor: be.Uint32(buf[pagebuf.OffsetVersionValid:]),
		SQLiteVersion:   be.Uint32(buf[pagebuf.OffsetSQLiteVersion:]),
	}
	if h.PageSize == 1 {
		h.PageSize = 65536
	}
	if h.PageSize < 512 || h.PageSize > 65536 || bits.OnesCount(uint(h.PageSize)) != 1 {
		return Header{}, fmt.Errorf("%w: page size %d", ErrInvalidHeader, h.PageSize)
	}
	if h.UsableSize() < 480 {
		return Header{}, fmt.Errorf("%w: %d reserved bytes on %d-byte pages", ErrInvalidHeader, h.ReservedBytes, h.PageSize)
	}
	if h.ReadVersion > 2 {
		return Header{}, fmt.Errorf("%w: read version %d", ErrInvalidHeader, h.ReadVersion)
	}
	switch h.TextEncoding {
	case 0:
		// An empty database has no encoding yet.
		h.TextEncoding = record.UTF8
	case record.UTF8, record.UTF16LE, record.UTF16BE:
	default:
		return Header{}, fmt.Errorf("%w: text encoding %d", ErrInvalidHeader, h.TextEncoding)
	}
	return h, nil
}
