// Package pager reads fixed-size pages from a SQLite database file.
package pager

import (
	"errors"
	"fmt"
	"io"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/record"
)

// ErrIO is returned when the byte source fails or returns a short read.
var ErrIO = errors.New("i/o error")

// Pager reads pages from an immutable database file.
// It holds no mutable state and is safe for concurrent use
// if the underlying io.ReaderAt is.
type Pager struct {
	r         io.ReaderAt
	header    Header
	pageCount uint32
}

// New reads the database header from r, which holds size bytes.
func New(r io.ReaderAt, size int64) (*Pager, error) {
	buf := make([]byte, pagebuf.DatabaseHeaderSize)
	if err := readFull(r, buf, 0); err != nil {
		return nil, fmt.Errorf("database header: %w", err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	pageSize := int64(h.PageSize)
	if size < pageSize || size%pageSize != 0 {
		return nil, fmt.Errorf("%w: file size %d is not a multiple of page size %d", ErrInvalidHeader, size, pageSize)
	}
	filePages := size / pageSize
	if filePages > 1<<32-2 {
		return nil, fmt.Errorf("%w: %d pages", ErrInvalidHeader, filePages)
	}

	p := &Pager{r: r, header: h, pageCount: uint32(filePages)}
	if h.PageCount != 0 && h.VersionValidFor == h.ChangeCounter {
		if int64(h.PageCount) > filePages {
			return nil, fmt.Errorf("%w: header declares %d pages but file holds %d", ErrInvalidHeader, h.PageCount, filePages)
		}
		p.pageCount = h.PageCount
	}
	return p, nil
}

func (p *Pager) Header() Header { return p.header }

// PageCount returns the number of pages in the database.
func (p *Pager) PageCount() uint32 { return p.pageCount }

func (p *Pager) UsableSize() int { return p.header.UsableSize() }

// Decoder returns a record decoder for the database text encoding.
func (p *Pager) Decoder() record.Decoder {
	return record.Decoder{Encoding: p.header.TextEncoding}
}

// ReadPage returns the raw bytes of page n.
func (p *Pager) ReadPage(n pagebuf.PageNumber) ([]byte, error) {
	if n < 1 || uint32(n) > p.pageCount {
		return nil, fmt.Errorf("page %d outside [1, %d]: %w", n, p.pageCount, pagebuf.ErrCorrupt)
	}
	buf := make([]byte, p.header.PageSize)
	if err := readFull(p.r, buf, int64(n-1)*int64(p.header.PageSize)); err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	}
	return buf, nil
}

// Page reads and parses b-tree page n.
func (p *Pager) Page(n pagebuf.PageNumber) (*pagebuf.Page, error) {
	buf, err := p.ReadPage(n)
	if err != nil {
		return nil, err
	}
	return pagebuf.Parse(buf, n, p.UsableSize())
}

func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: read %d of %d bytes at offset %d: %w", ErrIO, n, len(buf), off, err)
}
