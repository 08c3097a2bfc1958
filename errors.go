package rawseek

import (
	"errors"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
	"github.com/jordanwade90/rawseek/internal/pager"
	"github.com/jordanwade90/rawseek/internal/schema"
	"github.com/jordanwade90/rawseek/internal/svarint"
	"github.com/jordanwade90/rawseek/record"
)

// Errors returned by this package wrap one of these, for use with errors.Is.
var (
	ErrIO               = pager.ErrIO
	ErrInvalidHeader    = pager.ErrInvalidHeader
	ErrMalformedVarint  = svarint.ErrMalformed
	ErrUnknownPageType  = pagebuf.ErrUnknownPageType
	ErrCorruptBTree     = pagebuf.ErrCorrupt
	ErrTruncatedRecord  = record.ErrTruncated
	ErrSerialType       = record.ErrSerialType
	ErrSchemaNotFound   = schema.ErrNotFound
	ErrNoSuitableIndex  = errors.New("no suitable index")
	ErrUnsupportedTable = errors.New("unsupported table")
)
