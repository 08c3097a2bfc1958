package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/jordanwade90/rawseek/internal/svarint"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrTruncated is returned when a record has fewer bytes than its header declares.
	ErrTruncated = errors.New("truncated record")
	// ErrSerialType is returned for the reserved serial types 10 and 11.
	ErrSerialType = errors.New("invalid serial type")
)

// TextEncoding is the database text encoding from the file header.
type TextEncoding uint32

const (
	UTF8    TextEncoding = 1
	UTF16LE TextEncoding = 2
	UTF16BE TextEncoding = 3
)

func (e TextEncoding) String() string {
	switch e {
	case UTF8:
		return "UTF-8"
	case UTF16LE:
		return "UTF-16le"
	case UTF16BE:
		return "UTF-16be"
	}
	return fmt.Sprintf("TextEncoding(%d)", uint32(e))
}

// byte widths of the integer serial types 1 through 6
var intWidth = [...]int{0, 1, 2, 3, 4, 6, 8}

// SerialTypeLen returns the number of body bytes a value of serial type t occupies.
func SerialTypeLen(t int64) (int64, error) {
	switch {
	case t < 0 || t == 10 || t == 11:
		return 0, fmt.Errorf("%w %d", ErrSerialType, t)
	case t <= 6:
		return int64(intWidth[t]), nil
	case t == 7:
		return 8, nil
	case t <= 9:
		return 0, nil
	case t%2 == 0:
		return (t - 12) / 2, nil
	default:
		return (t - 13) / 2, nil
	}
}

// Decoder decodes records of a database with a given text encoding.
// The zero value decodes UTF-8 text.
type Decoder struct {
	Encoding TextEncoding
}

// Decode decodes payload using UTF-8 for text values.
func Decode(payload []byte, columns int) ([]any, error) {
	return Decoder{}.Decode(payload, columns)
}

// Decode decodes the first columns values of payload.
// If the record holds fewer values, the missing trailing values are nil,
// as for a column added by ALTER TABLE after the row was written.
// If columns <= 0, every value in the record is decoded.
func (d Decoder) Decode(payload []byte, columns int) ([]any, error) {
	hdrLen, pos, err := svarint.GetAt(payload, 0)
	if err != nil {
		return nil, fmt.Errorf("record header length: %w", err)
	}
	if hdrLen < int64(pos) || hdrLen > int64(len(payload)) {
		return nil, fmt.Errorf("header length %d with %d payload bytes: %w", hdrLen, len(payload), ErrTruncated)
	}
	header := payload[:hdrLen]

	var types []int64
	for pos < len(header) && (columns <= 0 || len(types) < columns) {
		var t int64
		if t, pos, err = svarint.GetAt(header, pos); err != nil {
			return nil, fmt.Errorf("serial type %d: %w", len(types), err)
		}
		types = append(types, t)
	}

	n := columns
	if n < len(types) {
		n = len(types)
	}
	values := make([]any, n)
	body := int64(len(header))
	for i, t := range types {
		size, err := SerialTypeLen(t)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		if body+size > int64(len(payload)) {
			return nil, fmt.Errorf("column %d needs %d bytes at %d of %d: %w", i, size, body, len(payload), ErrTruncated)
		}
		if values[i], err = d.value(t, payload[body:body+size]); err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		body += size
	}
	return values, nil
}

func (d Decoder) value(t int64, b []byte) (any, error) {
	switch {
	case t == 0:
		return nil, nil
	case t <= 6:
		var buf [8]byte
		copy(buf[8-len(b):], b)
		// Shift left then arithmetic shift right to sign-extend.
		shift := uint(64 - 8*len(b))
		return int64(binary.BigEndian.Uint64(buf[:])<<shift) >> shift, nil
	case t == 7:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case t == 8:
		return int64(0), nil
	case t == 9:
		return int64(1), nil
	case t%2 == 0:
		return bytes.Clone(b), nil
	default:
		return d.text(b)
	}
}

func (d Decoder) text(b []byte) (string, error) {
	enc := d.Encoding.utf16()
	if enc == nil {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	return string(out), err
}

func (e TextEncoding) utf16() encoding.Encoding {
	switch e {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return nil
}

// Encode converts UTF-8 text to its stored form in encoding e.
// Text in that form compares like the BINARY collation,
// which compares the stored bytes.
func (e TextEncoding) Encode(s string) (string, error) {
	enc := e.utf16()
	if enc == nil {
		return s, nil
	}
	return enc.NewEncoder().String(s)
}
