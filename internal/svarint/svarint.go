// Package svarint implements the big-endian variable-length integers
// used by the SQLite file format.
//
// A varint is 1 to 9 bytes long. Each of the first 8 bytes contributes
// its low 7 bits and uses the high bit as a continuation flag;
// a 9th byte, if reached, contributes all 8 bits.
package svarint

import (
	"errors"
	"math/bits"

	"golang.org/x/exp/constraints"
)

// MaxLen is the longest encoding of a varint.
const MaxLen = 9

// ErrMalformed is returned when a buffer ends before a varint terminates.
var ErrMalformed = errors.New("malformed varint")

// Get decodes the varint at the start of buf,
// returning its value and the number of bytes consumed.
func Get(buf []byte) (int64, int, error) {
	var x uint64
	for i := 0; i < MaxLen; i++ {
		if i == len(buf) {
			return 0, 0, ErrMalformed
		}
		b := buf[i]
		if i == MaxLen-1 {
			return int64(x<<8 | uint64(b)), MaxLen, nil
		}
		x = x<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return int64(x), i + 1, nil
		}
	}
	panic("unreachable")
}

// GetAt decodes the varint at buf[off:], returning the value and the offset just past it.
func GetAt(buf []byte, off int) (int64, int, error) {
	if off < 0 || off > len(buf) {
		return 0, off, ErrMalformed
	}
	x, n, err := Get(buf[off:])
	return x, off + n, err
}

// Length returns the number of bytes Append would use to encode x.
func Length[T constraints.Integer](x T) int {
	xl := 64 - bits.LeadingZeros64(uint64(x))
	if xl > 56 {
		return MaxLen
	}
	if xl == 0 {
		return 1
	}
	return (xl + 6) / 7
}

// Append appends the encoding of x to buf.
// Negative values are encoded as their two's-complement bit pattern and always use 9 bytes.
func Append[T constraints.Integer](buf []byte, x T) []byte {
	var tmp [MaxLen]byte
	n := Put(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// Put encodes x into buf, which must be long enough, and returns the number of bytes written.
func Put[T constraints.Integer](buf []byte, x T) int {
	u := uint64(x)
	n := Length(x)
	if n == MaxLen {
		buf[8] = byte(u)
		u >>= 8
		for i := 7; i >= 0; i-- {
			buf[i] = byte(u&0x7f) | 0x80
			u >>= 7
		}
		return MaxLen
	}
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(u&0x7f) | 0x80
		u >>= 7
	}
	buf[n-1] &^= 0x80
	return n
}
