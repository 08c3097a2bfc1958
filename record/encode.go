package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jordanwade90/rawseek/internal/svarint"
)

func headerLen(l int) int {
	return l + headerLenLen(l)
}

func headerLenLen(l int) int {
	// The header length varint counts itself, so it may need one more byte
	// than the length of the serial types alone.
	return svarint.Length(l + svarint.Length(l))
}

// Record builds an encoded record one value at a time.
type Record struct {
	header  []byte
	payload []byte
}

func (record *Record) AppendNull() {
	record.header = append(record.header, 0)
}

func (record *Record) AppendInt(i int64) {
	switch {
	case i == 0:
		record.header = append(record.header, 8)
		return
	case i == 1:
		record.header = append(record.header, 9)
		return
	}
	for serialType := int64(1); serialType <= 6; serialType++ {
		n := intWidth[serialType]
		bits := uint(8 * n)
		if serialType == 6 || (i >= -(1<<(bits-1)) && i < 1<<(bits-1)) {
			record.header = append(record.header, byte(serialType))
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(i))
			record.payload = append(record.payload, buf[8-n:]...)
			return
		}
	}
}

func (record *Record) AppendFloat(f float64) {
	record.header = append(record.header, 7)
	record.payload = binary.BigEndian.AppendUint64(record.payload, math.Float64bits(f))
}

func (record *Record) AppendString(s string) {
	record.header = svarint.Append(record.header, 2*len(s)+13)
	record.payload = append(record.payload, s...)
}

// AppendStringSlice appends text that is already in the database text encoding.
func (record *Record) AppendStringSlice(s []byte) {
	record.header = svarint.Append(record.header, 2*len(s)+13)
	record.payload = append(record.payload, s...)
}

func (record *Record) AppendBlob(b []byte) {
	record.header = svarint.Append(record.header, 2*len(b)+12)
	record.payload = append(record.payload, b...)
}

// AppendValue appends any value Normalize accepts.
func (record *Record) AppendValue(v any) error {
	v, err := Normalize(v)
	if err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		record.AppendNull()
	case int64:
		record.AppendInt(v)
	case float64:
		record.AppendFloat(v)
	case string:
		record.AppendString(v)
	case []byte:
		record.AppendBlob(v)
	}
	return nil
}

func (record *Record) AppendTo(p []byte) []byte {
	p = svarint.Append(p, headerLen(len(record.header)))
	p = append(p, record.header...)
	p = append(p, record.payload...)
	return p
}

func (record *Record) Reset() {
	record.header = record.header[:0]
	record.payload = record.payload[:0]
}

// Encode returns the record holding values.
func Encode(values ...any) ([]byte, error) {
	var record Record
	for i, v := range values {
		if err := record.AppendValue(v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return record.AppendTo(nil), nil
}
