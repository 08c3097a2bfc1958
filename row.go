package rawseek

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Row is one table row. Values are nil, int64, float64, string or []byte,
// one per column in declaration order.
type Row struct {
	Rowid   int64
	Columns []string
	Values  []any
}

// Get returns the value of the named column, ignoring case.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON encodes the row as an object with the columns in declaration order.
// Blobs are base64 encoded.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"rowid":`)
	b, err := json.Marshal(r.Rowid)
	if err != nil {
		return nil, err
	}
	buf.Write(b)
	for i, v := range r.Values {
		name := "column" + strconv.Itoa(i)
		if i < len(r.Columns) {
			name = r.Columns[i]
		}
		if b, err = json.Marshal(name); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(b)
		buf.WriteByte(':')
		if b, err = json.Marshal(v); err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
