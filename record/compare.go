package record

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// Normalize converts v to one of the types a decoded value can have.
// NaN becomes nil, as SQLite stores NaN as NULL.
func Normalize(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) {
			return nil, nil
		}
		return v, nil
	case float32:
		if math.IsNaN(float64(v)) {
			return nil, nil
		}
		return float64(v), nil
	case nil, int64, string, []byte:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return float64(v), nil
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return float64(v), nil
		}
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func class(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

// Compare orders two normalized values the way SQLite's BINARY collation does:
// NULL sorts before numbers, numbers before text and text before blobs.
// Numbers compare by value regardless of storage class.
func Compare(a, b any) int {
	ca, cb := class(a), class(b)
	if ca != cb {
		return ca - cb
	}
	switch a := a.(type) {
	case nil:
		return 0
	case int64:
		if b, ok := b.(int64); ok {
			return compareInt(a, b)
		}
		return -compareFloatInt(b.(float64), a)
	case float64:
		if b, ok := b.(int64); ok {
			return compareFloatInt(a, b)
		}
		return compareFloat(a, b.(float64))
	case string:
		return strings.Compare(a, b.(string))
	default:
		return bytes.Compare(a.([]byte), b.([]byte))
	}
}

// ComparePrefix compares key against the first len(key) values of entry.
// A true desc entry reverses the order of that column.
func ComparePrefix(key, entry []any, desc []bool) int {
	for i, k := range key {
		if i >= len(entry) {
			return 1
		}
		c := Compare(k, entry[i])
		if i < len(desc) && desc[i] {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloatInt(f float64, i int64) int {
	switch {
	case math.IsNaN(f):
		return -1
	case f < -9223372036854775808.0:
		return -1
	case f >= 9223372036854775808.0:
		return 1
	}
	if c := compareInt(int64(f), i); c != 0 {
		return c
	}
	// Same integer part; a fractional part makes the float larger or smaller.
	return compareFloat(f, math.Trunc(f))
}
