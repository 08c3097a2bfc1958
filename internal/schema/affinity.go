package schema

import (
	"math"
	"strconv"
	"strings"
)

// Affinity is the type preference of a column.
type Affinity int

const (
	AffinityBlob Affinity = iota
	AffinityText
	AffinityNumeric
	AffinityInteger
	AffinityReal
)

func (a Affinity) String() string {
	switch a {
	case AffinityBlob:
		return "BLOB"
	case AffinityText:
		return "TEXT"
	case AffinityNumeric:
		return "NUMERIC"
	case AffinityInteger:
		return "INTEGER"
	case AffinityReal:
		return "REAL"
	}
	return "Affinity(" + strconv.Itoa(int(a)) + ")"
}

// ColumnAffinity derives the affinity of a declared column type.
func ColumnAffinity(declType string) Affinity {
	t := strings.ToUpper(declType)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	}
	return AffinityNumeric
}

// Apply converts a normalized value the way SQLite would before storing it
// in a column of affinity a, so that a probe compares equal to stored keys.
func (a Affinity) Apply(v any) any {
	switch a {
	case AffinityText:
		switch v := v.(type) {
		case int64:
			return strconv.FormatInt(v, 10)
		case float64:
			return formatReal(v)
		}
	case AffinityNumeric, AffinityInteger, AffinityReal:
		switch v := v.(type) {
		case string:
			if n, ok := parseNumeric(v); ok {
				return a.Apply(n)
			}
		case float64:
			if a != AffinityReal {
				if i, ok := exactInt(v); ok {
					return i
				}
			}
		case int64:
			if a == AffinityReal {
				return float64(v)
			}
		}
	}
	return v
}

// parseNumeric reports the number a well-formed numeric literal denotes.
// Surrounding spaces are allowed, as in SQLite.
func parseNumeric(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.ContainsAny(s, "xXpP_") || strings.EqualFold(strings.TrimLeft(s, "+-"), "inf") ||
		strings.EqualFold(strings.TrimLeft(s, "+-"), "infinity") || strings.EqualFold(s, "nan") {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

func exactInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// formatReal renders f with 15 significant digits, as SQLite converts REAL to TEXT.
func formatReal(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(f, 'g', 15, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
