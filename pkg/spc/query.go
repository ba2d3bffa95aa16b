package spc

import (
	"sort"
	"strings"

	"github.com/measurestack/measurestack/pkg/types"
)

// Sortable record fields accepted by SortBy.
const (
	FieldIndex  = "index"
	FieldSerial = "serial"
	FieldValue  = "value"
	FieldUSL    = "usl"
	FieldLSL    = "lsl"
)

// Tail returns a copy of the last n records, or all of them when n is
// larger than the slice or not positive.
func Tail(records []types.Record, n int) []types.Record {
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	out := make([]types.Record, n)
	copy(out, records[len(records)-n:])
	return out
}

// Filter returns the records whose serial contains q, case-insensitively.
// An empty q matches everything.
func Filter(records []types.Record, q string) []types.Record {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if q == "" || strings.Contains(strings.ToLower(r.Serial), q) {
			out = append(out, r)
		}
	}
	return out
}

// ValidSortField reports whether field is accepted by SortBy.
func ValidSortField(field string) bool {
	switch field {
	case FieldIndex, FieldSerial, FieldValue, FieldUSL, FieldLSL:
		return true
	}
	return false
}

// SortBy returns a sorted copy of records. Unknown fields sort by index.
// The sort is stable so equal keys keep working-set order.
func SortBy(records []types.Record, field string, desc bool) []types.Record {
	out := make([]types.Record, len(records))
	copy(out, records)

	less := func(a, b types.Record) bool {
		switch field {
		case FieldSerial:
			return a.Serial < b.Serial
		case FieldValue:
			return a.Value < b.Value
		case FieldUSL:
			return a.USL < b.USL
		case FieldLSL:
			return a.LSL < b.LSL
		default:
			return a.Index < b.Index
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}
