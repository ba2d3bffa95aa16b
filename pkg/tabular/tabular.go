package tabular

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx.
	ErrUnsupportedFormat = errors.New("tabular: unsupported format")
	// ErrNoRows is returned when a sheet has a header but no data rows.
	ErrNoRows = errors.New("tabular: no data rows")
)

// column label pairs, preferred label first
var (
	serialLabels = []string{"序列号", "Serial"}
	valueLabels  = []string{"测量值", "Value"}
	uslLabels    = []string{"上限", "USL"}
	lslLabels    = []string{"下限", "LSL"}
)

// Supported reports whether name has an extension Read can decode.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Read decodes r according to the extension of name.
func Read(name string, r io.Reader) ([]types.Record, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		return ReadCSV(r, name)
	case ".xlsx":
		return ReadXLSX(r, name)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// header maps a label to its column position.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, cell := range row {
		label := strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
		if _, dup := h[label]; !dup {
			h[label] = i
		}
	}
	return h
}

// pick returns the first non-empty cell among labels.
func (h header) pick(row []string, labels []string) string {
	for _, l := range labels {
		i, ok := h[l]
		if !ok || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			return v
		}
	}
	return ""
}

// toRecords turns raw rows (header first) into records. Blank rows are
// skipped and do not advance the row counter.
func toRecords(rows [][]string, name string) ([]types.Record, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	h := newHeader(rows[0])
	base := filepath.Base(name)

	out := make([]types.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		serial := h.pick(row, serialLabels)
		if serial == "" {
			serial = fmt.Sprintf("%s-%d", base, len(out)+1)
		}
		rec := spc.NewRecord(serial,
			Coerce(h.pick(row, valueLabels)),
			Coerce(h.pick(row, uslLabels)),
			Coerce(h.pick(row, lslLabels)),
		)
		rec.Index = len(out)
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Coerce parses s as a float the lenient way: the longest numeric prefix
// counts, anything else is 0. The result is always finite; values that
// overflow float64 are 0 as well.
func Coerce(s string) float64 {
	p := numericPrefix(strings.TrimSpace(s))
	if p == "" {
		return 0
	}
	v, err := strconv.ParseFloat(p, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// numericPrefix returns the longest prefix of s of the form
// [+-]digits[.digits][e[+-]digits].
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return s[:i]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
