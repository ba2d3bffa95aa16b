// Package report renders spc results as fixed-width text for spcctl.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

// maxBar is the widest histogram bar in cells.
const maxBar = 40

// Summary renders s as a two-column key/value table.
func Summary(s spc.Summary) []string {
	rows := [][]string{
		{"count", strconv.Itoa(s.Count)},
		{"mean", num(s.Mean)},
		{"std dev", num(s.StdDev)},
		{"min", num(s.Min)},
		{"max", num(s.Max)},
		{"usl", num(s.Spec.USL)},
		{"lsl", num(s.Spec.LSL)},
		{"above usl", strconv.Itoa(s.UpperExceeded)},
		{"below lsl", strconv.Itoa(s.LowerExceeded)},
		{"out of spec", strconv.Itoa(s.OutOfSpecCount)},
		{"yield", fmt.Sprintf("%.2f%%", s.YieldPct)},
		{"cpk", fmt.Sprintf("%.3f", s.Cpk)},
		{"grade", s.Grade},
	}
	return formatTable([]string{"Metric", "Value"}, rows, map[int]bool{1: true})
}

// Records renders one row per record. Out-of-spec rows are marked with "!".
func Records(recs []types.Record) []string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		flag := ""
		if r.OutOfSpec {
			flag = "!"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index), r.Serial, num(r.Value), num(r.USL), num(r.LSL), flag,
		})
	}
	return formatTable(
		[]string{"#", "Serial", "Value", "USL", "LSL", ""},
		rows,
		map[int]bool{0: true, 2: true, 3: true, 4: true},
	)
}

// Histogram renders bins as horizontal bars scaled to the fullest bin.
// Bars of bins whose centre is out of spec use '#', others '='.
func Histogram(bins []spc.Bin) []string {
	var peak int
	for _, b := range bins {
		if b.Count > peak {
			peak = b.Count
		}
	}
	rows := make([][]string, 0, len(bins))
	for _, b := range bins {
		n := 0
		if peak > 0 {
			n = int(math.Round(float64(b.Count) / float64(peak) * maxBar))
		}
		mark := "="
		if b.OutOfSpec {
			mark = "#"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%s..%s", num(b.Start), num(b.End)),
			strconv.Itoa(b.Count),
			strings.Repeat(mark, n),
		})
	}
	return formatTable([]string{"Range", "N", ""}, rows, map[int]bool{1: true})
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTable(headers []string, rows [][]string, rightAlignCols map[int]bool) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	widths := make([]int, colCount)
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, formatRow(headers, widths, rightAlignCols))
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths, rightAlignCols))
	}
	return lines
}

func formatRow(row []string, widths []int, rightAlignCols map[int]bool) string {
	var b strings.Builder
	for i := 0; i < len(widths); i++ {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(padCell(cell, widths[i], rightAlignCols[i]))
	}
	return strings.TrimRight(b.String(), " ")
}

func padCell(value string, width int, rightAlign bool) string {
	pad := width - runewidth.StringWidth(value)
	if pad <= 0 {
		return value
	}
	if rightAlign {
		return strings.Repeat(" ", pad) + value
	}
	return value + strings.Repeat(" ", pad)
}
