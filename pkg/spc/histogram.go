package spc

import (
	"math"

	"github.com/measurestack/measurestack/pkg/types"
)

// DefaultBins is the bin count used by the dashboard histogram.
const DefaultBins = 15

// minHistogramRecords is the smallest working set worth binning.
const minHistogramRecords = 5

// Bin is one histogram bucket over [Start, End).
type Bin struct {
	Start float64
	End   float64
	Mid   float64
	Count int

	// OutOfSpec is true when the bin centre lies outside the spec limits.
	OutOfSpec bool
}

// Histogram bins the values of records. The range covers every value and
// the spec limits widened by 10% of the spec width on each side, so the
// limits are always visible. Returns nil for fewer than five records or
// bins < 1.
func Histogram(records []types.Record, bins int) []Bin {
	if len(records) < minHistogramRecords || bins < 1 {
		return nil
	}
	spec, _ := SpecFrom(records)
	margin := spec.Width() * 0.1

	lo := spec.LSL - margin
	hi := spec.USL + margin
	for _, r := range records {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		lo = math.Min(lo, r.Value)
		hi = math.Max(hi, r.Value)
	}
	if hi == lo {
		// zero limits and identical values
		lo, hi = lo-0.5, hi+0.5
	}
	step := (hi - lo) / float64(bins)

	out := make([]Bin, bins)
	for i := range out {
		b := &out[i]
		b.Start = lo + float64(i)*step
		b.End = lo + float64(i+1)*step
		b.Mid = b.Start + step/2
		b.OutOfSpec = Classify(b.Mid, spec.USL, spec.LSL)
	}

	for _, r := range records {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		f := math.Floor((r.Value - lo) / step)
		if f < 0 {
			continue
		}
		idx := bins - 1
		if f < float64(bins-1) {
			idx = int(f)
		}
		out[idx].Count++
	}
	return out
}
