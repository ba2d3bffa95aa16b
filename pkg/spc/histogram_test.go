package spc

import (
	"math"
	"testing"
)

func TestHistogram_TooFewRecords(t *testing.T) {
	if got := Histogram(recs(12, 8, 9, 10, 11, 10), DefaultBins); got != nil {
		t.Errorf("expected nil for 4 records, got %d bins", len(got))
	}
	if got := Histogram(recs(12, 8, 9, 10, 11, 10, 10), 0); got != nil {
		t.Errorf("expected nil for zero bins, got %d bins", len(got))
	}
}

func TestHistogram_CountsEveryValue(t *testing.T) {
	in := recs(12, 8, 7, 8, 9, 10, 10, 11, 12, 13, 25)
	bins := Histogram(in, DefaultBins)
	if len(bins) != DefaultBins {
		t.Fatalf("len = %d, want %d", len(bins), DefaultBins)
	}
	var total int
	for _, b := range bins {
		total += b.Count
	}
	if total != len(in) {
		t.Errorf("binned %d values, want %d", total, len(in))
	}
	// the maximum lands in the last bin
	if bins[len(bins)-1].Count == 0 {
		t.Error("expected max value in last bin")
	}
}

func TestHistogram_RangeIncludesSpecMargin(t *testing.T) {
	in := recs(12, 8, 10, 10, 10, 10, 10)
	bins := Histogram(in, 4)
	// width 4, margin 0.4 each side -> [7.6, 12.4]
	if !almostEqual(bins[0].Start, 7.6, 1e-9) {
		t.Errorf("first bin start = %v, want 7.6", bins[0].Start)
	}
	if !almostEqual(bins[3].End, 12.4, 1e-9) {
		t.Errorf("last bin end = %v, want 12.4", bins[3].End)
	}
	// mid of [7.6, 8.8) is 8.2
	if bins[0].OutOfSpec {
		t.Errorf("bin 0 mid %v flagged out of spec", bins[0].Mid)
	}
}

func TestHistogram_FlagsBinsOutsideLimits(t *testing.T) {
	in := recs(12, 8, 0, 10, 10, 10, 20)
	bins := Histogram(in, 10)
	// range [0, 20], step 2
	for _, b := range bins {
		want := b.Mid > 12 || b.Mid < 8
		if b.OutOfSpec != want {
			t.Errorf("bin [%v,%v) OutOfSpec = %v, want %v", b.Start, b.End, b.OutOfSpec, want)
		}
	}
}

func TestHistogram_SkipsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		in := recs(12, 8, 9, 10, 11, 10, 10)
		in[2].Value = v
		bins := Histogram(in, 5)
		var total int
		for _, b := range bins {
			total += b.Count
		}
		if total != 4 {
			t.Errorf("value %v: binned %d values, want 4", v, total)
		}
		if last := bins[len(bins)-1]; math.IsInf(last.End, 0) {
			t.Errorf("value %v: range widened to %v", v, last.End)
		}
	}
}

func TestHistogram_ZeroWidth(t *testing.T) {
	bins := Histogram(recs(0, 0, 0, 0, 0, 0, 0), 4)
	var total int
	for _, b := range bins {
		total += b.Count
	}
	if total != 5 {
		t.Errorf("binned %d values, want 5", total)
	}
}
