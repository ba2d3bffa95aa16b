package spc

import (
	"testing"

	"github.com/measurestack/measurestack/pkg/types"
)

func TestTail(t *testing.T) {
	in := recs(12, 8, 1, 2, 3, 4, 5)
	tests := []struct {
		n    int
		want []float64
	}{
		{2, []float64{4, 5}},
		{5, []float64{1, 2, 3, 4, 5}},
		{20, []float64{1, 2, 3, 4, 5}},
		{0, []float64{1, 2, 3, 4, 5}},
	}
	for _, tc := range tests {
		got := Tail(in, tc.n)
		if len(got) != len(tc.want) {
			t.Fatalf("Tail(%d) len = %d, want %d", tc.n, len(got), len(tc.want))
		}
		for i := range got {
			if got[i].Value != tc.want[i] {
				t.Errorf("Tail(%d)[%d] = %v, want %v", tc.n, i, got[i].Value, tc.want[i])
			}
		}
	}
	if got := Tail(nil, 20); len(got) != 0 {
		t.Errorf("Tail(nil) = %v", got)
	}
}

func TestFilter(t *testing.T) {
	in := []types.Record{
		{Serial: "LOT-A-001"},
		{Serial: "lot-b-002"},
		{Serial: "X-3"},
	}
	if got := Filter(in, "lot"); len(got) != 2 {
		t.Errorf("Filter(lot) matched %d, want 2", len(got))
	}
	if got := Filter(in, "B-00"); len(got) != 1 || got[0].Serial != "lot-b-002" {
		t.Errorf("Filter(B-00) = %+v", got)
	}
	if got := Filter(in, ""); len(got) != 3 {
		t.Errorf("Filter(\"\") matched %d, want 3", len(got))
	}
	if got := Filter(in, "zzz"); len(got) != 0 {
		t.Errorf("Filter(zzz) matched %d, want 0", len(got))
	}
}

func TestSortBy(t *testing.T) {
	in := []types.Record{
		{Index: 0, Serial: "b", Value: 3, USL: 1, LSL: 9},
		{Index: 1, Serial: "a", Value: 1, USL: 3, LSL: 7},
		{Index: 2, Serial: "c", Value: 2, USL: 2, LSL: 8},
	}
	tests := []struct {
		field string
		desc  bool
		want  []int // expected Index order
	}{
		{FieldValue, false, []int{1, 2, 0}},
		{FieldValue, true, []int{0, 2, 1}},
		{FieldSerial, false, []int{1, 0, 2}},
		{FieldUSL, false, []int{0, 2, 1}},
		{FieldLSL, true, []int{0, 2, 1}},
		{FieldIndex, true, []int{2, 1, 0}},
		{"bogus", false, []int{0, 1, 2}},
	}
	for _, tc := range tests {
		got := SortBy(in, tc.field, tc.desc)
		for i, r := range got {
			if r.Index != tc.want[i] {
				t.Errorf("SortBy(%s, desc=%v) order = %v, want %v", tc.field, tc.desc, indices(got), tc.want)
				break
			}
		}
	}
	if in[0].Index != 0 || in[1].Index != 1 {
		t.Error("SortBy mutated input")
	}
}

func TestValidSortField(t *testing.T) {
	for _, f := range []string{"index", "serial", "value", "usl", "lsl"} {
		if !ValidSortField(f) {
			t.Errorf("ValidSortField(%q) = false", f)
		}
	}
	if ValidSortField("mean") {
		t.Error("ValidSortField(mean) = true")
	}
}

func indices(rs []types.Record) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Index
	}
	return out
}
