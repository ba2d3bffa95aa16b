package api

import (
	"testing"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

func recs(usl, lsl float64, values ...float64) []types.Record {
	out := make([]types.Record, len(values))
	for i, v := range values {
		out[i] = spc.NewRecord("S", v, usl, lsl)
		out[i].Index = i
	}
	return out
}

func keys(hints []Hint) map[string]string {
	m := make(map[string]string, len(hints))
	for _, h := range hints {
		m[h.Key] = h.Level
	}
	return m
}

func insightsFor(t *testing.T, rs []types.Record) []Hint {
	t.Helper()
	sum, err := spc.Compute(rs)
	return computeInsights(rs, sum, err)
}

func TestInsights(t *testing.T) {
	tests := []struct {
		name    string
		records []types.Record
		want    map[string]string
		absent  []string
	}{
		{
			name:    "empty",
			records: nil,
			want:    map[string]string{"no_data": "info"},
		},
		{
			name:    "inverted limits",
			records: recs(0, 10, 4, 5, 6),
			want:    map[string]string{"inverted_limits": "critical"},
			absent:  []string{"off_center"},
		},
		{
			name:    "unset limits",
			records: recs(0, 0, 1, 2, 3),
			want:    map[string]string{"no_limits": "warning"},
		},
		{
			name:    "zero variance",
			records: recs(10, 0, 5, 5, 5),
			want:    map[string]string{"zero_variance": "info", "capability": "critical"},
		},
		{
			name:    "off center and out of spec",
			records: recs(10, 0, 8, 9, 9.5, 11),
			want:    map[string]string{"off_center": "warning", "out_of_spec": "critical"},
		},
		{
			name:    "capable",
			records: recs(10, 0, 4.9, 5, 5.1, 5, 4.95, 5.05),
			want:    map[string]string{"capability": "ok", "few_samples": "info"},
			absent:  []string{"out_of_spec", "off_center"},
		},
		{
			name:    "mixed limits",
			records: append(recs(10, 0, 5, 6), spc.NewRecord("X", 5, 20, 0)),
			want:    map[string]string{"mixed_limits": "info"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := keys(insightsFor(t, tc.records))
			for k, lvl := range tc.want {
				if got[k] != lvl {
					t.Errorf("hint %s = %q, want %q (all: %v)", k, got[k], lvl, got)
				}
			}
			for _, k := range tc.absent {
				if _, ok := got[k]; ok {
					t.Errorf("unexpected hint %s", k)
				}
			}
		})
	}
}

func TestInsights_Ordered(t *testing.T) {
	hints := insightsFor(t, recs(10, 0, 8, 9, 9.5, 11))
	for i := 1; i < len(hints); i++ {
		if levelRank[hints[i-1].Level] > levelRank[hints[i].Level] {
			t.Fatalf("hints out of order: %s before %s", hints[i-1].Level, hints[i].Level)
		}
	}
}
