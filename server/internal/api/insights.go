package api

import (
	"fmt"
	"math"
	"sort"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/pkg/types"
)

const (
	// offCenterRatio is how far the mean may drift from the target, as a
	// fraction of the tolerance width, before it is reported.
	offCenterRatio = 0.25
	// minSamples is the sample count below which Cpk is flagged as unstable.
	minSamples = 30
)

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeInsights derives hints from the working set and its summary.
// Hints are ordered critical first, then warnings, then info, then ok.
func computeInsights(records []types.Record, sum spc.Summary, err error) []Hint {
	if err != nil || sum.Count == 0 {
		return []Hint{{
			Key:    "no_data",
			Level:  "info",
			Title:  "No data",
			Detail: "The working set is empty. Upload a CSV or XLSX sheet or point an agent at this server.",
		}}
	}

	var hints []Hint
	spec := sum.Spec

	switch {
	case spec.Inverted():
		hints = append(hints, Hint{
			Key:   "inverted_limits",
			Level: "critical",
			Title: "Limits inverted",
			Detail: fmt.Sprintf("The upper limit (%g) is below the lower limit (%g). "+
				"Every value is classified against these limits as given, and Cpk is not meaningful. "+
				"Check the USL and LSL columns of the first sheet.", spec.USL, spec.LSL),
		})
	case spec.Unset():
		hints = append(hints, Hint{
			Key:   "no_limits",
			Level: "warning",
			Title: "No spec limits",
			Detail: "Both limits of the first record are zero, which usually means the USL and LSL " +
				"columns were missing or unreadable. Capability figures are computed against 0..0.",
		})
	}

	if mixed := countMixedLimits(records, spec); mixed > 0 {
		v := float64(mixed)
		hints = append(hints, Hint{
			Key:   "mixed_limits",
			Level: "info",
			Title: "Mixed limits",
			Detail: fmt.Sprintf("%d records carry limits different from the first record. "+
				"Their in/out classification uses their own limits, but Cpk uses %g..%g.",
				mixed, spec.LSL, spec.USL),
			Value: &v,
		})
	}

	if sum.Count > 1 && sum.StdDev == 0 {
		hints = append(hints, Hint{
			Key:   "zero_variance",
			Level: "info",
			Title: "No variation",
			Detail: fmt.Sprintf("All %d values equal %g. Cpk is undefined for a constant process "+
				"and is reported as 0.", sum.Count, sum.Mean),
		})
	}

	if w := spec.Width(); w > 0 {
		shift := (sum.Mean - spec.Target()) / w
		if math.Abs(shift) > offCenterRatio {
			v := shift * 100
			dir := "above"
			if shift < 0 {
				dir = "below"
			}
			hints = append(hints, Hint{
				Key:   "off_center",
				Level: "warning",
				Title: "Process off center",
				Detail: fmt.Sprintf("The mean %.4g sits %.0f%% of the tolerance width %s the target %.4g. "+
					"Centering the process would raise Cpk without reducing variation.",
					sum.Mean, math.Abs(v), dir, spec.Target()),
				Value: &v,
			})
		}
	}

	if sum.OutOfSpecCount > 0 {
		v := float64(sum.OutOfSpecCount)
		level := "warning"
		if sum.YieldPct < 95 {
			level = "critical"
		}
		hints = append(hints, Hint{
			Key:   "out_of_spec",
			Level: level,
			Title: fmt.Sprintf("%d out of spec", sum.OutOfSpecCount),
			Detail: fmt.Sprintf("%d of %d records are outside their limits (%d above USL, %d below LSL). "+
				"Yield is %.2f%%.", sum.OutOfSpecCount, sum.Count, sum.UpperExceeded, sum.LowerExceeded, sum.YieldPct),
			Value: &v,
		})
	}

	if sum.Count < minSamples {
		v := float64(sum.Count)
		hints = append(hints, Hint{
			Key:   "few_samples",
			Level: "info",
			Title: "Few samples",
			Detail: fmt.Sprintf("Only %d records. Capability estimates from fewer than %d samples "+
				"move a lot between batches.", sum.Count, minSamples),
			Value: &v,
		})
	}

	cpk := sum.Cpk
	switch sum.Grade {
	case spc.GradeExcellent:
		hints = append(hints, Hint{
			Key:    "capability",
			Level:  "ok",
			Title:  "Capable process",
			Detail: fmt.Sprintf("Cpk %.3f meets the %.2f target.", cpk, spc.ThresholdExcellent),
			Value:  &cpk,
		})
	case spc.GradeMarginal:
		hints = append(hints, Hint{
			Key:   "capability",
			Level: "warning",
			Title: "Marginal capability",
			Detail: fmt.Sprintf("Cpk %.3f is between %.2f and %.2f. The process fits the tolerance "+
				"with little margin.", cpk, spc.ThresholdMarginal, spc.ThresholdExcellent),
			Value: &cpk,
		})
	default:
		hints = append(hints, Hint{
			Key:   "capability",
			Level: "critical",
			Title: "Not capable",
			Detail: fmt.Sprintf("Cpk %.3f is below %.2f. Expect out-of-spec parts until the spread "+
				"is reduced or the process is centered.", cpk, spc.ThresholdMarginal),
			Value: &cpk,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}

func countMixedLimits(records []types.Record, spec types.SpecLimits) int {
	n := 0
	for _, r := range records {
		if r.USL != spec.USL || r.LSL != spec.LSL {
			n++
		}
	}
	return n
}
