package spc

import (
	"errors"
	"math"

	"github.com/measurestack/measurestack/pkg/types"
)

// ErrEmptyDataset is returned when a summary is requested for zero records.
// Callers are expected to gate on non-empty input; no default summary is
// fabricated.
var ErrEmptyDataset = errors.New("spc: empty dataset")

// Summary is the statistical summary of a working set.
type Summary struct {
	Count int `json:"count"`

	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"` // population standard deviation (divides by Count)
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`

	UpperExceeded  int `json:"upper_exceeded"` // records with Value > their own USL
	LowerExceeded  int `json:"lower_exceeded"` // records with Value < their own LSL
	OutOfSpecCount int `json:"out_of_spec_count"`

	YieldPct float64 `json:"yield_pct"` // conforming fraction, 0–100

	// Cpk is the process capability index against Spec. It is 0 whenever the
	// raw index is not finite, e.g. for a zero-variance dataset.
	Cpk   float64 `json:"cpk"`
	Grade string  `json:"grade"`

	// Spec is the limit pair Cpk was computed against.
	Spec types.SpecLimits `json:"spec"`
}

// SpecFrom returns the specification limits of a working set, which are the
// limits of its first record. One specification per dataset is assumed;
// limits on later records are ignored for capability analysis.
func SpecFrom(records []types.Record) (types.SpecLimits, error) {
	if len(records) == 0 {
		return types.SpecLimits{}, ErrEmptyDataset
	}
	return types.SpecLimits{USL: records[0].USL, LSL: records[0].LSL}, nil
}

// Compute summarises records using the limits of the first record for Cpk.
func Compute(records []types.Record) (Summary, error) {
	spec, err := SpecFrom(records)
	if err != nil {
		return Summary{}, err
	}
	return ComputeWithSpec(records, spec)
}

// ComputeWithSpec summarises records and computes Cpk against spec.
//
// The exceed counts always use each record's own limits; only Cpk uses spec.
func ComputeWithSpec(records []types.Record, spec types.SpecLimits) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, ErrEmptyDataset
	}

	out := Summary{
		Count: len(records),
		Min:   records[0].Value,
		Max:   records[0].Value,
		Spec:  spec,
	}
	n := float64(out.Count)

	var sum float64
	for _, r := range records {
		sum += r.Value
		if r.Value < out.Min {
			out.Min = r.Value
		}
		if r.Value > out.Max {
			out.Max = r.Value
		}
		if r.Value > r.USL {
			out.UpperExceeded++
		}
		if r.Value < r.LSL {
			out.LowerExceeded++
		}
	}
	out.Mean = sum / n

	var sq float64
	for _, r := range records {
		d := r.Value - out.Mean
		sq += d * d
	}
	out.StdDev = math.Sqrt(sq / n)

	out.OutOfSpecCount = out.UpperExceeded + out.LowerExceeded
	out.YieldPct = float64(out.Count-out.OutOfSpecCount) / n * 100

	out.Cpk = cpk(spec, out.Mean, out.StdDev)
	out.Grade = Grade(out.Cpk)
	return out, nil
}

// cpk computes min(Cpu, Cpl). Zero variance divides by zero; any non-finite
// result is reported as 0.
func cpk(spec types.SpecLimits, mean, sd float64) float64 {
	cpu := (spec.USL - mean) / (3 * sd)
	cpl := (mean - spec.LSL) / (3 * sd)
	v := math.Min(cpu, cpl)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
