package types

import "time"

// Record is one physical measurement.
//
// OutOfSpec is derived from Value, USL and LSL when the record is created
// (see spc.NewRecord) and is never recomputed in place. If the source data
// changes, the whole record is replaced.
type Record struct {
	// Index is the position of the record in the combined working set.
	// It is reassigned on every aggregation and is not taken from source data.
	Index int `json:"index"`

	// Serial is the external identity of the sampled unit. Not required unique.
	Serial string `json:"serialNumber,omitempty"`

	Value float64 `json:"value"`
	USL   float64 `json:"usl"`
	LSL   float64 `json:"lsl"`

	OutOfSpec bool `json:"isOutOfSpec"`
}

// Dataset is the ordered collection of records from one ingestion batch,
// usually one uploaded or dropped file.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Records   []Record  `json:"data"`
}

// SpecLimits is the single specification that governs capability analysis
// for a working set.
type SpecLimits struct {
	USL float64 `json:"usl"`
	LSL float64 `json:"lsl"`
}

// Inverted reports whether the upper limit is below the lower limit.
// Such limits are accepted but produce a meaningless capability index.
func (s SpecLimits) Inverted() bool {
	return s.USL < s.LSL
}

// Unset reports whether both limits are zero, which is what the record
// source produces when the limit columns are missing or unparseable.
func (s SpecLimits) Unset() bool {
	return s.USL == 0 && s.LSL == 0
}

// Width returns USL - LSL.
func (s SpecLimits) Width() float64 {
	return s.USL - s.LSL
}

// Target returns the midpoint between the limits.
func (s SpecLimits) Target() float64 {
	return (s.USL + s.LSL) / 2
}
