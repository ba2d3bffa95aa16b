package spc

import "github.com/measurestack/measurestack/pkg/types"

// Classify reports whether value lies outside [lsl, usl].
//
// Both comparisons are strict: a value equal to a limit conforms. Degenerate
// limits are not second-guessed; with usl == lsl == 0 every nonzero value is
// out of spec.
func Classify(value, usl, lsl float64) bool {
	return value > usl || value < lsl
}

// NewRecord builds a Record and derives its OutOfSpec flag.
// Index is left at zero; it is assigned when the working set is built.
func NewRecord(serial string, value, usl, lsl float64) types.Record {
	return types.Record{
		Serial:    serial,
		Value:     value,
		USL:       usl,
		LSL:       lsl,
		OutOfSpec: Classify(value, usl, lsl),
	}
}
