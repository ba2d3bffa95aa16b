// Package spc is the statistics engine: it turns an ordered sequence of
// measurement records into a process-capability summary.
//
// classify.go holds the per-record rule applied at ingestion:
// a record is out of spec iff Value > USL or Value < LSL (strict).
//
// summary.go provides Compute, a pure function from records to Summary:
// count, mean, population standard deviation, min/max, upper/lower exceed
// counts, yield and Cpk. The limit pair used for Cpk is the working set's
// SpecLimits, taken from the first record (SpecFrom). A non-finite Cpk is
// reported as 0; no other field is clamped. Empty input returns
// ErrEmptyDataset.
//
// aggregate.go concatenates datasets into the working set and reassigns
// Index densely. grade.go maps Cpk to excellent/marginal/poor.
// histogram.go and query.go derive chart bins, recent windows and filtered
// or sorted record views for presentation layers.
//
// Nothing in this package holds state; every function is safe for
// concurrent use and never mutates its input.
package spc
