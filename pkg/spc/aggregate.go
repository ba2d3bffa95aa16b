package spc

import "github.com/measurestack/measurestack/pkg/types"

// Concat joins record batches in the given order and reassigns Index
// densely from 0. The input slices are not modified.
func Concat(batches ...[]types.Record) []types.Record {
	var total int
	for _, b := range batches {
		total += len(b)
	}
	out := make([]types.Record, 0, total)
	for _, b := range batches {
		for _, r := range b {
			r.Index = len(out)
			out = append(out, r)
		}
	}
	return out
}

// WorkingSet concatenates the records of datasets in ingestion order.
// There is no incremental form: removing a dataset means calling WorkingSet
// again on the survivors.
func WorkingSet(datasets []types.Dataset) []types.Record {
	batches := make([][]types.Record, len(datasets))
	for i, ds := range datasets {
		batches[i] = ds.Records
	}
	return Concat(batches...)
}
