// Package ingest turns fetched batches into datasets ready to ship.
//
// engine.go provides the stateful Engine. For every Batch it:
//   - drops the batch when the same source already produced identical bytes
//     within its recent history (dedupeWindow digests per source)
//   - assigns a fresh dataset ID (UUIDv4) and stamps CreatedAt with the
//     injectable clock
//   - computes the spc summary for logging; an inverted spec pair is
//     reported as a warning but the dataset still ships
//
// Engine.Process is safe for concurrent use: the inbox and every polled
// source call it from their own goroutines.
package ingest
