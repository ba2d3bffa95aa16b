// Package store holds the server's dataset repository and its persistence
// backends (memory, SQLite, PostgreSQL). The repository keeps datasets in
// ingestion order and serves the combined working set and its summary.
package store
