// Package types defines shared Go types used by the agent, the spcctl CLI
// and the server. These are the canonical in-memory representations of
// measurement data; the same structs are used verbatim as the JSON wire and
// persistence format.
package types
