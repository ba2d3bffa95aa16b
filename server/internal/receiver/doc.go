// Package receiver implements wire.DatasetServiceServer, the gRPC endpoint
// that accepts datasets pushed by agents.
//
// PushDataset rejects a dataset without an ID or without records
// (codes.InvalidArgument) and a redelivered ID (codes.AlreadyExists); both
// are permanent for the agent's shipper. Storage failures map to
// codes.Unavailable so the agent retries. Authentication happens upstream in
// the interceptor from package auth.
package receiver
