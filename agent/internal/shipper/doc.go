// Package shipper pushes parsed datasets to the SPC server via gRPC
// (DatasetService.PushDataset unary RPC).
//
// Shipper.Ship() is non-blocking: results are placed in an in-memory
// channel (default capacity 1000). When the buffer is full the oldest
// dataset is evicted.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection or send errors.
// Permanent gRPC errors (Unauthenticated, PermissionDenied, InvalidArgument,
// AlreadyExists) discard the dataset immediately rather than retrying.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
//
// The dialFn field is injectable for testing.
package shipper
