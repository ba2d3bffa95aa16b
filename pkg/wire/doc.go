// Package wire defines the agent→server RPC contract.
//
// The service is spc.v1.DatasetService with a single unary method,
// PushDataset. Messages are plain Go structs encoded as JSON through a gRPC
// codec registered under the content-subtype "json"; importing this package
// registers the codec, so both the agent and the server pick it up.
//
// Clients must request the codec per call. NewDatasetServiceClient does
// this for every call it makes.
package wire
