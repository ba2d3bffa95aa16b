// Package backup mirrors the serialized dataset collection to a blob store
// (a local directory or an S3-compatible bucket) after every repository
// change, and can restore it into an empty repository at startup.
package backup
