// Package security inspects the TLS certificates of HTTPS measurement
// sources so the agent can warn before a source becomes unreachable
// because its certificate expired.
package security
