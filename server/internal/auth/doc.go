// Package auth provides API key authentication for the server.
//
// APIKeyInterceptor(mode, header, key) returns a gRPC UnaryServerInterceptor
// that validates the key from the named gRPC metadata header. Middleware
// applies the same rule to HTTP requests.
//
// When mode != "apikey" or key == "", all calls pass through (useful for local
// development with auth disabled). When the key is incorrect or absent,
// gRPC calls fail with codes.Unauthenticated and HTTP requests with 401.
package auth
