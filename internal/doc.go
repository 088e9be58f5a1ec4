// Package internal holds helpers that are private to authkit.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: environment loading for the authd binary
//   - flows: flow orchestrators behind every Engine operation
//   - logging: slog construction for the binaries
//   - metrics: lock-free counters and the Validate latency histogram
//   - rate: per-client request limiting for the HTTP boundary
//
// # What this package must NOT do
//
//   - Export types that appear in the public authkit API.
//   - Be imported by any package outside the authkit module.
package internal
