// Package refresh issues, resolves and sweeps opaque refresh tokens.
//
// # Token format
//
// A refresh token is a UUIDv4 string handed to the client exactly once. Only its
// hex SHA-256 digest is persisted; resolution hashes the candidate and compares it
// in constant time against every row stored for the username.
//
// # Architecture boundaries
//
// This package owns secret generation, hashing, matching, the pure expiry check
// and the periodic [Sweeper]. Persistence goes through [storage.RefreshTokenStore];
// isolation between a sweep and a concurrent resolve is the backend's job.
// Whether a used token is rotated away is decided by the Engine.
//
// # What this package must NOT do
//
//   - Persist or log plaintext secrets.
//   - Import authkit or jwt.
//   - Decide refresh outcomes for callers beyond NotFound and Expired.
package refresh
