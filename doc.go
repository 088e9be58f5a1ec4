// Package authkit is a user-authentication engine with HS512 JWT access tokens,
// hashed opaque refresh tokens, local credential login and outbound (OAuth 2.0)
// identity login.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config], the error
// sentinels and value types ([TokenPair], [PublicUser], [AuthResult]). Flow
// orchestration and audit dispatch live under internal/ and are never exported.
// Persistence sits behind [storage.Repository] with memory, postgres and redis
// implementations under storage/.
//
// # What this package must NOT do
//
//   - Expose password hashes or stored refresh-token hashes in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder does not
//     touch storage).
//   - Import any sub-package that re-imports authkit (no import cycles).
//
// # Performance contract
//
// Validate is the hot path. It never touches storage. Refresh performs one
// lookup of the user's refresh rows plus the writes for the new pair.
package authkit
