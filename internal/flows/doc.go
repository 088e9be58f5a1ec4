// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunGenerateTokens, RunRefresh, RunOutboundLogin, RunLogin,
// RunRegister, RunValidate, RunProfile) accepts a typed dependency struct and
// returns a result carrying a failure kind. The root package maps kinds to its
// public sentinel errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token codec, refresh store, user store,
// identity provider and image store. They do NOT own any of these resources.
// Ownership stays with the Engine, which also decides how detached work such as
// the profile image backfill is scheduled.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authkit (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
