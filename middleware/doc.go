// Package middleware exposes HTTP middleware built on authkit.Engine.
//
// # Middleware
//
//   - [Guard] requires a valid bearer access token and injects the claims.
//   - [ClientIP] records the caller address for audit events.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token decisions are
// delegated to Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Touch storage.
//   - Choose response bodies for callers that pass a FailureFunc.
package middleware
