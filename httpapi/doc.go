// Package httpapi is the HTTP boundary for authkit.
//
// [NewRouter] mounts the auth and user routes on a chi router. Handlers decode
// JSON, call the engine, and write either the result or an [ErrorBody].
// [StatusFor] is the single mapping from engine errors to HTTP statuses.
//
// # Architecture boundaries
//
// Handlers depend on [AuthService], not on storage. Token checks on
// /user/profile go through middleware.Guard.
//
// # What this package must NOT do
//
//   - Hash passwords, sign tokens, or read the repository.
//   - Echo internal error text in 500 responses.
package httpapi
