// Package jwt issues and verifies HS512 access tokens that bind a user id and
// username under a server-controlled expiry.
//
// Verification failures are reported as one of four sentinels (ErrExpired,
// ErrMalformed, ErrUnsupported, ErrInvalid) so callers can log them distinctly
// while treating all four as unauthorized.
package jwt
