// Package rate limits requests per client key.
//
// [Local] keeps a golang.org/x/time/rate token bucket per key in memory.
// [Redis] keeps a fixed-window INCR + EXPIRE counter per key so several
// instances share one budget.
//
// # What this package must NOT do
//
//   - Decide what a key is. Callers pass the client IP or another identifier.
//   - Write HTTP responses.
package rate
