// Package storage defines the persistence boundary for account and refresh-token
// records.
//
// # Architecture boundaries
//
// This package owns the record types ([User], [RefreshToken]), the sentinel errors
// ([ErrNotFound], [ErrDuplicate]) and the store contracts. Backends live in
// sub-packages: storage/memory, storage/postgres and storage/redis.
//
// Backends are the final arbiter of uniqueness: two concurrent creates for the same
// email must produce exactly one success and one [*DuplicateError].
//
// # What this package must NOT do
//
//   - Hash, compare or interpret secrets.
//   - Import authkit, jwt or refresh.
package storage
