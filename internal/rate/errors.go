package rate

import "errors"

var (
	// ErrRateLimited is returned when a key has spent its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures from [Redis].
	ErrRedisUnavailable = errors.New("redis unavailable")
)
