package vibevoice

import "errors"

// Sentinel errors for the proxy domain.
//
// Cache and rate-limiter backend failures have no sentinel: they are
// swallowed at their component boundary (cache-bypass, fail-open) and never
// reach a caller.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrSynthesisFailed     = errors.New("synthesis failed")
)
