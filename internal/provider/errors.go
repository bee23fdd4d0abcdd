package provider

import "errors"

var (
	// ErrRateLimited means the local budget refused the call or the
	// provider signalled a limit. Recoverable by waiting for cooldown;
	// never surfaced raw to the end caller.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrUnavailable means the provider returned a malformed or empty
	// series. Retried on next access, not within the same call.
	ErrUnavailable = errors.New("provider unavailable")
)

// IsRateLimited reports whether err is a rate-limit refusal
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
