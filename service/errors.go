package service

import "errors"

var (
	// ErrQuotaExceeded is returned by an invoker when the remote provider
	// reports its daily quota is spent. The provider is cooled down until
	// the next daily reset boundary.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrProvidersExhausted means every configured provider was skipped
	// (cooldown or quota) and no call could be placed.
	ErrProvidersExhausted = errors.New("all providers exhausted")

	// ErrUnparseableResponse means the provider answered but no JSON object
	// could be recovered from the text.
	ErrUnparseableResponse = errors.New("unparseable provider response")

	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotReady is returned when ledger output is requested for a job
	// that has not completed.
	ErrJobNotReady = errors.New("job not completed yet")

	// ErrNotFound is the generic key-value store miss.
	ErrNotFound = errors.New("key not found")
)
