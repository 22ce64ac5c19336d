package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Store errors surfaced directly to the caller, never retried
	ErrDuplicateEntry = fmt.Errorf("entry already exists")
	ErrNotFound       = fmt.Errorf("entry not found")
	ErrRegression     = fmt.Errorf("episode cursor would move backwards")

	// Schedule source errors, retryable with backoff then fatal
	ErrNetwork = fmt.Errorf("network request failed")
	ErrParse   = fmt.Errorf("malformed schedule response")

	// Fetcher errors, recorded per episode and never fatal to a cycle
	ErrFetchFailed = fmt.Errorf("episode fetch failed")

	// Cycle lock errors
	ErrLockHeld = fmt.Errorf("another cycle holds the lock")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
