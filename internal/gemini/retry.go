package gemini

import "time"

// RetryPolicy consolidates the retry behavior of the request executor in one
// place: how many full key cycles one call may burn, the escalating cool-down
// schedule when every key has failed, and the short fixed delays for
// transient errors.
type RetryPolicy struct {
	// MaxCycles bounds attempts at pool_size * MaxCycles per call.
	MaxCycles int
	// ExhaustionBackoff is the escalating wait applied when the whole pool is
	// marked failed. Exhausting the schedule itself is fatal.
	ExhaustionBackoff []time.Duration
	// ServerErrorDelay is the pause before retrying the same key after a 5xx.
	ServerErrorDelay time.Duration
	// NetworkErrorDelay is the pause before retrying after a transport error.
	NetworkErrorDelay time.Duration
}

// DefaultRetryPolicy matches the reference pipeline: three full cycles,
// 5 then 10 minute cool-downs, short fixed transient delays.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxCycles:         3,
		ExhaustionBackoff: []time.Duration{5 * time.Minute, 10 * time.Minute},
		ServerErrorDelay:  5 * time.Second,
		NetworkErrorDelay: 3 * time.Second,
	}
}
