package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultLimit and DefaultWindow are the contact form policy.
	DefaultLimit  = 5
	DefaultWindow = time.Minute

	// DefaultCapacity bounds the number of identifiers held in memory.
	DefaultCapacity = 500

	// DefaultTTLFactor is how many windows an idle record survives.
	DefaultTTLFactor = 2

	// FallbackIdentifier is used when no client address could be resolved.
	FallbackIdentifier = "0.0.0.0"
)

// ErrInvalidPolicy is returned for a policy with a non-positive limit or window.
var ErrInvalidPolicy = errors.New("ratelimit: invalid policy")

// Policy is a fixed-window budget: at most Limit admissions per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy returns the 5 per minute contact form policy.
func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow}
}

func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive (got %d)", ErrInvalidPolicy, p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be positive (got %s)", ErrInvalidPolicy, p.Window)
	}
	return nil
}

// TTL is the record lifetime for a store serving this policy, factor windows
// long. factor below 1 is treated as 1 so records never outlive their
// store before the window ends.
func (p Policy) TTL(factor int) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return time.Duration(factor) * p.Window
}

func (p Policy) String() string {
	return fmt.Sprintf("%d/%s", p.Limit, p.Window)
}

// Decision is the outcome of one limiter call.
type Decision struct {
	Allowed bool
	// Count is the number of admissions recorded in the current window.
	Count int
	Limit int
	// Reset is when the current window ends.
	Reset time.Time
	// RetryAfter is the time left in the window, measured on the limiter's clock.
	RetryAfter time.Duration
	// FirstDenial is set on the first denied call of a window only.
	FirstDenial bool
}

// Remaining is the number of admissions left in the current window.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// Decider is implemented by both limiter backends.
type Decider interface {
	Decide(ctx context.Context, id string, p Policy) (Decision, error)
}
