package spawn

import "time"

// Clock supplies the current time to timeout policies.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Policy tracks a resettable deadline. A Policy with no duration is disabled
// and never reports that it happened.
type Policy struct {
	duration time.Duration
	deadline time.Time
	clock    Clock
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithPolicyClock sets the clock used to compute deadlines.
func WithPolicyClock(clock Clock) PolicyOption {
	return func(p *Policy) {
		p.clock = clock
	}
}

// NewPolicy creates a policy for duration d. A non-positive d disables it.
// An enabled policy is armed immediately.
func NewPolicy(d time.Duration, opts ...PolicyOption) *Policy {
	p := &Policy{duration: d, clock: realClock{}}
	for _, opt := range opts {
		opt(p)
	}
	p.Reset()
	return p
}

// Reset moves the deadline to now + duration. It is a no-op for a disabled policy.
func (p *Policy) Reset() {
	if !p.Enabled() {
		return
	}
	p.deadline = p.clock.Now().Add(p.duration)
}

// Happened reports whether the deadline has been reached.
func (p *Policy) Happened() bool {
	if !p.Enabled() {
		return false
	}
	return !p.clock.Now().Before(p.deadline)
}

// Enabled reports whether a duration is configured.
func (p *Policy) Enabled() bool {
	return p.duration > 0
}

// Value returns the configured duration, zero when disabled.
func (p *Policy) Value() time.Duration {
	if !p.Enabled() {
		return 0
	}
	return p.duration
}
