package session

import "time"

// Backoff is a capped doubling delay: Initial, 2*Initial, ... up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// DefaultBackoff is the controller reconnection policy.
func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second}
}

// Next returns the delay to wait after the current failed attempt.
func (b *Backoff) Next() time.Duration {
	if b.next <= 0 {
		b.next = b.Initial
	}
	d := b.next
	b.next = min(b.next*2, b.Max)
	return min(d, b.Max)
}

func (b *Backoff) Reset() { b.next = 0 }
