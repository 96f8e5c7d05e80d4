package wsclient

import "time"

const (
	// backoffFloor is the lowest reconnect wait after repeated successes.
	backoffFloor = time.Second
	// backoffCeil is the highest reconnect wait after repeated failures.
	backoffCeil = 30 * time.Second
)

// backoff tracks the reconnect wait between connection attempts. Each
// successful dial halves the wait, each failed attempt multiplies it by
// five, and the value stays within [backoffFloor, backoffCeil]. Only the
// run loop touches it.
type backoff struct {
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	if initial <= 0 {
		initial = backoffFloor
	}
	return &backoff{current: initial}
}

func (b *backoff) Current() time.Duration {
	return b.current
}

// Success halves the wait, never dropping below the floor.
func (b *backoff) Success() {
	b.current /= 2
	if b.current < backoffFloor {
		b.current = backoffFloor
	}
}

// Failure multiplies the wait by five, never exceeding the ceiling.
func (b *backoff) Failure() {
	b.current *= 5
	if b.current > backoffCeil {
		b.current = backoffCeil
	}
}
