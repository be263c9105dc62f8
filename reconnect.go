package eventflit

import "time"

// backoff implements exponential backoff with a maximum delay and counts the
// attempts made since the last reset.
type backoff struct {
	initial  time.Duration
	max      time.Duration
	current  time.Duration
	attempts int
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

func (b *backoff) next() time.Duration {
	b.attempts++
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	if d > b.max {
		d = b.max
	}
	return d
}

// exhausted reports whether limit attempts have been made. A limit of zero
// never exhausts.
func (b *backoff) exhausted(limit int) bool {
	return limit > 0 && b.attempts >= limit
}

func (b *backoff) reset() {
	b.current = b.initial
	b.attempts = 0
}
