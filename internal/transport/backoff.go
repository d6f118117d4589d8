package transport

import (
	"math/rand"
	"time"
)

const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.2
)

// Backoff yields exponentially growing reconnect delays with jitter.
// Not safe for concurrent use.
type Backoff struct {
	current  time.Duration
	initial  time.Duration
	max      time.Duration
	attempts int
	rng      *rand.Rand
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = InitialBackoff
	}
	if max <= 0 {
		max = MaxBackoff
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		current: initial,
		initial: initial,
		max:     max,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt and grows the base delay.
func (b *Backoff) Next() time.Duration {
	base := b.current
	b.attempts++

	next := time.Duration(float64(b.current) * BackoffMultiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	jitter := time.Duration((b.rng.Float64()*2 - 1) * JitterFactor * float64(base))
	return base + jitter
}

func (b *Backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	return b.attempts
}
