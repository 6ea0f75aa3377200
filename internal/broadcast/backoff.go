package broadcast

import "time"

// Backoff computes exponential reconnect delays for consumers of the event
// channel (and anything else that retries against a flaky peer). Zero
// value fields fall back to sane defaults on first use.
type Backoff struct {
	// Initial is the first delay. Defaults to 500ms.
	Initial time.Duration
	// Max caps the delay growth. Defaults to 30s.
	Max time.Duration
	// MaxAttempts bounds how many delays Next hands out; 0 means 10.
	MaxAttempts int

	attempt int
}

// Next returns the delay before the next attempt and whether another
// attempt is allowed. Delays double each call until Max.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.Initial <= 0 {
		b.Initial = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 10
	}
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}

	d := b.Initial << b.attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	b.attempt++
	return d, true
}

// Reset rewinds the attempt counter after a successful connection.
func (b *Backoff) Reset() { b.attempt = 0 }
