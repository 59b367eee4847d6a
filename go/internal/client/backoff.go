package client

import "time"

// Backoff computes reconnection delays: attempt n waits min(Base*2^(n-1), Cap)
type Backoff struct {
	Base        time.Duration `yaml:"base"`
	Cap         time.Duration `yaml:"cap"`
	MaxAttempts int           `yaml:"max_attempts"`
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Cap:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before attempt n, counting from 1
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}

// Allowed reports whether attempt n may be scheduled automatically
func (b Backoff) Allowed(attempt int) bool {
	return attempt >= 1 && attempt <= b.MaxAttempts
}
