package backoff

import "time"

// Policy is the reconnect schedule: attempt n (1-based) waits
// min(Base * 2^(n-1), Cap). After MaxRetries failed attempts the caller gives up.
type Policy struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int
}

func Default() Policy {
	return Policy{Base: time.Second, Cap: 10 * time.Second, MaxRetries: 5}
}

func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		if d >= p.Cap || d > (1<<62)/2 {
			return p.Cap
		}
		d *= 2
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Exhausted reports whether attempt exceeds the retry budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt > p.MaxRetries
}
