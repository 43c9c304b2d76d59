package http

import "golang.org/x/time/rate"

// rateLimiter bounds inbound messages per connection. A burst of limit
// messages is allowed, refilled evenly over a minute.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(float64(limit)/60), limit)}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}
