package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per remote host
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a new rate limiter
// requestsPerHour: sustained requests allowed per hour per host
// burst: max requests in a burst
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	// Convert requests per hour to requests per second
	r := rate.Limit(float64(requestsPerHour) / 3600.0)

	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// limiterFor returns the bucket for host, creating it on first use
func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}

	return limiter
}

// Allow reports whether host may make a request now
func (l *Limiter) Allow(host string) bool {
	return l.limiterFor(host).Allow()
}

// Tokens returns the tokens currently available to host
func (l *Limiter) Tokens(host string) float64 {
	return l.limiterFor(host).Tokens()
}

// Burst returns the configured burst size
func (l *Limiter) Burst() int {
	return l.burst
}
