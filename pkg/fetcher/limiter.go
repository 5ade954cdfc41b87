package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit allows Requests per Window for each host.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// DomainLimiter enforces a minimum delay and an optional token bucket per host.
// A nil limiter never waits.
type DomainLimiter struct {
	delay time.Duration
	rate  RateLimit

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

func NewDomainLimiter(delay time.Duration, rl RateLimit) *DomainLimiter {
	if delay <= 0 && (rl.Requests <= 0 || rl.Window <= 0) {
		return nil
	}
	return &DomainLimiter{
		delay:    delay,
		rate:     rl,
		last:     make(map[string]time.Time),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	d.mu.Lock()
	if d.delay > 0 {
		if last, ok := d.last[host]; ok {
			if rest := time.Until(last.Add(d.delay)); rest > 0 {
				sleep = rest
			}
		}
	}
	limiter := d.limiterLocked(host)
	d.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.last[host] = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *DomainLimiter) limiterLocked(host string) *rate.Limiter {
	if d.rate.Requests <= 0 || d.rate.Window <= 0 {
		return nil
	}
	if l, ok := d.limiters[host]; ok {
		return l
	}
	interval := d.rate.Window / time.Duration(d.rate.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(interval), d.rate.Requests)
	d.limiters[host] = l
	return l
}
