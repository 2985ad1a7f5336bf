package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type IPRateLimiter struct {
	ips    map[string]*limiterEntry
	mu     sync.Mutex
	r      rate.Limit
	b      int
	logger *slog.Logger
	now    func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(r rate.Limit, b int, logger *slog.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		ips:    make(map[string]*limiterEntry),
		r:      r,
		b:      b,
		logger: logger,
		now:    time.Now,
	}
}

// StartCleanup evicts limiters idle for longer than interval until ctx is done.
func (i *IPRateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := i.evictIdle(interval); n > 0 {
					i.logger.Debug("Cleaned up rate limiter map", "evicted", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.ips[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = entry
	}
	entry.lastSeen = i.now()

	return entry.limiter
}

func (i *IPRateLimiter) Allow(ip string) bool {
	return i.GetLimiter(ip).Allow()
}

func (i *IPRateLimiter) evictIdle(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	evicted := 0
	for ip, entry := range i.ips {
		if now.Sub(entry.lastSeen) > maxIdle {
			delete(i.ips, ip)
			evicted++
		}
	}
	return evicted
}
