// Package ratelimit provides a fixed-window per-consumer request limiter.
// With a shared Redis store the window counters are atomic across workers;
// without one, an in-process map with monotonic-clock windows is used.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per consumer key within fixed windows.
type Limiter struct {
	rdb *redis.Client // nil = in-process mode

	mu      sync.Mutex
	windows map[string]*window
	stop    chan struct{}
	once    sync.Once
}

type window struct {
	start time.Time
	count int
}

// New creates a limiter. Pass a nil client for in-process mode.
func New(rdb *redis.Client) *Limiter {
	l := &Limiter{
		rdb:     rdb,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether the consumer may proceed and counts the request.
// A non-positive limit or window disables limiting entirely.
func (l *Limiter) Allow(ctx context.Context, key string, limit, windowSeconds int) bool {
	if limit <= 0 || windowSeconds <= 0 {
		return true
	}
	if l.rdb != nil {
		return l.allowShared(ctx, key, limit, windowSeconds)
	}
	return l.allowLocal(key, limit, windowSeconds)
}

// allowShared uses INCR + first-write EXPIRE so all workers share one
// counter per window. Store errors fail open.
func (l *Limiter) allowShared(ctx context.Context, key string, limit, windowSeconds int) bool {
	bucket := fmt.Sprintf("lattice:rate:%s:%d", key, windowSeconds)
	current, err := l.rdb.Incr(ctx, bucket).Result()
	if err != nil {
		return true
	}
	if current == 1 {
		l.rdb.Expire(ctx, bucket, time.Duration(windowSeconds)*time.Second)
	}
	return current <= int64(limit)
}

func (l *Limiter) allowLocal(key string, limit, windowSeconds int) bool {
	now := time.Now()
	windowDur := time.Duration(windowSeconds) * time.Second

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= windowDur {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// cleanup prunes windows that have been idle for over a day so the
// in-process map does not grow without bound.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-24 * time.Hour)
			l.mu.Lock()
			for k, w := range l.windows {
				if w.start.Before(cutoff) {
					delete(l.windows, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
