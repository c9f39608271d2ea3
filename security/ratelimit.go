package security

import (
	"container/list"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/giantswarm/webkit/instrumentation"
)

const (
	// DefaultRateLimitMaxEntries bounds the number of tracked identifiers
	DefaultRateLimitMaxEntries = 10000

	// DefaultRateLimitIdleTimeout removes limiters not used for this long
	DefaultRateLimitIdleTimeout = 30 * time.Minute

	defaultRateLimitCleanupInterval = 5 * time.Minute
)

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate per identifier
	RequestsPerSecond float64

	// Burst is the bucket size per identifier
	Burst int

	// MaxEntries caps tracked identifiers; the least recently used one is
	// evicted first (default 10000, negative means unlimited)
	MaxEntries int

	// IdleTimeout removes limiters not used for this long (default 30m)
	IdleTimeout time.Duration

	// Name labels the limiter in metrics, e.g. "authorize"
	Name string

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
}

func (c *RateLimiterConfig) applyDefaults() {
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultRateLimitMaxEntries
	}
	if c.MaxEntries < 0 {
		c.MaxEntries = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultRateLimitIdleTimeout
	}
	if c.Name == "" {
		c.Name = "ip"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type rateLimiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier token bucket rate limiting with LRU
// eviction.
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[string]*list.Element
	lruList  *list.List

	totalEvictions int64

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	config.applyDefaults()

	rl := &RateLimiter{
		config:      config,
		limiters:    make(map[string]*list.Element),
		lruList:     list.New(),
		stopCleanup: make(chan struct{}),
	}

	if inst := config.Instrumentation; inst != nil {
		if err := inst.RegisterRateLimiterCallback(func() int64 { return int64(rl.Len()) }); err != nil {
			config.Logger.Warn("Failed to register rate limiter gauge", "error", err)
		}
	}

	go rl.cleanupLoop(defaultRateLimitCleanupInterval)
	return rl
}

// Allow reports whether a request from identifier may proceed.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	var limiter *rate.Limiter
	if elem, ok := rl.limiters[identifier]; ok {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*rateLimiterEntry)
		entry.lastAccess = now
		limiter = entry.limiter
	} else {
		if rl.config.MaxEntries > 0 && len(rl.limiters) >= rl.config.MaxEntries {
			rl.evictLRU()
		}
		entry := &rateLimiterEntry{
			identifier: identifier,
			limiter:    rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
			lastAccess: now,
		}
		rl.limiters[identifier] = rl.lruList.PushFront(entry)
		limiter = entry.limiter
	}
	allowed := limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if !allowed && rl.config.Instrumentation != nil {
		rl.config.Instrumentation.Metrics().RecordRateLimitExceeded(context.Background(), rl.config.Name)
	}
	return allowed
}

// evictLRU must be called with mu held.
func (rl *RateLimiter) evictLRU() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*rateLimiterEntry)
	delete(rl.limiters, entry.identifier)
	rl.lruList.Remove(elem)
	rl.totalEvictions++

	rl.config.Logger.Debug("Rate limiter LRU eviction",
		"limiter", rl.config.Name,
		"total_evictions", rl.totalEvictions,
		"current_entries", len(rl.limiters))
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rl.config.IdleTimeout)
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup removes limiters idle for longer than maxIdle and returns how
// many were removed.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0
	// Entries behind the first fresh one are all fresher.
	for elem := rl.lruList.Back(); elem != nil; {
		entry := elem.Value.(*rateLimiterEntry)
		if now.Sub(entry.lastAccess) <= maxIdle {
			break
		}
		prev := elem.Prev()
		delete(rl.limiters, entry.identifier)
		rl.lruList.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.config.Logger.Debug("Rate limiter cleanup completed",
			"limiter", rl.config.Name,
			"removed", removed,
			"remaining", len(rl.limiters))
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Evictions returns the number of LRU evictions so far.
func (rl *RateLimiter) Evictions() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.totalEvictions
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// Middleware rejects requests with 429 once the identifier returned by key
// exceeds its budget. A nil auditor disables audit events.
func (rl *RateLimiter) Middleware(key func(*http.Request) string, auditor *Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := key(r)
			if !rl.Allow(id) {
				auditor.LogRateLimitExceeded(id, "")
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
