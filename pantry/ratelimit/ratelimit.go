// Package ratelimit keeps one token bucket per key, such as a page and
// client address, and applies it as HTTP middleware.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/signup/pantry/jobs"
	"golang.org/x/time/rate"
)

// KeyLimiter rate-limits by key. Keys idle for longer than the TTL are
// forgotten, so a returning key starts with a full bucket.
type KeyLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time

	sweeper  *jobs.Periodic
	stopOnce sync.Once
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

// NewKeyLimiter allows perSecond events per key with bursts of burst.
// A ttl of zero means one hour.
func NewKeyLimiter(perSecond float64, burst int, ttl time.Duration) *KeyLimiter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	kl := &KeyLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
	kl.sweeper = jobs.Every(jobs.PeriodicJob{
		Name:     "ratelimit-sweep",
		Interval: ttl,
		Handler: func(context.Context) error {
			kl.forgetIdle()
			return nil
		},
	}, nil)
	return kl
}

// Allow spends a token of key's bucket if one is available.
func (kl *KeyLimiter) Allow(key string) bool {
	now := kl.now()
	kl.mu.Lock()
	b, ok := kl.buckets[key]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.buckets[key] = b
	}
	b.seen = now
	kl.mu.Unlock()
	return b.AllowN(now, 1)
}

func (kl *KeyLimiter) forgetIdle() int {
	cutoff := kl.now().Add(-kl.ttl)
	kl.mu.Lock()
	defer kl.mu.Unlock()
	n := 0
	for key, b := range kl.buckets {
		if b.seen.Before(cutoff) {
			delete(kl.buckets, key)
			n++
		}
	}
	return n
}

// Size returns the number of keys tracked.
func (kl *KeyLimiter) Size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.buckets)
}

// Stop ends the idle-key sweep.
func (kl *KeyLimiter) Stop() {
	kl.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = kl.sweeper.Stop(ctx)
	})
}

// KeyFunc derives a limit key from a request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns the client IP. chi's RealIP middleware has already
// folded X-Forwarded-For and X-Real-IP into RemoteAddr.
func IPKeyFunc(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Join builds one key from several, separated by "|".
func Join(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		var b strings.Builder
		for i, fn := range fns {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(fn(r))
		}
		return b.String()
	}
}

// Config configures Middleware.
type Config struct {
	// KeyFunc defaults to IPKeyFunc.
	KeyFunc KeyFunc

	// OnLimited writes the response to a limited request. Retry-After is
	// already set. The default writes a plain 429.
	OnLimited http.HandlerFunc
}

// Middleware rejects requests whose key has run out of tokens.
func Middleware(kl *KeyLimiter, cfg Config) func(http.Handler) http.Handler {
	keyOf := cfg.KeyFunc
	if keyOf == nil {
		keyOf = IPKeyFunc
	}
	limited := cfg.OnLimited
	if limited == nil {
		limited = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !kl.Allow(keyOf(r)) {
				w.Header().Set("Retry-After", "1")
				limited(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
