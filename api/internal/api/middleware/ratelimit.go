package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// RateLimiter is an in-memory token bucket per client IP.
type RateLimiter struct {
	rate     rate.Limit
	burst    int
	visitors sync.Map // 🛡️ Thread-safe Map for high-concurrency scaling
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{rate: rate.Limit(perSecond), burst: burst}
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// chi's RealIP has already rewritten RemoteAddr behind a proxy
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		v, _ := l.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(l.rate, l.burst)})
		vis := v.(*visitor)
		vis.mu.Lock()
		vis.lastSeen = time.Now()
		vis.mu.Unlock()

		if !vis.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"message": "Rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup forgets idle visitors until ctx is cancelled.
func (l *RateLimiter) Cleanup(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(idle)
		}
	}
}

func (l *RateLimiter) sweep(idle time.Duration) {
	l.visitors.Range(func(key, value any) bool {
		vis := value.(*visitor)
		vis.mu.Lock()
		stale := time.Since(vis.lastSeen) > idle
		vis.mu.Unlock()
		if stale {
			l.visitors.Delete(key)
		}
		return true
	})
}
