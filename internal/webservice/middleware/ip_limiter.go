// Package middleware provides HTTP middleware shared by the web service routes.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// IPLimiter rate limits requests per client IP.
// Limiters of clients which stayed idle for longer than the idle TTL are forgotten.
type IPLimiter struct {
	limiters *cache.Cache
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// New returns a limiter allowing r requests per second per IP, with bursts of b.
func New(r rate.Limit, b int, idleTTL time.Duration) *IPLimiter {
	return &IPLimiter{
		limiters: cache.New(idleTTL, 2*idleTTL),
		rate:     r,
		burst:    b,
	}
}

func (l *IPLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(ip); ok {
		limiter := v.(*rate.Limiter)
		// Refresh the expiration on activity.
		l.limiters.SetDefault(ip, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.limiters.SetDefault(ip, limiter)
	return limiter
}

// RateLimitMiddleware refuses requests over the limit of their client with 429 Too Many Requests.
func (l *IPLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Unable to determine IP", http.StatusBadRequest)
			return
		}
		if !l.getLimiter(ip).Allow() {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
