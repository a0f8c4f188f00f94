package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/scanquest/internal/metrics"
)

// metricsMiddleware records request counts and latency per route
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// rateLimiter throttles requests per client IP. Stale limiters are evicted
// by a background sweep so the map does not grow without bound.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	logger   *slog.Logger
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	done     chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(logger *slog.Logger) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		logger:   logger,
		rate:     rate.Limit(10),
		burst:    20,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close stops the background sweep and waits for it to exit
func (rl *rateLimiter) Close() {
	close(rl.stop)
	<-rl.done
}

func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *rateLimiter) cleanup() {
	defer close(rl.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr

		if !rl.getLimiter(ip).Allow() {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
