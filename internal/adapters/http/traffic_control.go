package httpadapter

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/medinsight/insight-engine/internal/config"
)

// rateLimitMiddleware bounds the aggregate request rate with a token
// bucket. Rejected requests get a Retry-After hint so well-behaved
// clients back off instead of hammering.
func rateLimitMiddleware(next http.Handler, rps, burst int) http.Handler {
	if burst < rps {
		burst = rps
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware caps concurrent in-flight requests. A request
// that cannot acquire a slot within maxWait is shed with 503 rather than
// queued indefinitely behind slow uploads.
func backpressureMiddleware(next http.Handler, maxConcurrent int, maxWait time.Duration) http.Handler {
	gate := make(chan struct{}, maxConcurrent)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		select {
		case gate <- struct{}{}:
			defer func() { <-gate }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server saturated, retry later"})
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request cancelled while waiting for capacity"})
		}
	})
}

func backpressureWait(cfg config.Config) time.Duration {
	if cfg.APIBackpressureWaitMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond
}
