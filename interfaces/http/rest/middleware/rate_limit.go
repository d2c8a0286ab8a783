package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/ratelimit"
)

// RateLimit rejects requests over the limiter's budget with 429. Clients
// are keyed by remote IP, which RealIP has already resolved.
func RateLimit(limiter ratelimit.RateLimiter, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				errs.Handle(w, r, err)
				return
			}
			if !allowed {
				logger.Debug("Rate limited", zap.String("client", key), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "60")
				errs.HandleStatus(w, r, http.StatusTooManyRequests, "too many generation requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
