package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils/response"
)

type MutationLimiter interface {
	CheckMutationRateLimit(ctx context.Context, ownerKey string) (allowed bool, remaining int, retryAfter int, err error)
}

type RateLimiter struct {
	limiter MutationLimiter
}

func NewRateLimiter(limiter MutationLimiter) *RateLimiter {
	return &RateLimiter{limiter: limiter}
}

// LimitMutations must run after owner resolution. Requests without an owner
// are keyed by remote address. A limiter outage lets the request through.
func (m *RateLimiter) LimitMutations(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := LoggerFromContext(r.Context())

		key := "addr:" + r.RemoteAddr
		if owner := OwnerFromContext(r.Context()); !owner.IsZero() {
			key = owner.String()
		}

		allowed, remaining, retryAfter, err := m.limiter.CheckMutationRateLimit(r.Context(), key)
		if err != nil {
			logger.Error("Rate limit check failed", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			logger.Warn("Cart mutation rate limit exceeded", slog.String("key", key), slog.Int("retryAfter", retryAfter))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			response.Error(w, errors.TooManyRequestsError("Too many cart updates, please retry later"))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	}
}
