package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// maxLocalLimiters bounds the in-process fallback; the table is reset when
// it fills up.
const maxLocalLimiters = 10000

type windowStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit applies a fixed window per caller, keyed by user when
// authenticated and by client IP otherwise. Counters live in Redis so every
// replica shares them; when Redis is missing or failing the request falls back
// to a per-process token bucket instead of being rejected.
func RateLimit(cfg config.RateLimitConfig, store windowStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled() {
			return next
		}
		local := newLocalLimiters(cfg)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope := rateLimitScope(r)

			allowed := false
			if store == nil {
				allowed = local.allow(scope)
			} else {
				var err error
				allowed, _, err = store.FixedWindowAllow(ctx, scope, int64(cfg.Requests), cfg.Window)
				if err != nil {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"scope": scope,
							"error": err.Error(),
						}), "rate_limit.fallback")
					}
					allowed = local.allow(scope)
				}
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"scope":          scope,
						"limit":          cfg.Requests,
						"window_seconds": int(cfg.Window.Seconds()),
					}), "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", retryAfter(cfg.Window))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitScope(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "api:user:" + userID
	}
	return "api:ip:" + clientIP(r)
}

func retryAfter(window time.Duration) string {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

type localLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLocalLimiters(cfg config.RateLimitConfig) *localLimiters {
	return &localLimiters{
		limit:    rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:    cfg.Requests,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *localLimiters) allow(scope string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[scope]
	if !ok {
		if len(l.limiters) >= maxLocalLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[scope] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
