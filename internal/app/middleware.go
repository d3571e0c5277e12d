package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack returns the API middleware in installation order.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conf := cfg.Config
	if conf == nil {
		conf = &Config{AppRequestTimeout: 30 * time.Second, RateLimitPerMinute: 300}
	}

	stack := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
	}
	if conf.AppRequestTimeout > 0 {
		stack = append(stack, middleware.Timeout(conf.AppRequestTimeout))
	}
	stack = append(stack, secureHeaders(conf, logger), middleware.Compress(5))
	if conf.RateLimitPerMinute > 0 {
		stack = append(stack, rateLimiter(conf.RateLimitPerMinute))
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	return stack
}

// secureHeaders applies the JSON API header policy; nothing is ever framed or scripted.
func secureHeaders(conf *Config, logger *slog.Logger) func(http.Handler) http.Handler {
	policy := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           conf.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:            stsSeconds(conf),
		IsDevelopment:         !conf.IsProduction(),
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := policy.Process(w, r); err != nil {
				logger.Warn("request rejected by header policy", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusBadRequest, "Request Blocked", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func stsSeconds(conf *Config) int64 {
	if conf.IsProduction() {
		return int64((180 * 24 * time.Hour).Seconds())
	}
	return 0
}

// rateLimiter throttles each client IP to perMinute requests.
func rateLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded, retry later")
		}),
	)
}
