package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/metrics"
	"github.com/jkindrix/callbridge/internal/middleware"
)

// RouterDeps holds everything the router wires together.
type RouterDeps struct {
	Webhook   *WebhookHandler
	Calls     *CallsHandler
	Providers *ProvidersHandler
	Requests  *RequestsHandler
	Health    *HealthHandler
	LogLevel  *LogLevelHandler
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewRouter builds the full route tree with the standard middleware
// stack: correlation, logging, panic recovery, body limits, rate
// limiting, and request metrics.
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	correlation := middleware.NewRequestCorrelation(deps.Logger)
	r.Use(correlation.Middleware)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(chimiddleware.RealIP)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	// Probes and scrape endpoints stay outside the rate limiter.
	deps.Health.RegisterRoutes(r)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.LogLevel != nil {
		r.Handle("/admin/log-level", deps.LogLevel)
	}

	limiter := middleware.NewRateLimiter(300, time.Minute, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))

		// Vendor webhooks carry transcripts; give them headroom.
		r.With(middleware.BodySizeLimiterWebhook()).
			Post("/vapi/webhook", deps.Webhook.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BodySizeLimiterJSON())
			deps.Calls.RegisterRoutes(r)
			deps.Providers.RegisterRoutes(r)
			deps.Requests.RegisterRoutes(r)
		})
	})

	return r
}
