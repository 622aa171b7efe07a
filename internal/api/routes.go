package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouteConfig struct {
	CORSOrigins    []string
	MirrorOrigins  bool
	RateLimitRPM   int
	RequestTimeout time.Duration
	MetricsHandler http.Handler
}

func (h *Handler) Routes(m *Middleware, cfg RouteConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(cfg.CORSOrigins, cfg.MirrorOrigins))
	if cfg.RateLimitRPM > 0 {
		r.Use(m.RateLimit(cfg.RateLimitRPM))
	}

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// Live updates; no timeout or compression on long-lived streams
		r.Get("/stream/unlock", h.HandleSSE)
		r.Get("/ws/unlock", h.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(m.Compress)
			r.Use(m.Timeout(cfg.RequestTimeout))

			// Pools
			r.Route("/pools", func(r chi.Router) {
				r.Get("/", h.ListPools)
				r.Route("/{poolId}", func(r chi.Router) {
					r.Get("/", h.GetPool)
					r.Get("/history", h.GetPoolHistory)
					r.Get("/apr", h.GetAprPreview)
					r.Get("/unlock/{address}", h.GetUserUnlock)
				})
			})

			// Projections
			r.Post("/projections/{action}", h.CreateProjection)

			// Unlock window from raw parameters
			r.Get("/unlock", h.GetUnlock)

			// Liquidity
			r.Post("/liquidity/share", h.EstimateShare)

			// Decimal conversion
			r.Route("/decimals", func(r chi.Router) {
				r.Get("/scale-up", h.ScaleUp)
				r.Get("/scale-down", h.ScaleDown)
			})
		})
	})

	return r
}
