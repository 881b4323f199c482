package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/pkg/metrics"
	"github.com/go-notify-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-notify-nosql/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router. ctx bounds background
// work owned by the router such as rate limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	rl := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	healthH := handler.NewHealthHandler(deps.HealthChecks)
	notifH := handler.NewNotificationHandler(deps.Notifications)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(rl.Limit)
			r.Use(authMw)

			r.Get("/notifications", notifH.ListUnread)
			r.Post("/notifications/read-bulk", notifH.MarkBulk)
			r.Post("/notifications/{id}/read", notifH.MarkAsRead)

			if deps.Devices != nil {
				deviceH := handler.NewDeviceHandler(deps.Devices)
				r.Get("/devices", deviceH.List)
				r.Post("/devices", deviceH.Register)
				r.Delete("/devices/{id}", deviceH.Delete)
			}

			// Producer routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(handler.RoleAdmin))

				r.Post("/notifications", notifH.Publish)
				r.Post("/realtime/reservations", notifH.PublishReservation)
			})
		})
	})

	return r
}
