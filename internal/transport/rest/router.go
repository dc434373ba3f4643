package rest

import (
	"net/http"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
	"github.com/100x-Engineers100/ugc-tracker/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Cache     domain.CacheRepository
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	if d.RateLimitEnabled && d.Cache != nil {
		r.Use(RateLimitMiddleware(d.Cache, d.RateLimit, d.RateLimitWindow))
	}
	r.Use(SecurityHeaders)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{
			ExpectedIssuer: d.JWTIssuer,
			RequiredRole:   "admin",
		}))

		r.Route("/cohorts/{cohortID}", func(r chi.Router) {
			// table
			r.Get("/users", d.Handler.Users)
			r.Put("/users", d.Handler.ReplaceUsers)

			// batch fetch runs
			r.Post("/runs", d.Handler.StartRun)
			r.Get("/runs/current", d.Handler.RunStatus)

			// per-row trigger
			r.Post("/users/{userID}/fetch", d.Handler.FetchUser)

			// download
			r.Get("/export", d.Handler.Export)
		})
	})

	return r
}
