package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-auth-api/internal/application/auth"
	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/domain"
	"github.com/go-auth-api/internal/pkg/password"
	"github.com/go-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-api/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, on the public credential endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:         deps.UserRepo,
		ConfirmationRepo: deps.ConfirmationRepo,
		Mailer:           deps.Mailer,
		Hasher:           password.NewBcryptHasher(),
		Signer:           deps.JWTProvider,
		ConfirmTokenTTL:  cfg.ConfirmationTokenTTL,
		ConfirmBaseURL:   cfg.ConfirmBaseURL,
	})

	authH := handler.NewAuthHandler(authSvc)
	healthH := handler.NewHealthHandler()

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/auth/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/authenticate", authH.Authenticate)
		r.With(sensitiveRL.Limit).Post("/auth/confirm", authH.Confirm)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Get("/demo", healthH.Demo)

			// Admin-only
			r.With(appmiddleware.RequireRole(domain.RoleAdmin)).Get("/admin/ping", healthH.Ping)
		})
	})

	return r
}
