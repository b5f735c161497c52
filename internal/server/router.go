package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/booknest/booknest/internal/handler"
	"github.com/booknest/booknest/internal/middleware"
)

// Handlers are the endpoint groups the router mounts. A nil Admin leaves
// the admin routes unregistered.
type Handlers struct {
	Root    *handler.Handler
	Health  *handler.HealthHandler
	Metrics *handler.MetricsHandler
	Books   *handler.BookHandler
	Loans   *handler.LoanHandler
	APIKeys *handler.APIKeyHandler
	Admin   *handler.AdminHandler
}

// RouterConfig holds the middleware settings.
type RouterConfig struct {
	Logger      *slog.Logger
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimitConfig
	CORS        middleware.CORSConfig
	Security    middleware.SecurityConfig
	MaxBodySize int64
}

// NewRouter configures the chi router with all routes and middleware.
//
// Catalog reads accept anonymous callers; everything that touches loans
// or credentials requires authentication and a scope.
func NewRouter(h Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodySize))
	}

	r.Get("/", h.Root.Index)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Get("/metrics", h.Metrics.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.Auth))
			r.Use(middleware.RateLimit(cfg.RateLimit))

			r.Get("/books", h.Books.List)
			r.Get("/books/available", h.Books.ListAvailable)
			r.With(middleware.ValidPathID("id")).Get("/books/{id}", h.Books.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.Auth))
			r.Use(middleware.RateLimit(cfg.RateLimit))

			r.With(middleware.RequireWrite()).Post("/books", h.Books.Create)
			r.With(middleware.RequireWrite(), middleware.ValidPathID("id")).Put("/books/{id}", h.Books.Update)

			r.With(middleware.RequireRead()).Get("/loans", h.Loans.List)
			r.With(middleware.RequireWrite()).Post("/loans", h.Loans.Borrow)
			r.With(middleware.RequireWrite(), middleware.ValidPathID("bookId")).Delete("/loans/{bookId}", h.Loans.Return)

			r.Route("/api-keys", func(r chi.Router) {
				r.With(middleware.RequireRead()).Get("/", h.APIKeys.List)
				r.With(middleware.RequireAdmin()).Post("/", h.APIKeys.Create)
				r.With(middleware.RequireAdmin(), middleware.ValidPathID("id")).Delete("/{id}", h.APIKeys.Revoke)
				r.With(middleware.RequireAdmin(), middleware.ValidPathID("id")).Post("/{id}/rotate", h.APIKeys.Rotate)
			})

			if h.Admin != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.RequireAdmin())
					r.Get("/drift", h.Admin.DriftStatus)
					r.Post("/drift/reconcile", h.Admin.RunReconcile)
				})
			}
		})
	})

	r.NotFound(h.Root.NotFound)
	r.MethodNotAllowed(h.Root.MethodNotAllowed)

	return r
}
