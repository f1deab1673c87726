package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_shop/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	// AllowedOrigins enables CORS for browser clients. Empty disables it.
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig, gate *AuthGate, accounts *AccountHandler, carts *CartHandler, checkouts *CheckoutHandler) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", accounts.Register)
		r.Post("/login", accounts.Login)

		r.Group(func(r chi.Router) {
			r.Use(gate.Middleware)

			r.Get("/auth", accounts.WhoAmI)
			r.Get("/logout", accounts.Logout)
			r.Get("/history", accounts.GetHistory)
			r.Put("/profile", accounts.UpdateProfile)
			r.Put("/password", accounts.UpdatePassword)

			r.Get("/cart", carts.GetCart)
			r.Post("/cart/items", carts.AddItem)
			r.Delete("/cart/items/{productId}", carts.RemoveItem)

			r.Post("/checkout", checkouts.Checkout)
		})
	})

	return r
}
