package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/photostore/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware фотомагазина.
// loginLimiter может быть nil, тогда вход не ограничивается.
func (h *Handler) SetupRouter(corsOrigins []string, loginLimiter *custommiddleware.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Recovery(h.logger))
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/", h.Liveness)
	r.Post("/", h.Webhook)

	r.Route("/users", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/add", h.Register)
		r.Group(func(r chi.Router) {
			if loginLimiter != nil {
				r.Use(loginLimiter.Middleware)
			}
			r.Post("/log-in", h.Login)
		})
		r.Post("/session-hook", h.SessionHook)
		r.Get("/get-role", h.GetRole)
		r.Post("/log-out", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Require)

			r.Post("/hashing", h.RequestPayment)
			r.Post("/get-table", h.GetOrders)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
