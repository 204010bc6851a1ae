package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatbot-auth/internal/config"
	"chatbot-auth/internal/handler"
	"chatbot-auth/internal/middleware"
	"chatbot-auth/internal/model"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Admin   *handler.AdminHandler
	Health  *handler.HealthHandler
	Metrics http.Handler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", h.Health.Health)
	r.Handle("/metrics", h.Metrics)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.OptionalAuthenticate).Get("/status", h.Auth.Status)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.Authenticate)
				protected.Post("/logout-all", h.Auth.LogoutAll)
				protected.Get("/me", h.Auth.Me)
				protected.Get("/events", h.Auth.Events)
			})
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.Authenticate, authMiddleware.RequireRole(model.RoleAdmin))
			admin.Post("/users/{id}/revoke-sessions", h.Admin.RevokeSessions)
		})
	})

	return r
}
