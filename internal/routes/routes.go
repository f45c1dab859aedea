package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/riskauth/internal/auth"
	"github.com/BradenHooton/riskauth/internal/handlers"
	"github.com/BradenHooton/riskauth/internal/middleware"
	"github.com/BradenHooton/riskauth/internal/models"
	pkghttp "github.com/BradenHooton/riskauth/pkg/http"
)

// Limits holds the per-client request budgets of the public endpoints.
type Limits struct {
	Login  middleware.RateLimitConfig
	Verify middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	riskHandler *handlers.RiskHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	ipConfig *pkghttp.IPConfig,
	limits Limits,
) {
	loginLimit := middleware.RateLimitByIP(limits.Login, ipConfig)
	verifyLimit := middleware.RateLimitByIP(limits.Verify, ipConfig)

	router.Get("/health", healthHandler.Health)

	// Public routes - no authentication required
	router.Route("/api", func(r chi.Router) {
		r.With(loginLimit).Post("/auth/login", authHandler.Login)
		r.With(verifyLimit).Post("/auth/otp/verify", authHandler.VerifyOTP)
		r.With(loginLimit).Post("/auth/otp/resend", authHandler.ResendOTP)
		r.With(loginLimit).Post("/auth/password/set", authHandler.SetPassword)
		r.With(loginLimit).Post("/risk/assess", riskHandler.Assess)

		// Admin-only routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AuthMiddleware(tokenManager))
			r.Use(auth.RequireRole(userRepo, models.RoleAdmin))

			r.Get("/users", adminHandler.ListUsers)
			r.Post("/users", adminHandler.CreateUser)
			r.Delete("/users/{id}", adminHandler.DeleteUser)
			r.Post("/users/{id}/reject", adminHandler.RejectUser)

			r.Get("/analytics/risk-distribution", adminHandler.RiskDistribution)
			r.Get("/analytics/login-trend", adminHandler.LoginTrend)
		})
	})
}
