package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/example/obaatanpa/internal/handlers"
	"github.com/example/obaatanpa/internal/metrics"
	"github.com/example/obaatanpa/internal/middleware"
	"github.com/example/obaatanpa/internal/services"
)

// Options tunes request handling.
type Options struct {
	// StoreTimeout bounds the store work of one request.
	StoreTimeout time.Duration
	// AuthRateLimit is the per-IP requests per minute allowed on login and
	// email-sending endpoints. Zero disables it.
	AuthRateLimit int
}

// Register wires up all HTTP routes. m may be nil, in which case /metrics is
// not served.
func Register(app *fiber.App, db *gorm.DB, svc *services.CredentialService, m *metrics.Metrics, opts Options) {
	authHandler := handlers.NewAuthHandler(svc, opts.StoreTimeout)
	throttle := middleware.CredentialRateLimit(opts.AuthRateLimit, time.Minute)
	healthHandler := handlers.NewHealthHandler(db)

	api := app.Group("/api")
	api.Get("/health", healthHandler.Check)

	// Account routes
	users := api.Group("/users")
	users.Post("/signup", authHandler.Signup)
	users.Post("/verify", authHandler.Verify)
	users.Post("/verify/resend", throttle, authHandler.ResendVerification)
	users.Post("/login", throttle, authHandler.Login)
	users.Post("/forgot-password", throttle, authHandler.ForgotPassword)
	users.Post("/reset-password", authHandler.ResetPassword)

	// Protected routes
	authRequired := middleware.AuthMiddleware(svc.Sessions())
	users.Get("/me", authRequired, authHandler.Me)
	users.Put("/me", authRequired, authHandler.UpdateMe)

	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	}
}
