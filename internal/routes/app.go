package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/obaatanpa/internal/handlers"
)

// NewApp builds the fiber app with the shared error envelope. Access logging
// is skipped when accessLog is false.
func NewApp(log *zap.Logger, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Obaatanpa Backend",
		ErrorHandler: handlers.ErrorHandler(log),
	})

	app.Use(recover.New())
	if accessLog {
		app.Use(logger.New())
	}
	return app
}
