package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/obaatanpa/internal/logging"
	"github.com/example/obaatanpa/internal/services"
)

const genericServerError = "Server error. Please try again later."

// apiError maps a service outcome to an HTTP status and a client-safe
// message. Anything outside the service's error taxonomy becomes a 500
// without detail.
func apiError(err error) *fiber.Error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}

	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, verr.Error())
	case errors.Is(err, services.ErrDuplicateAccount):
		return fiber.NewError(fiber.StatusBadRequest, "User already exists with this email")
	case errors.Is(err, services.ErrInvalidOrExpiredToken):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, services.ErrInvalidCredentials):
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrAccountNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Account not found")
	case errors.Is(err, services.ErrStoreUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Service temporarily unavailable. Please try again later.")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, genericServerError)
	}
}

// ErrorHandler renders every error returned by a handler in the
// {success:false, error} envelope and logs server-side failures.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		fe := apiError(err)
		if fe.Code >= fiber.StatusInternalServerError {
			logging.LogError(logger, "request failed", err)
		}
		return c.Status(fe.Code).JSON(fiber.Map{
			"success": false,
			"error":   fe.Message,
		})
	}
}
