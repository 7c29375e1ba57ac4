package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/example/obaatanpa/internal/services"
)

func TestAPIErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"validation", &services.ValidationError{Field: "email", Message: "is required"}, fiber.StatusBadRequest, "email: is required"},
		{"duplicate", services.ErrDuplicateAccount, fiber.StatusBadRequest, "User already exists with this email"},
		{"token", services.ErrInvalidOrExpiredToken, fiber.StatusBadRequest, "Invalid or expired token"},
		{"credentials", services.ErrInvalidCredentials, fiber.StatusUnauthorized, "Invalid credentials"},
		{"not found", services.ErrAccountNotFound, fiber.StatusNotFound, "Account not found"},
		{"store", fmt.Errorf("find: %w", services.ErrStoreUnavailable), fiber.StatusServiceUnavailable, "Service temporarily unavailable. Please try again later."},
		{"fiber passthrough", fiber.NewError(fiber.StatusUnauthorized, "invalid token"), fiber.StatusUnauthorized, "invalid token"},
		{"unexpected", errors.New("pq: connection reset with secret detail"), fiber.StatusInternalServerError, genericServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := apiError(tt.err)
			assert.Equal(t, tt.code, fe.Code)
			assert.Equal(t, tt.message, fe.Message)
		})
	}
}
