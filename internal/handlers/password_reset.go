package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// ForgotPassword emails a reset link. Unknown addresses get the same answer
// as registered ones.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if _, err := h.svc.RequestPasswordReset(ctx, req.Email); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "If an account exists for that email, a password reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword redeems a reset token and signs the caller in.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.svc.ResetPassword(ctx, req.Token, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password reset successful",
		"data": fiber.Map{
			"user":  summarize(res.User),
			"token": res.SessionToken,
		},
	})
}
