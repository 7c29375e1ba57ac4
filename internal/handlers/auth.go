package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/obaatanpa/internal/middleware"
	"github.com/example/obaatanpa/internal/models"
	"github.com/example/obaatanpa/internal/services"
)

// AuthHandler bundles dependencies for the account endpoints.
type AuthHandler struct {
	svc     *services.CredentialService
	timeout time.Duration
}

// NewAuthHandler constructs an AuthHandler. timeout bounds the store work of
// each request.
func NewAuthHandler(svc *services.CredentialService, timeout time.Duration) *AuthHandler {
	return &AuthHandler{svc: svc, timeout: timeout}
}

func (h *AuthHandler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.timeout)
}

type userSummary struct {
	ID            uuid.UUID            `json:"id"`
	FirstName     string               `json:"firstName"`
	LastName      string               `json:"lastName"`
	Email         string               `json:"email"`
	UserType      models.UserType      `json:"userType"`
	Status        models.AccountStatus `json:"status"`
	EmailVerified bool                 `json:"emailVerified"`
	LastLogin     *time.Time           `json:"lastLogin,omitempty"`
	LoginCount    int64                `json:"loginCount"`
}

func summarize(u *models.User) userSummary {
	return userSummary{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Email:         u.Email,
		UserType:      u.UserType,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLoginAt,
		LoginCount:    u.LoginCount,
	}
}

// Signup registers a new account.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req services.SignupInput
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.svc.Signup(ctx, req)
	if err != nil {
		return err
	}

	body := fiber.Map{
		"success": true,
		"message": "User registered successfully. Please check your email to verify your account.",
		"data": fiber.Map{
			"user":  summarize(res.User),
			"token": res.SessionToken,
		},
	}
	if res.EmailWarning != "" {
		body["warning"] = res.EmailWarning
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

type verifyRequest struct {
	Token string `json:"token"`
}

// Verify redeems an email verification token.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.svc.VerifyEmail(ctx, req.Token)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Email verified successfully",
		"data": fiber.Map{
			"user":  summarize(res.User),
			"token": res.SessionToken,
		},
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerification sends a fresh verification link. The response is the
// same whether or not the address is registered.
func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if _, err := h.svc.ResendVerification(ctx, req.Email); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "If that account exists and is unverified, a new verification email has been sent.",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing account.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	res, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Login successful",
		"data": fiber.Map{
			"user":  summarize(res.User),
			"token": res.SessionToken,
		},
	})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	user, err := h.svc.GetAccount(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"user": user},
	})
}

// UpdateMe applies profile, location and preference changes.
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.ProfileUpdate
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	user, err := h.svc.UpdateProfile(ctx, userID, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Profile updated",
		"data":    fiber.Map{"user": user},
	})
}
