package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/obaatanpa/internal/metrics"
	"github.com/example/obaatanpa/internal/store"
	"github.com/example/obaatanpa/internal/utils"
)

// RequestPasswordReset issues a reset token and emails the link. The caller
// cannot tell a registered address from an unknown one: both return a nil
// error, and the token is empty for unknown addresses.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = store.NormalizeEmail(email)
	if err := checkValue("email", email, emailRules); err != nil {
		s.metrics.Observe("request_password_reset", metrics.OutcomeInvalidInput)
		return "", err
	}

	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Observe("request_password_reset", metrics.OutcomeRejected)
			return "", nil
		}
		s.metrics.Observe("request_password_reset", metrics.OutcomeError)
		return "", storeFailure("find by email", err)
	}

	issued, err := s.tokens.Issue(s.cfg.ResetTTL)
	if err != nil {
		s.metrics.Observe("request_password_reset", metrics.OutcomeError)
		return "", internalFailure("RESET_REQUEST_FAILED", "issue reset token", err)
	}
	if err := s.accounts.SetPasswordResetToken(ctx, user.ID, issued.Digest, issued.ExpiresAt); err != nil {
		s.metrics.Observe("request_password_reset", metrics.OutcomeError)
		return "", storeFailure("set reset token", err)
	}
	s.metrics.TokenIssued(tokenClassReset)

	msg, err := passwordResetEmail(s.cfg.FrontendURL, user, issued.Token, s.cfg.ResetTTL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.emailFailed(tokenClassReset, user, err)
	}

	s.metrics.Observe("request_password_reset", metrics.OutcomeSuccess)
	s.logger.Info("password reset requested", zap.String("user_id", user.ID.String()))
	return issued.Token, nil
}

// ResetPassword redeems a reset token and replaces the password. Like
// verification tokens, reset tokens are single-use and expire.
func (s *CredentialService) ResetPassword(ctx context.Context, token, newPassword string) (*AuthResult, error) {
	if token == "" {
		s.metrics.Observe("reset_password", metrics.OutcomeInvalidInput)
		return nil, invalid("token", "Reset token is required")
	}
	if err := checkValue("password", newPassword, passwordRules); err != nil {
		s.metrics.Observe("reset_password", metrics.OutcomeInvalidInput)
		return nil, err
	}

	digest := utils.DigestToken(token)
	now := s.now()

	user, err := s.accounts.FindByResetDigest(ctx, digest, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Observe("reset_password", metrics.OutcomeRejected)
			return nil, ErrInvalidOrExpiredToken
		}
		s.metrics.Observe("reset_password", metrics.OutcomeError)
		return nil, storeFailure("find by reset digest", err)
	}

	passwordDigest, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.metrics.Observe("reset_password", metrics.OutcomeError)
		return nil, internalFailure("RESET_FAILED", "hash password", err)
	}

	if err := s.accounts.ResetPassword(ctx, user.ID, digest, passwordDigest, now); err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			s.metrics.Observe("reset_password", metrics.OutcomeRejected)
			return nil, ErrInvalidOrExpiredToken
		}
		s.metrics.Observe("reset_password", metrics.OutcomeError)
		return nil, storeFailure("reset password", err)
	}

	changedAt := now.UTC()
	user.PasswordChangedAt = &changedAt
	user.PasswordResetTokenDigest = nil
	user.PasswordResetExpiresAt = nil

	session, err := s.sessions.Issue(user.ID)
	if err != nil {
		s.metrics.Observe("reset_password", metrics.OutcomeError)
		return nil, internalFailure("RESET_FAILED", "issue session token", err)
	}

	s.metrics.Observe("reset_password", metrics.OutcomeSuccess)
	s.logger.Info("password reset", zap.String("user_id", user.ID.String()))
	return &AuthResult{User: user, SessionToken: session}, nil
}
