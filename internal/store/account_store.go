// Package store persists accounts. Every state transition that must not race
// (redeeming a token, resetting a password, counting a login) is a single
// conditional UPDATE so the database serializes competing requests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/obaatanpa/internal/models"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by Create when the email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenNotFound is returned when a token digest no longer matches an
	// unexpired pair at write time.
	ErrTokenNotFound = errors.New("token not found or expired")
)

// AccountStore is what the credential service needs from persistence.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailWithSecret(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByVerificationDigest(ctx context.Context, digest string, now time.Time) (*models.User, error)
	FindByResetDigest(ctx context.Context, digest string, now time.Time) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
	SetVerificationToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error
	SetPasswordResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error
	RedeemVerification(ctx context.Context, id uuid.UUID, digest string, now time.Time) error
	ResetPassword(ctx context.Context, id uuid.UUID, digest, passwordDigest string, now time.Time) error
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// GormAccountStore implements AccountStore on gorm.
type GormAccountStore struct {
	db *gorm.DB
}

// NewAccountStore wraps db. The connection should be opened with
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
func NewAccountStore(db *gorm.DB) *GormAccountStore {
	return &GormAccountStore{db: db}
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// editableColumns are the fields Save may overwrite.
var editableColumns = []string{
	"first_name", "last_name", "phone", "date_of_birth",
	"profile_picture", "location", "preferences", "profile",
}

func (s *GormAccountStore) first(ctx context.Context, withSecret bool, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	tx := s.db.WithContext(ctx)
	if !withSecret {
		tx = tx.Omit("password_digest")
	}
	if err := tx.Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormAccountStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, false, "email = ?", NormalizeEmail(email))
}

// FindByEmailWithSecret is FindByEmail with the password digest loaded.
func (s *GormAccountStore) FindByEmailWithSecret(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, true, "email = ?", NormalizeEmail(email))
}

func (s *GormAccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.first(ctx, false, "id = ?", id)
}

// FindByVerificationDigest matches only while the token is unexpired; an
// expired token and an unknown one both return ErrNotFound.
func (s *GormAccountStore) FindByVerificationDigest(ctx context.Context, digest string, now time.Time) (*models.User, error) {
	return s.first(ctx, false,
		"email_verification_token_digest = ? AND email_verification_expires_at > ?", digest, now.UTC())
}

func (s *GormAccountStore) FindByResetDigest(ctx context.Context, digest string, now time.Time) (*models.User, error) {
	return s.first(ctx, false,
		"password_reset_token_digest = ? AND password_reset_expires_at > ?", digest, now.UTC())
}

func (s *GormAccountStore) Create(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// Save writes the caller-editable profile fields. Credentials, token pairs,
// status and activity counters are left to their dedicated methods.
func (s *GormAccountStore) Save(ctx context.Context, user *models.User) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Select(editableColumns).
		Updates(user)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormAccountStore) updateByID(ctx context.Context, id uuid.UUID, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVerificationToken replaces the verification pair, invalidating any
// token issued before.
func (s *GormAccountStore) SetVerificationToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error {
	return s.updateByID(ctx, id, map[string]interface{}{
		"email_verification_token_digest": digest,
		"email_verification_expires_at":   expiresAt.UTC(),
	})
}

func (s *GormAccountStore) SetPasswordResetToken(ctx context.Context, id uuid.UUID, digest string, expiresAt time.Time) error {
	return s.updateByID(ctx, id, map[string]interface{}{
		"password_reset_token_digest": digest,
		"password_reset_expires_at":   expiresAt.UTC(),
	})
}

// RedeemVerification activates the account and clears the verification pair,
// but only if the pair still holds digest and is unexpired when the row is
// written. Of two concurrent redemptions exactly one succeeds.
func (s *GormAccountStore) RedeemVerification(ctx context.Context, id uuid.UUID, digest string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND email_verification_token_digest = ? AND email_verification_expires_at > ?", id, digest, now.UTC()).
		Updates(map[string]interface{}{
			"email_verified":                  true,
			"status":                          models.StatusActive,
			"email_verification_token_digest": nil,
			"email_verification_expires_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ResetPassword swaps in passwordDigest and clears the reset pair under the
// same conditions as RedeemVerification.
func (s *GormAccountStore) ResetPassword(ctx context.Context, id uuid.UUID, digest, passwordDigest string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND password_reset_token_digest = ? AND password_reset_expires_at > ?", id, digest, now.UTC()).
		Updates(map[string]interface{}{
			"password_digest":             passwordDigest,
			"password_changed_at":         now.UTC(),
			"password_reset_token_digest": nil,
			"password_reset_expires_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RecordLogin increments login_count in SQL so concurrent logins are all counted.
func (s *GormAccountStore) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.updateByID(ctx, id, map[string]interface{}{
		"login_count":   gorm.Expr("login_count + ?", 1),
		"last_login_at": at.UTC(),
	})
}
