package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/obaatanpa/internal/models"
	"github.com/example/obaatanpa/internal/store"
	"github.com/example/obaatanpa/internal/store/storetest"
)

func newUser(t *testing.T, email string) *models.User {
	t.Helper()
	profile, err := models.NewRoleProfile(models.UserTypePregnant, nil)
	require.NoError(t, err)
	return &models.User{
		FirstName:      "Ama",
		LastName:       "Mensah",
		Email:          email,
		Phone:          "+233201234567",
		PasswordDigest: "$2a$04$digest",
		UserType:       models.UserTypePregnant,
		Status:         models.StatusPendingVerification,
		Preferences:    models.DefaultPreferences(),
		Profile:        profile,
	}
}

func TestCreateAndFindByEmail(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))

	u := newUser(t, "  Ama@Example.COM ")
	require.NoError(t, s.Create(ctx, u))
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "ama@example.com", u.Email)

	found, err := s.FindByEmail(ctx, "AMA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Empty(t, found.PasswordDigest, "default reads must not load the digest")
	assert.Equal(t, models.UserTypePregnant, found.Profile.Kind())
	assert.Equal(t, "en", found.Preferences.Language)

	withSecret, err := s.FindByEmailWithSecret(ctx, "ama@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$digest", withSecret.PasswordDigest)

	byID, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, byID.PasswordDigest)

	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))

	require.NoError(t, s.Create(ctx, newUser(t, "a@x.com")))
	err := s.Create(ctx, newUser(t, "A@X.com"))
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))

	const workers = 4
	users := make([]*models.User, workers)
	for i := range users {
		users[i] = newUser(t, "race@x.com")
	}
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			errs[idx] = s.Create(ctx, users[idx])
		}()
	}
	wg.Wait()

	success, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, store.ErrDuplicateEmail):
			dup++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, dup)
}

func TestVerificationDigestLookupRespectsExpiry(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))
	now := time.Now().UTC()

	u := newUser(t, "v@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "digest-1", now.Add(time.Hour)))

	found, err := s.FindByVerificationDigest(ctx, "digest-1", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = s.FindByVerificationDigest(ctx, "digest-1", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindByVerificationDigest(ctx, "unknown", now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetVerificationTokenReplacesPreviousPair(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))
	now := time.Now().UTC()

	u := newUser(t, "r@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "old", now.Add(time.Hour)))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "new", now.Add(time.Hour)))

	_, err := s.FindByVerificationDigest(ctx, "old", now)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindByVerificationDigest(ctx, "new", now)
	assert.NoError(t, err)
}

func TestRedeemVerificationIsSingleUse(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	s := store.NewAccountStore(db)
	now := time.Now().UTC()

	u := newUser(t, "once@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "digest", now.Add(time.Hour)))

	require.NoError(t, s.RedeemVerification(ctx, u.ID, "digest", now))
	assert.ErrorIs(t, s.RedeemVerification(ctx, u.ID, "digest", now), store.ErrTokenNotFound)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", u.ID).Error)
	assert.True(t, stored.EmailVerified)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.Nil(t, stored.EmailVerificationTokenDigest)
	assert.Nil(t, stored.EmailVerificationExpiresAt)
}

func TestRedeemVerificationConcurrent(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))
	now := time.Now().UTC()

	u := newUser(t, "concurrent@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "digest", now.Add(time.Hour)))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		idx := i
		go func() {
			defer wg.Done()
			errs[idx] = s.RedeemVerification(ctx, u.ID, "digest", now)
		}()
	}
	wg.Wait()

	success, notFound := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, store.ErrTokenNotFound):
			notFound++
		default:
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, 1, notFound)
}

func TestRedeemVerificationRejectsExpired(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))
	now := time.Now().UTC()

	u := newUser(t, "late@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "digest", now.Add(-time.Minute)))

	assert.ErrorIs(t, s.RedeemVerification(ctx, u.ID, "digest", now), store.ErrTokenNotFound)
}

func TestResetPasswordClearsPair(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	s := store.NewAccountStore(db)
	now := time.Now().UTC()

	u := newUser(t, "reset@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetPasswordResetToken(ctx, u.ID, "reset-digest", now.Add(10*time.Minute)))

	found, err := s.FindByResetDigest(ctx, "reset-digest", now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, s.ResetPassword(ctx, u.ID, "reset-digest", "$2a$04$new", now))
	assert.ErrorIs(t, s.ResetPassword(ctx, u.ID, "reset-digest", "$2a$04$other", now), store.ErrTokenNotFound)

	withSecret, err := s.FindByEmailWithSecret(ctx, "reset@x.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$new", withSecret.PasswordDigest)
	assert.Nil(t, withSecret.PasswordResetTokenDigest)
	assert.Nil(t, withSecret.PasswordResetExpiresAt)
	assert.NotNil(t, withSecret.PasswordChangedAt)
}

func TestRecordLoginCountsEveryLogin(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))

	u := newUser(t, "count@x.com")
	require.NoError(t, s.Create(ctx, u))

	const logins = 8
	var wg sync.WaitGroup
	wg.Add(logins)
	for i := 0; i < logins; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, s.RecordLogin(ctx, u.ID, time.Now()))
		}()
	}
	wg.Wait()

	found, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, logins, found.LoginCount)
	assert.NotNil(t, found.LastLoginAt)

	assert.ErrorIs(t, s.RecordLogin(ctx, uuid.New(), time.Now()), store.ErrNotFound)
}

func TestSaveLeavesSecretsAlone(t *testing.T) {
	ctx := context.Background()
	s := store.NewAccountStore(storetest.NewDB(t))
	now := time.Now().UTC()

	u := newUser(t, "save@x.com")
	require.NoError(t, s.Create(ctx, u))
	require.NoError(t, s.SetVerificationToken(ctx, u.ID, "digest", now.Add(time.Hour)))

	loaded, err := s.FindByID(ctx, u.ID)
	require.NoError(t, err)
	loaded.FirstName = "Akosua"
	loaded.Location = models.Location{City: "Kumasi", Country: "Ghana"}
	loaded.Status = models.StatusSuspended
	require.NoError(t, s.Save(ctx, loaded))

	withSecret, err := s.FindByEmailWithSecret(ctx, "save@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Akosua", withSecret.FirstName)
	assert.Equal(t, "Kumasi", withSecret.Location.City)
	assert.Equal(t, "$2a$04$digest", withSecret.PasswordDigest)
	assert.Equal(t, models.StatusPendingVerification, withSecret.Status)
	require.NotNil(t, withSecret.EmailVerificationTokenDigest)
	assert.Equal(t, "digest", *withSecret.EmailVerificationTokenDigest)

	assert.ErrorIs(t, s.Save(ctx, newUser(t, "ghost@x.com")), store.ErrNotFound)
}
