package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/obaatanpa/internal/metrics"
	"github.com/example/obaatanpa/internal/models"
	"github.com/example/obaatanpa/internal/store"
	"github.com/example/obaatanpa/internal/utils"
)

// Config is everything the credential service needs from the environment.
type Config struct {
	BcryptCost      int
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	JWTSecret       string
	SessionTTL      time.Duration
	FrontendURL     string
}

// Token classes, used as metric labels and in log lines.
const (
	tokenClassVerification = "verification"
	tokenClassReset        = "password_reset"
)

// dummyPassword is hashed once at startup. Logins for unknown emails are
// compared against its digest so they take as long as real ones.
const dummyPassword = "obaatanpa-timing-equalizer"

// CredentialService runs signup, email verification, login and password
// reset. It is the only component that touches password digests, token
// digests and session signing.
type CredentialService struct {
	accounts    store.AccountStore
	hasher      utils.PasswordHasher
	tokens      *utils.TokenGenerator
	sessions    *utils.SessionIssuer
	mailer      Mailer
	cfg         Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	dummyDigest string
}

// Option customises a CredentialService.
type Option func(*CredentialService)

// WithClock replaces the wall clock used for token expiry and login stamps.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialService) {
		s.now = now
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CredentialService) {
		s.metrics = m
	}
}

// NewCredentialService wires the service. mailer may be nil, in which case
// emails are only logged.
func NewCredentialService(accounts store.AccountStore, mailer Mailer, cfg Config, logger *zap.Logger, opts ...Option) (*CredentialService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	s := &CredentialService{
		accounts: accounts,
		hasher:   utils.NewBcryptHasher(cfg.BcryptCost),
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = utils.NewTokenGeneratorWithClock(s.now)
	s.sessions = utils.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTTL)

	digest, err := s.hasher.Hash(dummyPassword)
	if err != nil {
		return nil, internalFailure("SERVICE_INIT_FAILED", "hash dummy password", err)
	}
	s.dummyDigest = digest
	return s, nil
}

// Sessions exposes the issuer so middleware can verify bearer tokens.
func (s *CredentialService) Sessions() *utils.SessionIssuer {
	return s.sessions
}

// SignupInput is the registration payload.
type SignupInput struct {
	FirstName           string           `json:"firstName" validate:"notblank,max=50"`
	LastName            string           `json:"lastName" validate:"notblank,max=50"`
	Email               string           `json:"email" validate:"required,max=254,email_address"`
	Phone               string           `json:"phone" validate:"required,max=16,phone"`
	Password            string           `json:"password" validate:"required,min=6,max_bytes=72"`
	UserType            models.UserType  `json:"userType" validate:"required,oneof=pregnant new_mother hospital practitioner"`
	DateOfBirth         string           `json:"dateOfBirth"`
	Location            *models.Location `json:"location"`
	PregnancyProfile    json.RawMessage  `json:"pregnancyProfile"`
	MotherProfile       json.RawMessage  `json:"motherProfile"`
	HospitalProfile     json.RawMessage  `json:"hospitalProfile"`
	PractitionerProfile json.RawMessage  `json:"practitionerProfile"`
}

func (in SignupInput) profiles() map[models.UserType]json.RawMessage {
	return map[models.UserType]json.RawMessage{
		models.UserTypePregnant:     in.PregnancyProfile,
		models.UserTypeNewMother:    in.MotherProfile,
		models.UserTypeHospital:     in.HospitalProfile,
		models.UserTypePractitioner: in.PractitionerProfile,
	}
}

// SignupResult carries the new account, the one-time verification token for
// the email link, and a session token. EmailWarning is set when the account
// was created but the verification email could not be sent.
type SignupResult struct {
	User              *models.User
	VerificationToken string
	SessionToken      string
	EmailWarning      string
}

// AuthResult is returned by operations that authenticate the caller.
type AuthResult struct {
	User         *models.User
	SessionToken string
}

// Signup registers a pending, unverified account and issues its first
// verification token.
func (s *CredentialService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	email := store.NormalizeEmail(in.Email)
	if email != "" {
		_, err := s.accounts.FindByEmail(ctx, email)
		switch {
		case err == nil:
			s.metrics.Observe("signup", metrics.OutcomeRejected)
			return nil, ErrDuplicateAccount
		case !errors.Is(err, store.ErrNotFound):
			s.metrics.Observe("signup", metrics.OutcomeError)
			return nil, storeFailure("find by email", err)
		}
	}

	user, err := s.newAccount(email, in)
	if err != nil {
		s.metrics.Observe("signup", metrics.OutcomeInvalidInput)
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.Observe("signup", metrics.OutcomeError)
		return nil, internalFailure("SIGNUP_FAILED", "hash password", err)
	}
	user.PasswordDigest = digest

	issued, err := s.tokens.Issue(s.cfg.VerificationTTL)
	if err != nil {
		s.metrics.Observe("signup", metrics.OutcomeError)
		return nil, internalFailure("SIGNUP_FAILED", "issue verification token", err)
	}
	// The account and its first token pair are written in one insert.
	user.EmailVerificationTokenDigest = &issued.Digest
	user.EmailVerificationExpiresAt = &issued.ExpiresAt

	if err := s.accounts.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			s.metrics.Observe("signup", metrics.OutcomeRejected)
			return nil, ErrDuplicateAccount
		}
		s.metrics.Observe("signup", metrics.OutcomeError)
		return nil, storeFailure("create account", err)
	}
	s.metrics.TokenIssued(tokenClassVerification)

	session, err := s.sessions.Issue(user.ID)
	if err != nil {
		s.metrics.Observe("signup", metrics.OutcomeError)
		return nil, internalFailure("SIGNUP_FAILED", "issue session token", err)
	}

	result := &SignupResult{
		User:              user,
		VerificationToken: issued.Token,
		SessionToken:      session,
	}
	if err := s.sendVerification(ctx, user, issued.Token); err != nil {
		result.EmailWarning = "Account created, but the verification email could not be sent. Request a new one to verify your email."
	}

	user.PasswordDigest = ""
	s.metrics.Observe("signup", metrics.OutcomeSuccess)
	s.logger.Info("account registered",
		zap.String("user_id", user.ID.String()),
		zap.String("user_type", string(user.UserType)),
	)
	return result, nil
}

func (s *CredentialService) newAccount(email string, in SignupInput) (*models.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = email
	in.Phone = strings.TrimSpace(in.Phone)

	if err := checkStruct("", in); err != nil {
		return nil, err
	}
	dob, err := parseDateOfBirth(in.DateOfBirth, s.now())
	if err != nil {
		return nil, err
	}
	profile, err := buildProfile(in.UserType, in.profiles())
	if err != nil {
		return nil, err
	}

	return &models.User{
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         email,
		Phone:         in.Phone,
		UserType:      in.UserType,
		Status:        models.StatusPendingVerification,
		EmailVerified: false,
		DateOfBirth:   dob,
		Location:      normalizeLocation(in.Location),
		Preferences:   models.DefaultPreferences(),
		Profile:       profile,
	}, nil
}

// sendVerification renders and dispatches the verification email. Failures
// are logged and counted; they never undo the caller's work.
func (s *CredentialService) sendVerification(ctx context.Context, user *models.User, token string) error {
	msg, err := verificationEmail(s.cfg.FrontendURL, user, token, s.cfg.VerificationTTL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.emailFailed(tokenClassVerification, user, err)
		return ErrEmailDispatchFailed
	}
	return nil
}

func (s *CredentialService) emailFailed(kind string, user *models.User, err error) {
	s.metrics.EmailFailed(kind)
	s.logger.Warn("email dispatch failed",
		zap.String("kind", kind),
		zap.String("user_id", user.ID.String()),
		zap.Error(err),
	)
}

// VerifyEmail redeems a verification token. The token is single-use: the
// store clears the pair in the same statement that activates the account.
func (s *CredentialService) VerifyEmail(ctx context.Context, token string) (*AuthResult, error) {
	if token == "" {
		s.metrics.Observe("verify_email", metrics.OutcomeInvalidInput)
		return nil, invalid("token", "Verification token is required")
	}

	digest := utils.DigestToken(token)
	now := s.now()

	user, err := s.accounts.FindByVerificationDigest(ctx, digest, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Observe("verify_email", metrics.OutcomeRejected)
			return nil, ErrInvalidOrExpiredToken
		}
		s.metrics.Observe("verify_email", metrics.OutcomeError)
		return nil, storeFailure("find by verification digest", err)
	}

	if err := s.accounts.RedeemVerification(ctx, user.ID, digest, now); err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			// Lost a race with another redemption or the token expired in between.
			s.metrics.Observe("verify_email", metrics.OutcomeRejected)
			return nil, ErrInvalidOrExpiredToken
		}
		s.metrics.Observe("verify_email", metrics.OutcomeError)
		return nil, storeFailure("redeem verification", err)
	}

	user.EmailVerified = true
	user.Status = models.StatusActive
	user.EmailVerificationTokenDigest = nil
	user.EmailVerificationExpiresAt = nil

	session, err := s.sessions.Issue(user.ID)
	if err != nil {
		s.metrics.Observe("verify_email", metrics.OutcomeError)
		return nil, internalFailure("VERIFY_FAILED", "issue session token", err)
	}

	s.metrics.Observe("verify_email", metrics.OutcomeSuccess)
	s.logger.Info("email verified", zap.String("user_id", user.ID.String()))
	return &AuthResult{User: user, SessionToken: session}, nil
}

// ResendVerification issues a fresh verification token, replacing the
// previous one. Unknown and already verified emails are silently ignored so
// the response does not reveal which addresses are registered; the returned
// token is empty in that case.
func (s *CredentialService) ResendVerification(ctx context.Context, email string) (string, error) {
	email = store.NormalizeEmail(email)
	if err := checkValue("email", email, emailRules); err != nil {
		s.metrics.Observe("resend_verification", metrics.OutcomeInvalidInput)
		return "", err
	}

	user, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Observe("resend_verification", metrics.OutcomeRejected)
			return "", nil
		}
		s.metrics.Observe("resend_verification", metrics.OutcomeError)
		return "", storeFailure("find by email", err)
	}
	if user.EmailVerified {
		s.metrics.Observe("resend_verification", metrics.OutcomeRejected)
		return "", nil
	}

	issued, err := s.tokens.Issue(s.cfg.VerificationTTL)
	if err != nil {
		s.metrics.Observe("resend_verification", metrics.OutcomeError)
		return "", internalFailure("RESEND_FAILED", "issue verification token", err)
	}
	if err := s.accounts.SetVerificationToken(ctx, user.ID, issued.Digest, issued.ExpiresAt); err != nil {
		s.metrics.Observe("resend_verification", metrics.OutcomeError)
		return "", storeFailure("set verification token", err)
	}
	s.metrics.TokenIssued(tokenClassVerification)

	_ = s.sendVerification(ctx, user, issued.Token)
	s.metrics.Observe("resend_verification", metrics.OutcomeSuccess)
	return issued.Token, nil
}

// Login checks an email and password. An unknown email and a wrong password
// return the same ErrInvalidCredentials, and both run one bcrypt comparison.
// Unverified accounts may log in.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.accounts.FindByEmailWithSecret(ctx, email)

	target := s.dummyDigest
	exists := false
	switch {
	case err == nil:
		target = user.PasswordDigest
		exists = true
	case !errors.Is(err, store.ErrNotFound):
		s.metrics.Observe("login", metrics.OutcomeError)
		return nil, storeFailure("find by email with secret", err)
	}

	matched := s.hasher.Matches(password, target)
	if !exists || !matched {
		s.metrics.Observe("login", metrics.OutcomeRejected)
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.accounts.RecordLogin(ctx, user.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Observe("login", metrics.OutcomeRejected)
			return nil, ErrInvalidCredentials
		}
		s.metrics.Observe("login", metrics.OutcomeError)
		return nil, storeFailure("record login", err)
	}
	user.LastLoginAt = &now
	user.LoginCount++
	user.PasswordDigest = ""

	session, err := s.sessions.Issue(user.ID)
	if err != nil {
		s.metrics.Observe("login", metrics.OutcomeError)
		return nil, internalFailure("LOGIN_FAILED", "issue session token", err)
	}

	s.metrics.Observe("login", metrics.OutcomeSuccess)
	s.logger.Info("login succeeded", zap.String("user_id", user.ID.String()))
	return &AuthResult{User: user, SessionToken: session}, nil
}

// GetAccount loads the account behind an authenticated session.
func (s *CredentialService) GetAccount(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.loadAccount(ctx, id)
	s.metrics.Observe("get_account", outcomeOf(err))
	return user, err
}

func (s *CredentialService) loadAccount(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeFailure("find by id", err)
	}
	return user, nil
}

// ProfileUpdate lists the fields an account holder may change. Nil fields
// are left as they are. Preferences is merged into the stored preferences,
// so a patch only needs the keys it changes.
type ProfileUpdate struct {
	FirstName      *string          `json:"firstName" validate:"omitnil,notblank,max=50"`
	LastName       *string          `json:"lastName" validate:"omitnil,notblank,max=50"`
	Phone          *string          `json:"phone" validate:"omitnil,notblank,max=16,phone"`
	DateOfBirth    *string          `json:"dateOfBirth"`
	ProfilePicture *string          `json:"profilePicture" validate:"omitnil,max=2048"`
	Location       *models.Location `json:"location"`
	Preferences    json.RawMessage  `json:"preferences"`
	Profile        json.RawMessage  `json:"profile"`
}

// UpdateProfile applies a ProfileUpdate. The role profile is decoded for the
// account's own user type; the type itself cannot change.
func (s *CredentialService) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	user, err := s.updateProfile(ctx, id, upd)
	s.metrics.Observe("update_profile", outcomeOf(err))
	return user, err
}

func (s *CredentialService) updateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	user, err := s.loadAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	upd.FirstName = trimmed(upd.FirstName)
	upd.LastName = trimmed(upd.LastName)
	upd.Phone = trimmed(upd.Phone)
	upd.ProfilePicture = trimmed(upd.ProfilePicture)
	if err := checkStruct("", upd); err != nil {
		return nil, err
	}

	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		user.Phone = *upd.Phone
	}
	if upd.DateOfBirth != nil {
		dob, err := parseDateOfBirth(*upd.DateOfBirth, s.now())
		if err != nil {
			return nil, err
		}
		user.DateOfBirth = dob
	}
	if upd.ProfilePicture != nil {
		if *upd.ProfilePicture == "" {
			user.ProfilePicture = nil
		} else {
			user.ProfilePicture = upd.ProfilePicture
		}
	}
	if upd.Location != nil {
		user.Location = normalizeLocation(upd.Location)
	}
	if !isEmptyJSON(upd.Preferences) {
		prefs, err := mergePreferences(user.Preferences, upd.Preferences)
		if err != nil {
			return nil, err
		}
		user.Preferences = prefs
	}
	if !isEmptyJSON(upd.Profile) {
		profile, err := buildProfile(user.UserType, map[models.UserType]json.RawMessage{user.UserType: upd.Profile})
		if err != nil {
			return nil, err
		}
		user.Profile = profile
	}

	if err := s.accounts.Save(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeFailure("save account", err)
	}
	return user, nil
}

// outcomeOf labels the result of operations that report a single error.
func outcomeOf(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &verr):
		return metrics.OutcomeInvalidInput
	case errors.Is(err, ErrAccountNotFound):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
