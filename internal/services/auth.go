package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Search(ctx context.Context, term string, page, pageSize int) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// PasswordResetRepository defines persistence for pending reset requests.
type PasswordResetRepository interface {
	Upsert(ctx context.Context, email, tokenHash string) error
	GetByEmail(ctx context.Context, email string) (types.PasswordReset, error)
	Consume(ctx context.Context, user types.User, passwordHash, rememberToken string) error
}

// ResetMailer delivers password reset links. The actual sending happens in an
// external worker; this process only hands over the job.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, user types.User, token string, expiresAt time.Time) error
}

// AuthService implements the registration, login, logout, and password reset
// workflows.
type AuthService struct {
	users      UserRepository
	resets     PasswordResetRepository
	tokens     *TokenService
	mailer     ResetMailer
	log        *logrus.Logger
	bcryptCost int
	resetTTL   time.Duration
}

func NewAuthService(
	users UserRepository,
	resets PasswordResetRepository,
	tokens *TokenService,
	mailer ResetMailer,
	log *logrus.Logger,
	bcryptCost int,
	resetTTL time.Duration,
) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if resetTTL == 0 {
		resetTTL = time.Hour
	}
	return &AuthService{
		users:      users,
		resets:     resets,
		tokens:     tokens,
		mailer:     mailer,
		log:        log,
		bcryptCost: bcryptCost,
		resetTTL:   resetTTL,
	}
}

type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// Register creates a self-service account. The role is always "user"; no
// input can change that. A token is issued without revoking anything.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	in.Name = trimmed(in.Name)
	in.Email = trimmed(in.Email)

	errs := newValidationError()
	checkName(errs, in.Name, true)
	checkEmail(errs, in.Email, true)
	checkPassword(errs, in.Password, in.PasswordConfirmation, true)
	if errs.any() {
		return types.User{}, "", errs
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, "", fieldError("email", msgEmailTaken)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return types.User{}, "", err
	}
	remember, err := newSecret()
	if err != nil {
		return types.User{}, "", err
	}

	user, err := s.users.Create(ctx, types.User{
		Name:          in.Name,
		Email:         in.Email,
		Role:          types.RoleUser,
		PasswordHash:  string(hash),
		RememberToken: remember,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, "", fieldError("email", msgEmailTaken)
		}
		return types.User{}, "", err
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials, revokes every previously issued token for the
// user, and issues exactly one fresh token. An unknown email and a wrong
// password produce the identical error.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	email = trimmed(email)

	errs := newValidationError()
	checkEmail(errs, email, true)
	if password == "" {
		errs.add("password", msgPasswordRequired)
	}
	if errs.any() {
		return types.User{}, "", errs
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", fieldError("email", msgBadCredentials)
		}
		return types.User{}, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return types.User{}, "", fieldError("email", msgBadCredentials)
	}

	token, err := s.tokens.IssueReplacing(ctx, user)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Logout revokes the presented token. Revoking a token that is already gone
// still succeeds.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.tokens.RevokeOne(ctx, token)
}

// CurrentUser resolves the presented token to its user.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (types.User, error) {
	return s.tokens.Verify(ctx, token)
}

// ForgotPassword starts the reset flow. The outcome is identical whether or
// not the email belongs to an account, so the endpoint cannot be used to
// enumerate users. Mail handoff failures are logged, not surfaced.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = trimmed(email)

	errs := newValidationError()
	checkEmail(errs, email, true)
	if errs.any() {
		return errs
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	plain, hash, err := newToken()
	if err != nil {
		return err
	}
	if err := s.resets.Upsert(ctx, user.Email, hash); err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.resetTTL)
	if err := s.mailer.SendPasswordReset(ctx, user, plain, expiresAt); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Error("failed to hand off password reset mail")
	}
	return nil
}

type ResetPasswordInput struct {
	Token                string
	Email                string
	Password             string
	PasswordConfirmation string
}

// ResetPassword consumes a single-use reset token. On success the password
// hash is replaced, the remember secret is rotated, every auth token is
// revoked, and the reset token stops working, all in one transaction.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	in.Email = trimmed(in.Email)

	errs := newValidationError()
	if in.Token == "" {
		errs.add("token", msgTokenRequired)
	}
	checkEmail(errs, in.Email, true)
	checkPassword(errs, in.Password, in.PasswordConfirmation, true)
	if errs.any() {
		return errs
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fieldError("email", msgResetUserMissing)
		}
		return err
	}

	reset, err := s.resets.GetByEmail(ctx, user.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fieldError("email", msgResetTokenInvalid)
		}
		return err
	}

	candidate := hashToken(in.Token)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(reset.TokenHash)) != 1 {
		return fieldError("email", msgResetTokenInvalid)
	}
	if time.Since(reset.CreatedAt) > s.resetTTL {
		return fieldError("email", msgResetTokenInvalid)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return err
	}
	remember, err := newSecret()
	if err != nil {
		return err
	}
	return s.resets.Consume(ctx, user, string(hash), remember)
}
