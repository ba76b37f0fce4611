package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// TokenRepository defines persistence operations for bearer tokens.
type TokenRepository interface {
	Insert(ctx context.Context, userID int, tokenHash string) error
	FindUserByHash(ctx context.Context, tokenHash string) (types.User, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID int) error
	ReplaceAllForUser(ctx context.Context, userID int, tokenHash string) error
}

// TokenService issues and verifies opaque bearer tokens. A token is 32 bytes
// of crypto/rand hex; the store holds only its SHA-256, so a leaked table
// does not yield usable credentials. Verification is a lookup, which makes
// revocation immediate.
type TokenService struct {
	repo TokenRepository
}

func NewTokenService(repo TokenRepository) *TokenService {
	return &TokenService{repo: repo}
}

// Issue mints a fresh token for user and returns its plaintext. It does not
// touch the user's other tokens; revocation policy belongs to the caller.
func (s *TokenService) Issue(ctx context.Context, user types.User) (string, error) {
	plain, hash, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.repo.Insert(ctx, user.ID, hash); err != nil {
		return "", err
	}
	return plain, nil
}

// IssueReplacing revokes every existing token for user and mints one fresh
// token, atomically. Used by login.
func (s *TokenService) IssueReplacing(ctx context.Context, user types.User) (string, error) {
	plain, hash, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.repo.ReplaceAllForUser(ctx, user.ID, hash); err != nil {
		return "", err
	}
	return plain, nil
}

// Verify resolves a presented token to its user. Absent, malformed, and
// revoked tokens all yield ErrUnauthenticated.
func (s *TokenService) Verify(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrUnauthenticated
	}
	user, err := s.repo.FindUserByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}
	return user, nil
}

// RevokeOne deletes a single token. A token that is already gone is treated
// as revoked, not as an error.
func (s *TokenService) RevokeOne(ctx context.Context, token string) error {
	return s.repo.DeleteByHash(ctx, hashToken(token))
}

// RevokeAll deletes every token belonging to user.
func (s *TokenService) RevokeAll(ctx context.Context, user types.User) error {
	return s.repo.DeleteAllForUser(ctx, user.ID)
}

func newToken() (plain, hash string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}
	plain = hex.EncodeToString(buf[:])
	return plain, hashToken(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newSecret returns a random string suitable for the remember token.
func newSecret() (string, error) {
	var buf [30]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
