package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/userhub/apiserver/types"
)

// TokenRepository handles persistence for issued bearer tokens. Only the
// SHA-256 of a token is ever stored; verification is a lookup by that hash.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Insert(ctx context.Context, userID int, tokenHash string) error {
	const query = `
		INSERT INTO auth_tokens (user_id, token_hash, created_at)
		VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, userID, tokenHash, time.Now())
	return err
}

// FindUserByHash resolves a token hash to its owning user. A missing token
// yields ErrNotFound.
func (r *TokenRepository) FindUserByHash(ctx context.Context, tokenHash string) (types.User, error) {
	const query = `
		SELECT u.id, u.name, u.email, u.role, u.password_hash, u.remember_token, u.created_at, u.updated_at
		FROM auth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// DeleteByHash removes a single token. Deleting a token that is already gone
// is not an error.
func (r *TokenRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	const query = `DELETE FROM auth_tokens WHERE token_hash = $1`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// DeleteAllForUser revokes every token belonging to userID.
func (r *TokenRepository) DeleteAllForUser(ctx context.Context, userID int) error {
	const query = `DELETE FROM auth_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// ReplaceAllForUser revokes every token belonging to userID and inserts the
// replacement in a single transaction, so no token issued before the revoke
// survives it.
func (r *TokenRepository) ReplaceAllForUser(ctx context.Context, userID int, tokenHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}
	const insert = `
		INSERT INTO auth_tokens (user_id, token_hash, created_at)
		VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, insert, userID, tokenHash, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}
