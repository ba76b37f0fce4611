package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/userhub/apiserver/types"
)

// PasswordResetRepository handles pending password reset requests. At most
// one request exists per email; issuing a new one replaces the old.
type PasswordResetRepository struct {
	db *sql.DB
}

func NewPasswordResetRepository(db *sql.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) Upsert(ctx context.Context, email, tokenHash string) error {
	const query = `
		INSERT INTO password_resets (email, token_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email)
		DO UPDATE SET token_hash = EXCLUDED.token_hash, created_at = EXCLUDED.created_at`
	_, err := r.db.ExecContext(ctx, query, email, tokenHash, time.Now())
	return err
}

func (r *PasswordResetRepository) GetByEmail(ctx context.Context, email string) (types.PasswordReset, error) {
	const query = `
		SELECT email, token_hash, created_at
		FROM password_resets
		WHERE email = $1`
	var reset types.PasswordReset
	err := r.db.QueryRowContext(ctx, query, email).Scan(&reset.Email, &reset.TokenHash, &reset.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PasswordReset{}, ErrNotFound
		}
		return types.PasswordReset{}, err
	}
	return reset, nil
}

// Consume finalizes a password reset in a single transaction: it stores the
// new password hash and remember token on the user, deletes the reset row,
// and revokes every auth token the user holds. After it returns, the reset
// token cannot authorize a second change.
func (r *PasswordResetRepository) Consume(ctx context.Context, user types.User, passwordHash, rememberToken string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const updateUser = `
		UPDATE users
		SET password_hash = $1, remember_token = $2, updated_at = $3
		WHERE id = $4`
	if _, err := tx.ExecContext(ctx, updateUser, passwordHash, rememberToken, time.Now(), user.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM password_resets WHERE email = $1`, user.Email); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, user.ID); err != nil {
		return err
	}
	return tx.Commit()
}
