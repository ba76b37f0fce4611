package types

import "time"

// AuthToken is a server-side record of an issued bearer token. The column
// stores only the SHA-256 of the plaintext token; the plaintext exists solely
// in the response that issued it.
type AuthToken struct {
	ID        int       `db:"id"`
	UserID    int       `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	CreatedAt time.Time `db:"created_at"`
}

// PasswordReset is a pending single-use password reset request, keyed by
// email. Stores the SHA-256 of the emailed token.
type PasswordReset struct {
	Email     string    `db:"email"`
	TokenHash string    `db:"token_hash"`
	CreatedAt time.Time `db:"created_at"`
}
