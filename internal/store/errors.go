package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint is violated,
// currently only the case-insensitive unique index on users.email.
var ErrConflict = errors.New("conflict")

const pqUniqueViolation = "23505"

// conflictOr maps Postgres unique-violation errors to ErrConflict and
// passes everything else through.
func conflictOr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return ErrConflict
	}
	return err
}
