package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes inspected by repositories.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// PgError unwraps err into a *pgconn.PgError when possible.
func PgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraint is non-empty the violated constraint name must match.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, CodeUniqueViolation, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKeyViolation, "")
}

// IsCheckViolation reports whether err violates the named CHECK constraint.
func IsCheckViolation(err error, constraint string) bool {
	return hasCode(err, CodeCheckViolation, constraint)
}

// IsRetryable reports serialization failures and deadlocks.
func IsRetryable(err error) bool {
	pgErr, ok := PgError(err)
	if !ok {
		return false
	}
	return pgErr.Code == CodeSerializationFailure || pgErr.Code == CodeDeadlockDetected
}

func hasCode(err error, code, constraint string) bool {
	pgErr, ok := PgError(err)
	if !ok || pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
