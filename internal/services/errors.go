package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Business errors. Handlers map them to HTTP statuses with errors.Is.
// Field-level input failures are returned as utils.ValidationErrors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrEmptyCart       = errors.New("cart has no bookable items")
	ErrConflict        = errors.New("conflicting concurrent update")
	ErrMediaDisabled   = errors.New("media storage is not configured")
)

func newID() string {
	return uuid.New().String()
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY failure
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
