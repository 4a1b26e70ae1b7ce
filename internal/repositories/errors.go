package repositories

import (
	"errors"

	"github.com/lib/pq"

	"chat-realtime/internal/errs"
)

var (
	ErrFriendshipNotFound = errs.E(errs.ErrNotFound, "friendship not found")
	ErrFriendshipExists   = errs.E(errs.ErrConflict, "friendship already exists")
	ErrInvalidCursor      = errs.E(errs.ErrInvalidInput, "invalid cursor")
)

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
