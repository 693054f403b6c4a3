// errors.go maps PostgreSQL error codes onto the store's sentinel errors.
package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/org-management/org-service/internal/store"
)

// pgCode returns the SQLSTATE of a PostgreSQL error, or "" for anything else.
func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// mapWriteError translates registry write failures. Unique violations become
// store.ErrConflict so callers can classify them without knowing the driver.
func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch pgCode(err) {
	case pgerrcode.UniqueViolation:
		var pqErr *pq.Error
		errors.As(err, &pqErr)
		return fmt.Errorf("failed to %s: %w (constraint %s)", op, store.ErrConflict, pqErr.Constraint)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("failed to %s: %w", op, store.ErrNotFound)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
