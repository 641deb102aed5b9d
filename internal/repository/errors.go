package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/lib/pq"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
)

// mapError translates driver errors into model errors. notFound and duplicate
// are returned for missing rows and unique violations respectively.
func mapError(err error, notFound, duplicate error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w (%s)", duplicate, pqErr.Constraint)
		case foreignKeyViolationCode:
			return fmt.Errorf("%w: foreign key violation (%s)", models.ErrInvalidInput, pqErr.Constraint)
		case checkViolationCode:
			return fmt.Errorf("%w: check constraint violation (%s)", models.ErrInvalidInput, pqErr.Constraint)
		}
	}
	return err
}

// checkRowsAffected returns notFound when an UPDATE or DELETE matched nothing
func checkRowsAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
