package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TxFn is executed within a database transaction
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction executes fn within a transaction. The transaction is
// committed if fn returns nil and rolled back if it returns an error or panics.
func RunInTransaction(ctx context.Context, db *sql.DB, log *logrus.Logger, fn TxFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.WithError(rbErr).WithField("panic", p).Error("Failed to roll back transaction after panic")
			} else {
				log.WithField("panic", p).Error("Rolled back transaction after panic")
			}
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).WithField("original_error", err.Error()).Error("Failed to roll back transaction")
			return fmt.Errorf("error rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		log.WithError(err).Debug("Rolled back transaction")
		return err
	}

	if err := tx.Commit(); err != nil {
		log.WithError(err).Error("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
