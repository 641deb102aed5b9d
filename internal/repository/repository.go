package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/sirupsen/logrus"
)

// CardStore persists card records. Implementations must make every method
// called inside InTx part of one atomic unit.
type CardStore interface {
	CreateCard(ctx context.Context, card *models.Card) error
	// UpdateCard overwrites balance and status
	UpdateCard(ctx context.Context, card *models.Card) error
	// UpdateCardStatus sets the status unless the card already has it and
	// reports whether a row changed
	UpdateCardStatus(ctx context.Context, id int64, status models.CardStatus) (bool, error)
	FindCardByID(ctx context.Context, id int64) (*models.Card, error)
	// FindCardByIDForUpdate locks the row until the surrounding transaction ends
	FindCardByIDForUpdate(ctx context.Context, id int64) (*models.Card, error)
	DeleteCard(ctx context.Context, id int64) error
	FindCardsByOwner(ctx context.Context, userID int64, filter models.CardFilter, page models.PageRequest) ([]models.Card, int64, error)
	ExistsByCardNumber(ctx context.Context, encryptedNumber string) (bool, error)
	// FindExpirableCards returns cards with expiry_date < today that are not EXPIRED yet
	FindExpirableCards(ctx context.Context, today time.Time) ([]models.Card, error)
	// InTx runs fn inside a transaction. fn must only use the store it receives.
	InTx(ctx context.Context, fn func(tx CardStore) error) error
}

// UserStore persists users
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id int64) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// DBTX is implemented by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides PostgreSQL database operations
type Repository struct {
	db  *sql.DB // nil when bound to a transaction
	q   DBTX
	log *logrus.Logger
}

var (
	_ CardStore = (*Repository)(nil)
	_ UserStore = (*Repository)(nil)
)

// NewRepository initializes a new repository
func NewRepository(db *sql.DB, log *logrus.Logger) *Repository {
	return &Repository{db: db, q: db, log: log}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx, log: r.log}
}

// InTx implements CardStore. A repository already bound to a transaction
// runs fn in that transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx CardStore) error) error {
	if r.db == nil {
		return fn(r)
	}
	return RunInTransaction(ctx, r.db, r.log, func(ctx context.Context, tx *sql.Tx) error {
		return fn(r.WithTx(tx))
	})
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}
