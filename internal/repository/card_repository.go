package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/card-service/internal/models"
)

const cardColumns = `id, user_id, card_number, owner_name, expiry_date, balance, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	card := &models.Card{}
	err := row.Scan(&card.ID, &card.UserID, &card.CardNumber, &card.OwnerName, &card.ExpiryDate,
		&card.Balance, &card.Status, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return card, nil
}

// CreateCard inserts a card. The card number must already be encrypted.
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	query := `
		INSERT INTO bank.cards (user_id, card_number, owner_name, expiry_date, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, card.UserID, card.CardNumber, card.OwnerName,
		card.ExpiryDate, card.Balance, card.Status).
		Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", mapError(err, models.ErrCardNotFound, models.ErrCardNumberUsed))
	}
	return nil
}

// UpdateCard writes balance and status of an existing card
func (r *Repository) UpdateCard(ctx context.Context, card *models.Card) error {
	query := `
		UPDATE bank.cards
		SET balance = $1, status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`
	res, err := r.q.ExecContext(ctx, query, card.Balance, card.Status, card.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", card.ID, mapError(err, models.ErrCardNotFound, models.ErrDuplicate))
	}
	return checkRowsAffected(res, models.ErrCardNotFound)
}

// UpdateCardStatus moves a card into status unless it is already there
func (r *Repository) UpdateCardStatus(ctx context.Context, id int64, status models.CardStatus) (bool, error) {
	query := `
		UPDATE bank.cards
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status <> $1`
	res, err := r.q.ExecContext(ctx, query, status, id)
	if err != nil {
		return false, fmt.Errorf("failed to update status of card %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindCardByID retrieves a card by id
func (r *Repository) FindCardByID(ctx context.Context, id int64) (*models.Card, error) {
	return r.findCard(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1`, id)
}

// FindCardByIDForUpdate retrieves a card by id and locks its row
func (r *Repository) FindCardByIDForUpdate(ctx context.Context, id int64) (*models.Card, error) {
	return r.findCard(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) findCard(ctx context.Context, query string, id int64) (*models.Card, error) {
	card, err := scanCard(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		mapped := mapError(err, models.ErrCardNotFound, models.ErrDuplicate)
		if errors.Is(mapped, models.ErrCardNotFound) {
			return nil, fmt.Errorf("%w: id %d", models.ErrCardNotFound, id)
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, mapped)
	}
	return card, nil
}

// DeleteCard removes a card
func (r *Repository) DeleteCard(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bank.cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %d: %w", id, err)
	}
	return checkRowsAffected(res, models.ErrCardNotFound)
}

// FindCardsByOwner returns one page of the user's cards and the total number of matches
func (r *Repository) FindCardsByOwner(ctx context.Context, userID int64, filter models.CardFilter, page models.PageRequest) ([]models.Card, int64, error) {
	page = page.Normalize()

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	if filter.OwnerName != "" {
		args = append(args, "%"+escapeLike(filter.OwnerName)+"%")
		conditions = append(conditions, fmt.Sprintf("owner_name ILIKE $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.cards WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cards: %w", err)
	}
	if total == 0 {
		return []models.Card{}, 0, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM bank.cards WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		cardColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	cards, err := r.queryCards(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// ExistsByCardNumber checks whether an encrypted card number is already stored
func (r *Repository) ExistsByCardNumber(ctx context.Context, encryptedNumber string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bank.cards WHERE card_number = $1)`, encryptedNumber).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check card number: %w", err)
	}
	return exists, nil
}

// FindExpirableCards lists cards past their expiry date that are not yet EXPIRED
func (r *Repository) FindExpirableCards(ctx context.Context, today time.Time) ([]models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM bank.cards WHERE expiry_date < $1 AND status <> $2 ORDER BY id`
	return r.queryCards(ctx, query, models.DateOf(today), models.CardStatusExpired)
}

func (r *Repository) queryCards(ctx context.Context, query string, args ...any) ([]models.Card, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return cards, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
