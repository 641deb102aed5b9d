package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// ParseCardStatus accepts a status name in any letter case
func ParseCardStatus(s string) (CardStatus, error) {
	switch status := CardStatus(strings.ToUpper(strings.TrimSpace(s))); status {
	case CardStatusActive, CardStatusBlocked, CardStatusExpired:
		return status, nil
	}
	return "", ErrInvalidInput
}

// Card represents a bank card as it is persisted.
// CardNumber always holds ciphertext.
type Card struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	CardNumber string          `json:"-"`
	OwnerName  string          `json:"owner_name"`
	ExpiryDate time.Time       `json:"expiry_date"`
	Balance    decimal.Decimal `json:"balance"`
	Status     CardStatus      `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OwnedBy reports whether the card belongs to the given user
func (c *Card) OwnedBy(user *User) bool {
	return c != nil && user != nil && c.UserID == user.ID
}

// IsPastExpiry reports whether the expiry date lies strictly before today
func (c *Card) IsPastExpiry(today time.Time) bool {
	return DateOf(c.ExpiryDate).Before(DateOf(today))
}

// CardView is a card prepared for display: the number is masked
type CardView struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	MaskedNumber string     `json:"card_number"`
	OwnerName    string     `json:"owner_name"`
	ExpiryDate   string     `json:"expiry_date"` // Format: YYYY-MM-DD
	Balance      string     `json:"balance"`
	Status       CardStatus `json:"status"`
}

// NewCardView copies display fields of a card; the masked number is supplied by the caller
func NewCardView(card *Card, maskedNumber string) CardView {
	return CardView{
		ID:           card.ID,
		UserID:       card.UserID,
		MaskedNumber: maskedNumber,
		OwnerName:    card.OwnerName,
		ExpiryDate:   card.ExpiryDate.Format(DateLayout),
		Balance:      card.Balance.StringFixed(2),
		Status:       card.Status,
	}
}

// CardFilter narrows a card listing. Empty fields do not filter.
type CardFilter struct {
	OwnerName string
	Status    CardStatus
}

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// DateOf truncates t to midnight UTC of its calendar date
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TransitionTo validates a status change. It reports false without error when
// the card is already in the target state. EXPIRED is terminal.
func (s CardStatus) TransitionTo(target CardStatus) (bool, error) {
	if s == target {
		return false, nil
	}
	switch {
	case s == CardStatusExpired:
		return false, fmt.Errorf("%w: card is %s", ErrInvalidStateTransition, s)
	case target == CardStatusExpired,
		s == CardStatusActive && target == CardStatusBlocked,
		s == CardStatusBlocked && target == CardStatusActive:
		return true, nil
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s, target)
}
