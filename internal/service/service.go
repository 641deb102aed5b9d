package service

import (
	"fmt"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/shopspring/decimal"
)

// Notifier delivers messages to card owners. Implementations are best effort:
// callers log failures and never fail the operation because of them.
type Notifier interface {
	CardExpired(user *models.User, card models.CardView) error
	TransferCompleted(user *models.User, from, to models.CardView, amount decimal.Decimal) error
}

// Clock returns the current time
type Clock func() time.Time

// moneyScale is the number of fractional digits balances are kept at
const moneyScale = 2

// checkMoneyScale rejects amounts that cannot be stored without rounding
func checkMoneyScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(moneyScale)) {
		return fmt.Errorf("%w: amount has more than %d decimal places", models.ErrInvalidInput, moneyScale)
	}
	return nil
}

// ValidateOwnership reports whether the card belongs to the user
func ValidateOwnership(card *models.Card, user *models.User) bool {
	return card.OwnedBy(user)
}

func requireOwner(card *models.Card, user *models.User) error {
	if !ValidateOwnership(card, user) {
		return fmt.Errorf("%w: card %d does not belong to the current user", models.ErrForbidden, card.ID)
	}
	return nil
}
