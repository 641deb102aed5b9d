package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/card-service/internal/config"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	cardNumberLength      = 16
	maxCardNumberAttempts  = 5
	maxOwnerNameLength    = 100
)

// CardService owns card records: creation, status transitions, balance
// mutation and display. Stored numbers are always encrypted and numbers
// leaving the service are always masked.
type CardService struct {
	cards         repository.CardStore
	users         repository.UserStore
	cipher        *utils.CardCipher
	log           *logrus.Logger
	numberPrefix  string
	validityYears int
	now           Clock
}

// NewCardService initializes a new card service
func NewCardService(cards repository.CardStore, users repository.UserStore, cipher *utils.CardCipher, log *logrus.Logger, cfg *config.Config) *CardService {
	return &CardService{
		cards:         cards,
		users:         users,
		cipher:        cipher,
		log:           log,
		numberPrefix:  cfg.CardNumberPrefix,
		validityYears: cfg.CardValidityYears,
		now:           time.Now,
	}
}

// NewCard describes a card to persist. Number is plaintext.
type NewCard struct {
	UserID     int64
	Number     string
	OwnerName  string
	ExpiryDate time.Time
	Balance    decimal.Decimal
}

// IssueCardInput is the administrative card creation request
type IssueCardInput struct {
	UserID    int64
	OwnerName string
	Balance   *decimal.Decimal // nil means zero
}

// IssueCard creates a card for an existing user with a generated number and
// an expiry date validityYears from today. A generated number that collides
// with a stored one is regenerated.
func (s *CardService) IssueCard(ctx context.Context, in IssueCardInput) (models.CardView, error) {
	if _, err := s.users.FindUserByID(ctx, in.UserID); err != nil {
		return models.CardView{}, err
	}

	balance := decimal.Zero
	if in.Balance != nil {
		balance = *in.Balance
	}
	expiry := utils.GenerateExpiryDate(s.now(), s.validityYears)

	for attempt := 1; attempt <= maxCardNumberAttempts; attempt++ {
		number, err := utils.GenerateCardNumber(s.numberPrefix, cardNumberLength)
		if err != nil {
			return models.CardView{}, fmt.Errorf("failed to generate card number: %w", err)
		}

		view, err := s.CreateCard(ctx, NewCard{
			UserID:     in.UserID,
			Number:     number,
			OwnerName:  in.OwnerName,
			ExpiryDate: expiry,
			Balance:    balance,
		})
		if errors.Is(err, models.ErrCardNumberUsed) {
			s.log.WithField("attempt", attempt).Warn("Generated card number already in use, retrying")
			continue
		}
		return view, err
	}
	return models.CardView{}, fmt.Errorf("failed to issue card after %d attempts: %w", maxCardNumberAttempts, models.ErrCardNumberUsed)
}

// CreateCard encrypts the number and persists the card. The card starts
// ACTIVE, or EXPIRED when its expiry date is already in the past.
func (s *CardService) CreateCard(ctx context.Context, in NewCard) (models.CardView, error) {
	in.OwnerName = strings.TrimSpace(in.OwnerName)
	if in.OwnerName == "" || len(in.OwnerName) > maxOwnerNameLength {
		return models.CardView{}, fmt.Errorf("%w: owner name must be 1-%d characters", models.ErrInvalidInput, maxOwnerNameLength)
	}
	if in.Balance.IsNegative() {
		return models.CardView{}, fmt.Errorf("%w: balance must not be negative", models.ErrInvalidInput)
	}
	if err := checkMoneyScale(in.Balance); err != nil {
		return models.CardView{}, err
	}

	encrypted, err := s.cipher.Encrypt(in.Number)
	if err != nil {
		return models.CardView{}, err
	}
	exists, err := s.cards.ExistsByCardNumber(ctx, encrypted)
	if err != nil {
		return models.CardView{}, err
	}
	if exists {
		return models.CardView{}, models.ErrCardNumberUsed
	}

	card := &models.Card{
		UserID:     in.UserID,
		CardNumber: encrypted,
		OwnerName:  in.OwnerName,
		ExpiryDate: models.DateOf(in.ExpiryDate),
		Balance:    in.Balance,
		Status:     models.CardStatusActive,
	}
	if card.IsPastExpiry(s.now()) {
		card.Status = models.CardStatusExpired
	}

	if err := s.cards.CreateCard(ctx, card); err != nil {
		return models.CardView{}, err
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "user_id": card.UserID, "status": card.Status}).Info("Card created")
	return models.NewCardView(card, utils.MaskCardNumber(in.Number)), nil
}

// GetCard returns the stored card. Its number is ciphertext.
func (s *CardService) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	return s.cards.FindCardByID(ctx, id)
}

// GetCardMasked returns a card prepared for display
func (s *CardService) GetCardMasked(ctx context.Context, id int64) (models.CardView, error) {
	card, err := s.cards.FindCardByID(ctx, id)
	if err != nil {
		return models.CardView{}, err
	}
	return s.View(card), nil
}

// GetOwnedCard returns a card for display after checking it belongs to user
func (s *CardService) GetOwnedCard(ctx context.Context, user *models.User, id int64) (models.CardView, error) {
	card, err := s.cards.FindCardByID(ctx, id)
	if err != nil {
		return models.CardView{}, err
	}
	if err := requireOwner(card, user); err != nil {
		return models.CardView{}, err
	}
	return s.View(card), nil
}

// View masks a stored card for display
func (s *CardService) View(card *models.Card) models.CardView {
	return models.NewCardView(card, s.cipher.MaskEncrypted(card.CardNumber, card.ID))
}

// ListUserCards returns one page of the user's cards, optionally filtered by
// owner name substring (case-insensitive) and status
func (s *CardService) ListUserCards(ctx context.Context, user *models.User, filter models.CardFilter, page models.PageRequest) (models.CardPage, error) {
	page = page.Normalize()
	cards, total, err := s.cards.FindCardsByOwner(ctx, user.ID, filter, page)
	if err != nil {
		return models.CardPage{}, err
	}

	items := make([]models.CardView, 0, len(cards))
	for i := range cards {
		items = append(items, s.View(&cards[i]))
	}
	return models.CardPage{Items: items, Meta: models.NewPageMeta(page, total)}, nil
}

// UpdateBalance overwrites the balance. Callers check invariants first.
func (s *CardService) UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal) (models.CardView, error) {
	var updated *models.Card
	err := s.cards.InTx(ctx, func(tx repository.CardStore) error {
		card, err := tx.FindCardByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		card.Balance = newBalance
		if err := tx.UpdateCard(ctx, card); err != nil {
			return err
		}
		updated = card
		return nil
	})
	if err != nil {
		return models.CardView{}, err
	}

	s.log.WithField("card_id", id).Info("Card balance updated")
	return s.View(updated), nil
}

// TopUp adds amount to the balance. Negative amounts are allowed as long as
// the balance stays non-negative.
func (s *CardService) TopUp(ctx context.Context, id int64, amount decimal.Decimal) (models.CardView, error) {
	if amount.IsZero() {
		return models.CardView{}, fmt.Errorf("%w: amount must not be zero", models.ErrInvalidInput)
	}
	if err := checkMoneyScale(amount); err != nil {
		return models.CardView{}, err
	}

	var updated *models.Card
	err := s.cards.InTx(ctx, func(tx repository.CardStore) error {
		card, err := tx.FindCardByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		newBalance := card.Balance.Add(amount)
		if newBalance.IsNegative() {
			return models.ErrInsufficientFunds
		}
		card.Balance = newBalance
		if err := tx.UpdateCard(ctx, card); err != nil {
			return err
		}
		updated = card
		return nil
	})
	if err != nil {
		return models.CardView{}, err
	}

	s.log.WithFields(logrus.Fields{"card_id": id, "amount": amount.StringFixed(moneyScale)}).Info("Card balance topped up")
	return s.View(updated), nil
}

// Block moves an ACTIVE card to BLOCKED
func (s *CardService) Block(ctx context.Context, id int64) (models.CardView, error) {
	return s.transition(ctx, nil, id, models.CardStatusBlocked)
}

// Activate moves a BLOCKED card back to ACTIVE
func (s *CardService) Activate(ctx context.Context, id int64) (models.CardView, error) {
	return s.transition(ctx, nil, id, models.CardStatusActive)
}

// RequestBlock blocks a card on behalf of its owner
func (s *CardService) RequestBlock(ctx context.Context, user *models.User, id int64) (models.CardView, error) {
	return s.transition(ctx, user, id, models.CardStatusBlocked)
}

// transition applies a status change under a row lock. A non-nil actor must own the card.
func (s *CardService) transition(ctx context.Context, actor *models.User, id int64, target models.CardStatus) (models.CardView, error) {
	var (
		result  *models.Card
		changed bool
	)
	err := s.cards.InTx(ctx, func(tx repository.CardStore) error {
		card, err := tx.FindCardByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor != nil {
			if err := requireOwner(card, actor); err != nil {
				return err
			}
		}
		changed, err = card.Status.TransitionTo(target)
		if err != nil {
			return err
		}
		result = card
		if !changed {
			return nil
		}
		card.Status = target
		return tx.UpdateCard(ctx, card)
	})
	if err != nil {
		return models.CardView{}, err
	}

	if changed {
		s.log.WithFields(logrus.Fields{"card_id": id, "status": target}).Info("Card status changed")
	}
	return s.View(result), nil
}

// DeleteCard removes a card permanently
func (s *CardService) DeleteCard(ctx context.Context, id int64) error {
	if err := s.cards.DeleteCard(ctx, id); err != nil {
		return err
	}
	s.log.WithField("card_id", id).Info("Card deleted")
	return nil
}
