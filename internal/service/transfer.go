package service

import (
	"context"
	"fmt"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TransferService moves funds between two cards of the same user
type TransferService struct {
	cards    repository.CardStore
	cipher   *utils.CardCipher
	notifier Notifier
	log      *logrus.Logger
}

// NewTransferService initializes a new transfer service. notifier may be nil.
func NewTransferService(cards repository.CardStore, cipher *utils.CardCipher, notifier Notifier, log *logrus.Logger) *TransferService {
	return &TransferService{cards: cards, cipher: cipher, notifier: notifier, log: log}
}

// TransferResult reports both cards after a completed transfer
type TransferResult struct {
	From   models.CardView `json:"from_card"`
	To     models.CardView `json:"to_card"`
	Amount string          `json:"amount"`
}

// Transfer debits fromID and credits toID by amount. Checks run in a fixed
// order and the first failure is returned:
//
//  1. the cards differ
//  2. both cards exist
//  3. the user owns the source, then the destination
//  4. the source is ACTIVE
//  5. the destination is ACTIVE
//  6. amount is positive with at most two decimal places
//  7. the source balance covers amount
//
// Checks 2-7 and both writes run in one transaction holding row locks on
// both cards, so a failed transfer leaves both balances unchanged.
func (s *TransferService) Transfer(ctx context.Context, user *models.User, fromID, toID int64, amount decimal.Decimal) (*TransferResult, error) {
	if fromID == toID {
		return nil, models.ErrSameCard
	}

	var from, to *models.Card
	err := s.cards.InTx(ctx, func(tx repository.CardStore) error {
		var err error
		from, to, err = lockPair(ctx, tx, fromID, toID)
		if err != nil {
			return err
		}

		if !ValidateOwnership(from, user) || !ValidateOwnership(to, user) {
			return models.ErrNotOwner
		}
		if from.Status != models.CardStatusActive {
			return models.ErrSourceInactive
		}
		if to.Status != models.CardStatusActive {
			return models.ErrDestinationInactive
		}
		if !amount.IsPositive() {
			return models.ErrNonPositiveAmount
		}
		if !amount.Equal(amount.Truncate(moneyScale)) {
			return models.ErrAmountPrecision
		}
		if from.Balance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", models.ErrInsufficientFunds,
				from.Balance.StringFixed(moneyScale), amount.StringFixed(moneyScale))
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)

		if err := tx.UpdateCard(ctx, from); err != nil {
			return fmt.Errorf("failed to debit card %d: %w", from.ID, err)
		}
		if err := tx.UpdateCard(ctx, to); err != nil {
			return fmt.Errorf("failed to credit card %d: %w", to.ID, err)
		}
		return nil
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":      user.ID,
			"from_card_id": fromID,
			"to_card_id":   toID,
		}).WithError(err).Warn("Transfer rejected")
		return nil, err
	}

	result := &TransferResult{
		From:   models.NewCardView(from, s.cipher.MaskEncrypted(from.CardNumber, from.ID)),
		To:     models.NewCardView(to, s.cipher.MaskEncrypted(to.CardNumber, to.ID)),
		Amount: amount.StringFixed(moneyScale),
	}

	s.log.WithFields(logrus.Fields{
		"user_id":      user.ID,
		"from_card_id": fromID,
		"to_card_id":   toID,
		"amount":       result.Amount,
	}).Info("Transfer completed")

	s.notify(user, result, amount)
	return result, nil
}

// lockPair loads both cards under a row lock. Locks are taken in ascending
// id order so that two transfers over the same pair cannot deadlock.
func lockPair(ctx context.Context, tx repository.CardStore, fromID, toID int64) (from, to *models.Card, err error) {
	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}

	locked := make(map[int64]*models.Card, 2)
	for _, id := range []int64{first, second} {
		card, err := tx.FindCardByIDForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		locked[id] = card
	}
	return locked[fromID], locked[toID], nil
}

func (s *TransferService) notify(user *models.User, result *TransferResult, amount decimal.Decimal) {
	if s.notifier == nil || user.Email == "" {
		return
	}
	if err := s.notifier.TransferCompleted(user, result.From, result.To, amount); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("Failed to send transfer notification")
	}
}
