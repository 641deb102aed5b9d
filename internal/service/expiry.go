package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ExpirySweeper moves cards whose expiry date has passed to EXPIRED.
// Each card commits on its own, so an interrupted sweep is finished by the next run.
type ExpirySweeper struct {
	cards    repository.CardStore
	users    repository.UserStore
	cipher   *utils.CardCipher
	notifier Notifier
	log      *logrus.Logger
	schedule string
	cron     *cron.Cron
	now      Clock
}

// NewExpirySweeper creates a sweeper running on the given cron schedule. notifier may be nil.
func NewExpirySweeper(cards repository.CardStore, users repository.UserStore, cipher *utils.CardCipher, notifier Notifier, log *logrus.Logger, schedule string) *ExpirySweeper {
	return &ExpirySweeper{
		cards:    cards,
		users:    users,
		cipher:   cipher,
		notifier: notifier,
		log:      log,
		schedule: schedule,
		now:      time.Now,
	}
}

// Start registers the sweep on the schedule and starts the scheduler.
// A run that is still going when the next one is due causes the latter to be skipped.
func (s *ExpirySweeper) Start() error {
	logger := cron.PrintfLogger(s.log)
	s.cron = cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.WithError(err).Error("Expiry sweep finished with errors")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid expiry sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.log.Infof("Expiry sweeper scheduled: %s", s.schedule)
	return nil
}

// Stop stops the scheduler. The returned context is done once a running sweep finishes.
func (s *ExpirySweeper) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

// RunOnce expires every card with expiry_date before today that is not
// EXPIRED yet and returns how many cards changed. Failures on single cards
// do not stop the sweep; they are returned joined.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	today := models.DateOf(s.now())
	cards, err := s.cards.FindExpirableCards(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to find expirable cards: %w", err)
	}

	var (
		expired int
		errs    []error
	)
	for i := range cards {
		card := &cards[i]
		changed, err := s.cards.UpdateCardStatus(ctx, card.ID, models.CardStatusExpired)
		if err != nil {
			s.log.WithError(err).WithField("card_id", card.ID).Error("Failed to expire card")
			errs = append(errs, fmt.Errorf("card %d: %w", card.ID, err))
			continue
		}
		if !changed {
			continue
		}
		expired++
		card.Status = models.CardStatusExpired
		s.log.WithFields(logrus.Fields{"card_id": card.ID, "expiry_date": card.ExpiryDate.Format(models.DateLayout)}).Info("Card expired")
		s.notify(ctx, card)
	}

	s.log.Infof("Expiry sweep complete: %d of %d cards expired", expired, len(cards))
	return expired, errors.Join(errs...)
}

func (s *ExpirySweeper) notify(ctx context.Context, card *models.Card) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.FindUserByID(ctx, card.UserID)
	if err != nil {
		s.log.WithError(err).WithField("card_id", card.ID).Warn("Failed to load card owner for notification")
		return
	}
	if user.Email == "" {
		return
	}
	view := models.NewCardView(card, s.cipher.MaskEncrypted(card.CardNumber, card.ID))
	if err := s.notifier.CardExpired(user, view); err != nil {
		s.log.WithError(err).WithField("card_id", card.ID).Warn("Failed to send expiry notification")
	}
}
