package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/card-service/internal/config"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// CardExpired tells the owner that a card has been moved to the EXPIRED state
func (s *Sender) CardExpired(user *models.User, card models.CardView) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{user.Email}
	e.Subject = "Card Expired"

	body := fmt.Sprintf("Dear %s,\n\n", user.Username)
	body += fmt.Sprintf(
		"Your card %s expired on %s and can no longer be used for transfers.\n"+
			"Remaining balance: %s\n"+
			"Please contact the bank to get a replacement card.\n",
		card.MaskedNumber, card.ExpiryDate, card.Balance,
	)
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	return s.deliver(e, user.Email)
}

// TransferCompleted sends a notification about a transfer between the user's own cards
func (s *Sender) TransferCompleted(user *models.User, from, to models.CardView, amount decimal.Decimal) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{user.Email}
	e.Subject = "Transfer Notification"

	body := fmt.Sprintf("Dear %s,\n\n", user.Username)
	body += fmt.Sprintf(
		"An amount of %s has been transferred from card %s to card %s.\n"+
			"Transaction time: %s\n"+
			"Balance of %s: %s\n"+
			"Balance of %s: %s\n",
		amount.StringFixed(2), from.MaskedNumber, to.MaskedNumber,
		time.Now().Format("2006-01-02 15:04:05"),
		from.MaskedNumber, from.Balance,
		to.MaskedNumber, to.Balance,
	)
	body += "\nBest regards,\nBank Service"
	e.Text = []byte(body)

	return s.deliver(e, user.Email)
}

func (s *Sender) deliver(e *email.Email, to string) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
