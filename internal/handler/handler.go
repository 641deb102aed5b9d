package handler

import (
	"context"

	"github.com/Dan9191/card-service/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Pinger reports whether the storage backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the HTTP API
type Handler struct {
	auth      *service.AuthService
	cards     *service.CardService
	transfers *service.TransferService
	store     Pinger
	log       *logrus.Logger
	validator *validator.Validate
}

// NewHandler initializes the HTTP handlers
func NewHandler(auth *service.AuthService, cards *service.CardService, transfers *service.TransferService, store Pinger, log *logrus.Logger) *Handler {
	return &Handler{
		auth:      auth,
		cards:     cards,
		transfers: transfers,
		store:     store,
		log:       log,
		validator: validator.New(),
	}
}
