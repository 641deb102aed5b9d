package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Error codes returned in the "error" field
const (
	codeBadRequest        = "BAD_REQUEST"
	codeInvalidTransfer   = "INVALID_TRANSFER"
	codeUnauthenticated   = "UNAUTHENTICATED"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeConflict          = "CONFLICT"
	codeInvalidState      = "INVALID_STATE_TRANSITION"
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
	codeInternal          = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// respondError translates a service error into a response. Unexpected
// errors are logged and answered with a generic message.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		writeError(w, status, code, "Internal server error")
		return
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, codeUnauthenticated
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, models.ErrInvalidTransfer):
		return http.StatusBadRequest, codeInvalidTransfer
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, models.ErrInvalidStateTransition):
		return http.StatusConflict, codeInvalidState
	case errors.Is(err, models.ErrDuplicate):
		return http.StatusConflict, codeConflict
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, codeInsufficientFunds
	}
	return http.StatusInternalServerError, codeInternal
}
