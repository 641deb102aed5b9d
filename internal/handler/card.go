package handler

import (
	"net/http"
	"strconv"

	"github.com/Dan9191/card-service/internal/middleware"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Health reports whether the service can reach its store
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.WithError(err).Error("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListCards returns a page of the caller's cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "page must be a number")
		return
	}
	size, err := queryInt(q.Get("size"), models.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "size must be a number")
		return
	}

	filter := models.CardFilter{OwnerName: q.Get("ownerName")}
	if s := q.Get("status"); s != "" {
		status, err := models.ParseCardStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "status must be one of ACTIVE, BLOCKED, EXPIRED")
			return
		}
		filter.Status = status
	}

	result, err := h.cards.ListUserCards(r.Context(), user, filter, models.PageRequest{Page: page, Size: size})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetCard returns one of the caller's cards
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := cardID(w, r)
	if !ok {
		return
	}

	card, err := h.cards.GetOwnedCard(r.Context(), user, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// RequestBlock blocks one of the caller's cards
func (h *Handler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := cardID(w, r)
	if !ok {
		return
	}

	card, err := h.cards.RequestBlock(r.Context(), user, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// Transfer moves funds between two of the caller's cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.transfers.Transfer(r.Context(), user, req.FromCardID, req.ToCardID, *req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// IssueCard creates a card for a user
func (h *Handler) IssueCard(w http.ResponseWriter, r *http.Request) {
	var req IssueCardRequest
	if !h.decode(w, r, &req) {
		return
	}

	card, err := h.cards.IssueCard(r.Context(), service.IssueCardInput{
		UserID:    req.UserID,
		OwnerName: req.OwnerName,
		Balance:   req.Balance,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// DeleteCard removes a card
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	if err := h.cards.DeleteCard(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BlockCard blocks any card
func (h *Handler) BlockCard(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	card, err := h.cards.Block(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ActivateCard re-activates a blocked card
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	card, err := h.cards.Activate(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// TopUpCard adds the amount query parameter to a card's balance
func (h *Handler) TopUpCard(w http.ResponseWriter, r *http.Request) {
	id, ok := cardID(w, r)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "amount must be a decimal number")
		return
	}

	card, err := h.cards.TopUp(r.Context(), id, amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "Unauthorized")
	}
	return user, ok
}

func cardID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid card id")
		return 0, false
	}
	return id, true
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
