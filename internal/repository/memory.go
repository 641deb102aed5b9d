package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/card-service/internal/models"
)

// Memory is an in-process store for local runs and tests. Writers are
// serialized; a transaction works on a copy of the card table that replaces
// the live table only when the transaction succeeds.
type Memory struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	cards   cardTable
	users   map[int64]models.User
	userSeq int64
	now     func() time.Time
}

var (
	_ CardStore = (*Memory)(nil)
	_ UserStore = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		cards: cardTable{rows: map[int64]models.Card{}},
		users: map[int64]models.User{},
		now:   time.Now,
	}
}

// Ping implements the health check
func (m *Memory) Ping(context.Context) error { return nil }

// InTx implements CardStore
func (m *Memory) InTx(ctx context.Context, fn func(tx CardStore) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	tx := &memoryTx{table: m.cards.clone(), now: m.now}
	m.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	m.cards = tx.table
	m.mu.Unlock()
	return nil
}

func (m *Memory) write(ctx context.Context, fn func(tx CardStore) error) error {
	return m.InTx(ctx, fn)
}

func (m *Memory) read(fn func(t *cardTable)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(&m.cards)
}

func (m *Memory) CreateCard(ctx context.Context, card *models.Card) error {
	return m.write(ctx, func(tx CardStore) error { return tx.CreateCard(ctx, card) })
}

func (m *Memory) UpdateCard(ctx context.Context, card *models.Card) error {
	return m.write(ctx, func(tx CardStore) error { return tx.UpdateCard(ctx, card) })
}

func (m *Memory) UpdateCardStatus(ctx context.Context, id int64, status models.CardStatus) (bool, error) {
	var changed bool
	err := m.write(ctx, func(tx CardStore) error {
		var err error
		changed, err = tx.UpdateCardStatus(ctx, id, status)
		return err
	})
	return changed, err
}

func (m *Memory) DeleteCard(ctx context.Context, id int64) error {
	return m.write(ctx, func(tx CardStore) error { return tx.DeleteCard(ctx, id) })
}

func (m *Memory) FindCardByID(_ context.Context, id int64) (card *models.Card, err error) {
	m.read(func(t *cardTable) { card, err = t.find(id) })
	return card, err
}

// FindCardByIDForUpdate outside a transaction behaves like FindCardByID
func (m *Memory) FindCardByIDForUpdate(ctx context.Context, id int64) (*models.Card, error) {
	return m.FindCardByID(ctx, id)
}

func (m *Memory) FindCardsByOwner(_ context.Context, userID int64, filter models.CardFilter, page models.PageRequest) (cards []models.Card, total int64, err error) {
	m.read(func(t *cardTable) { cards, total = t.byOwner(userID, filter, page) })
	return cards, total, nil
}

func (m *Memory) ExistsByCardNumber(_ context.Context, encryptedNumber string) (exists bool, err error) {
	m.read(func(t *cardTable) { exists = t.numberExists(encryptedNumber) })
	return exists, nil
}

func (m *Memory) FindExpirableCards(_ context.Context, today time.Time) (cards []models.Card, err error) {
	m.read(func(t *cardTable) { cards = t.expirable(today) })
	return cards, nil
}

// CreateUser implements UserStore
func (m *Memory) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return fmt.Errorf("failed to create user: %w", models.ErrUsernameExists)
		}
	}
	m.userSeq++
	user.ID = m.userSeq
	user.CreatedAt = m.now()
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) FindUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *Memory) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.FindUserByUsername(ctx, username)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// memoryTx operates on a private copy of the card table
type memoryTx struct {
	table cardTable
	now   func() time.Time
}

func (tx *memoryTx) InTx(_ context.Context, fn func(tx CardStore) error) error {
	return fn(tx)
}

func (tx *memoryTx) CreateCard(_ context.Context, card *models.Card) error {
	if tx.table.numberExists(card.CardNumber) {
		return fmt.Errorf("failed to create card: %w", models.ErrCardNumberUsed)
	}
	tx.table.seq++
	card.ID = tx.table.seq
	card.CreatedAt = tx.now()
	card.UpdatedAt = card.CreatedAt
	tx.table.rows[card.ID] = *card
	return nil
}

func (tx *memoryTx) UpdateCard(_ context.Context, card *models.Card) error {
	stored, ok := tx.table.rows[card.ID]
	if !ok {
		return models.ErrCardNotFound
	}
	if card.Balance.IsNegative() {
		return fmt.Errorf("%w: check constraint violation (cards_balance_check)", models.ErrInvalidInput)
	}
	stored.Balance = card.Balance
	stored.Status = card.Status
	stored.UpdatedAt = tx.now()
	tx.table.rows[card.ID] = stored
	return nil
}

func (tx *memoryTx) UpdateCardStatus(_ context.Context, id int64, status models.CardStatus) (bool, error) {
	stored, ok := tx.table.rows[id]
	if !ok || stored.Status == status {
		return false, nil
	}
	stored.Status = status
	stored.UpdatedAt = tx.now()
	tx.table.rows[id] = stored
	return true, nil
}

func (tx *memoryTx) FindCardByID(_ context.Context, id int64) (*models.Card, error) {
	return tx.table.find(id)
}

func (tx *memoryTx) FindCardByIDForUpdate(_ context.Context, id int64) (*models.Card, error) {
	return tx.table.find(id)
}

func (tx *memoryTx) DeleteCard(_ context.Context, id int64) error {
	if _, ok := tx.table.rows[id]; !ok {
		return models.ErrCardNotFound
	}
	delete(tx.table.rows, id)
	return nil
}

func (tx *memoryTx) FindCardsByOwner(_ context.Context, userID int64, filter models.CardFilter, page models.PageRequest) ([]models.Card, int64, error) {
	cards, total := tx.table.byOwner(userID, filter, page)
	return cards, total, nil
}

func (tx *memoryTx) ExistsByCardNumber(_ context.Context, encryptedNumber string) (bool, error) {
	return tx.table.numberExists(encryptedNumber), nil
}

func (tx *memoryTx) FindExpirableCards(_ context.Context, today time.Time) ([]models.Card, error) {
	return tx.table.expirable(today), nil
}

type cardTable struct {
	rows map[int64]models.Card
	seq  int64
}

func (t cardTable) clone() cardTable {
	rows := make(map[int64]models.Card, len(t.rows))
	for id, c := range t.rows {
		rows[id] = c
	}
	return cardTable{rows: rows, seq: t.seq}
}

func (t *cardTable) find(id int64) (*models.Card, error) {
	c, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", models.ErrCardNotFound, id)
	}
	return &c, nil
}

func (t *cardTable) numberExists(encryptedNumber string) bool {
	for _, c := range t.rows {
		if c.CardNumber == encryptedNumber {
			return true
		}
	}
	return false
}

func (t *cardTable) sorted(keep func(c models.Card) bool) []models.Card {
	out := []models.Card{}
	for _, c := range t.rows {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *cardTable) byOwner(userID int64, filter models.CardFilter, page models.PageRequest) ([]models.Card, int64) {
	page = page.Normalize()
	name := strings.ToLower(filter.OwnerName)
	matches := t.sorted(func(c models.Card) bool {
		if c.UserID != userID {
			return false
		}
		if name != "" && !strings.Contains(strings.ToLower(c.OwnerName), name) {
			return false
		}
		return filter.Status == "" || c.Status == filter.Status
	})

	total := int64(len(matches))
	start := page.Offset()
	if start >= len(matches) {
		return []models.Card{}, total
	}
	end := start + page.Size
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total
}

func (t *cardTable) expirable(today time.Time) []models.Card {
	return t.sorted(func(c models.Card) bool {
		return c.IsPastExpiry(today) && c.Status != models.CardStatusExpired
	})
}
