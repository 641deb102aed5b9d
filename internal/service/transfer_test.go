package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTransfer_MovesFundsBetweenOwnCards(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	from := env.activeCard(t, anna, "4000001111111111", "1000.00")
	to := env.activeCard(t, anna, "4000002222222222", "500.00")

	result, err := env.transfers.Transfer(context.Background(), anna, from.ID, to.ID, amount("200.00"))
	require.NoError(t, err)

	assert.Equal(t, "800.00", env.balance(t, from.ID))
	assert.Equal(t, "700.00", env.balance(t, to.ID))
	assert.Equal(t, "800.00", result.From.Balance)
	assert.Equal(t, "700.00", result.To.Balance)
	assert.Equal(t, "200.00", result.Amount)
	assert.Equal(t, "**** **** **** 1111", result.From.MaskedNumber)
	assert.Equal(t, "**** **** **** 2222", result.To.MaskedNumber)

	require.Len(t, env.notifier.transfers, 1)
	assert.Equal(t, "anna", env.notifier.transfers[0].user)
	assert.Equal(t, "200.00", env.notifier.transfers[0].amount)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	from := env.activeCard(t, anna, "4000001111111111", "100.00")
	to := env.activeCard(t, anna, "4000002222222222", "500.00")

	_, err := env.transfers.Transfer(context.Background(), anna, from.ID, to.ID, amount("200.00"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.NotErrorIs(t, err, models.ErrInvalidTransfer)

	assert.Equal(t, "100.00", env.balance(t, from.ID))
	assert.Equal(t, "500.00", env.balance(t, to.ID))
	assert.Empty(t, env.notifier.transfers)
}

func TestTransfer_DifferentOwners(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	boris := env.user(t, "boris")
	from := env.activeCard(t, anna, "4000001111111111", "1000.00")
	to := env.activeCard(t, boris, "4000002222222222", "500.00")

	_, err := env.transfers.Transfer(context.Background(), anna, from.ID, to.ID, amount("200.00"))
	assert.ErrorIs(t, err, models.ErrNotOwner)
	assert.ErrorIs(t, err, models.ErrInvalidTransfer)

	assert.Equal(t, "1000.00", env.balance(t, from.ID))
	assert.Equal(t, "500.00", env.balance(t, to.ID))
}

func TestTransfer_ValidationOrder(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	boris := env.user(t, "boris")
	expiry := testNow.AddDate(1, 0, 0)

	active := env.activeCard(t, anna, "4000000000000001", "100.00")
	active2 := env.activeCard(t, anna, "4000000000000002", "100.00")
	blocked := env.card(t, anna, "4000000000000003", "100.00", models.CardStatusBlocked, expiry)
	blocked2 := env.card(t, anna, "4000000000000004", "100.00", models.CardStatusBlocked, expiry)
	expired := env.card(t, anna, "4000000000000005", "100.00", models.CardStatusExpired, testNow.AddDate(0, 0, -1))
	foreignBlocked := env.card(t, boris, "4000000000000006", "100.00", models.CardStatusBlocked, expiry)
	const missing = int64(999)

	tests := []struct {
		name     string
		from, to int64
		amount   string
		want     error
	}{
		{"same card wins over everything", missing, missing, "-1", models.ErrSameCard},
		{"missing card before ownership", missing, foreignBlocked.ID, "-1", models.ErrCardNotFound},
		{"missing destination", active.ID, missing, "1", models.ErrCardNotFound},
		{"ownership before status", blocked.ID, foreignBlocked.ID, "-1", models.ErrNotOwner},
		{"source owner checked first", foreignBlocked.ID, active.ID, "1", models.ErrNotOwner},
		{"source status before destination status", blocked.ID, blocked2.ID, "-1", models.ErrSourceInactive},
		{"expired source", expired.ID, active.ID, "1", models.ErrSourceInactive},
		{"destination status before amount", active.ID, blocked.ID, "-1", models.ErrDestinationInactive},
		{"zero amount", active.ID, active2.ID, "0", models.ErrNonPositiveAmount},
		{"negative amount before funds", active.ID, active2.ID, "-1000", models.ErrNonPositiveAmount},
		{"sub-cent amount", active.ID, active2.ID, "0.001", models.ErrAmountPrecision},
		{"funds", active.ID, active2.ID, "100.01", models.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.transfers.Transfer(context.Background(), anna, tt.from, tt.to, amount(tt.amount))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	for _, c := range []*models.Card{active, active2, blocked, blocked2, expired, foreignBlocked} {
		assert.Equal(t, "100.00", env.balance(t, c.ID))
	}
}

func TestTransfer_ExactBalanceAllowed(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	from := env.activeCard(t, anna, "4000001111111111", "100.00")
	to := env.activeCard(t, anna, "4000002222222222", "0.00")

	_, err := env.transfers.Transfer(context.Background(), anna, from.ID, to.ID, amount("100"))
	require.NoError(t, err)
	assert.Equal(t, "0.00", env.balance(t, from.ID))
	assert.Equal(t, "100.00", env.balance(t, to.ID))
}

func TestTransfer_ConservesTotal(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	a := env.activeCard(t, anna, "4000001111111111", "1000.00")
	b := env.activeCard(t, anna, "4000002222222222", "250.55")

	moves := []struct {
		from, to int64
		amount   string
	}{
		{a.ID, b.ID, "0.01"},
		{b.ID, a.ID, "250.56"},
		{a.ID, b.ID, "999.99"},
		{b.ID, a.ID, "5000"},
		{a.ID, b.ID, "-3"},
		{b.ID, a.ID, "1000"},
	}
	for _, m := range moves {
		_, _ = env.transfers.Transfer(context.Background(), anna, m.from, m.to, amount(m.amount))

		total := amount(env.balance(t, a.ID)).Add(amount(env.balance(t, b.ID)))
		assert.Equal(t, "1250.55", total.StringFixed(2))
	}
}

// failingStore fails the second balance write of every transaction
type failingStore struct {
	repository.CardStore
	err error
}

func (s *failingStore) InTx(ctx context.Context, fn func(tx repository.CardStore) error) error {
	return s.CardStore.InTx(ctx, func(tx repository.CardStore) error {
		return fn(&failingTx{CardStore: tx, err: s.err})
	})
}

type failingTx struct {
	repository.CardStore
	err    error
	writes int
}

func (tx *failingTx) UpdateCard(ctx context.Context, card *models.Card) error {
	tx.writes++
	if tx.writes == 2 {
		return tx.err
	}
	return tx.CardStore.UpdateCard(ctx, card)
}

func TestTransfer_CrashBetweenWritesRollsBack(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	from := env.activeCard(t, anna, "4000001111111111", "1000.00")
	to := env.activeCard(t, anna, "4000002222222222", "500.00")

	crash := errors.New("storage crashed")
	transfers := NewTransferService(&failingStore{CardStore: env.store, err: crash}, env.cipher, env.notifier, env.log)

	_, err := transfers.Transfer(context.Background(), anna, from.ID, to.ID, amount("200.00"))
	assert.ErrorIs(t, err, crash)

	assert.Equal(t, "1000.00", env.balance(t, from.ID))
	assert.Equal(t, "500.00", env.balance(t, to.ID))
	assert.Empty(t, env.notifier.transfers)
}

func TestTransfer_PostgresCrashBetweenWritesRollsBack(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	repo := repository.NewRepository(db, env.log)

	columns := []string{"id", "user_id", "card_number", "owner_name", "expiry_date", "balance", "status", "created_at", "updated_at"}
	expiry := testNow.AddDate(2, 0, 0)
	crash := errors.New("connection reset by peer")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bank.cards WHERE id = \$1 FOR UPDATE`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), anna.ID, "enc", "anna", expiry, "1000.00", "ACTIVE", testNow, testNow))
	mock.ExpectQuery(`SELECT (.+) FROM bank.cards WHERE id = \$1 FOR UPDATE`).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(2), anna.ID, "enc2", "anna", expiry, "500.00", "ACTIVE", testNow, testNow))
	mock.ExpectExec(`UPDATE bank.cards`).WithArgs("800", "ACTIVE", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bank.cards`).WithArgs("700", "ACTIVE", int64(2)).WillReturnError(crash)
	mock.ExpectRollback()

	transfers := NewTransferService(repo, env.cipher, nil, env.log)
	_, err = transfers.Transfer(context.Background(), anna, 1, 2, amount("200"))
	assert.ErrorIs(t, err, crash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_LocksInAscendingOrder(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	repo := repository.NewRepository(db, env.log)

	columns := []string{"id", "user_id", "card_number", "owner_name", "expiry_date", "balance", "status", "created_at", "updated_at"}
	expiry := testNow.AddDate(2, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(3), anna.ID, "enc", "anna", expiry, "10.00", "ACTIVE", testNow, testNow))
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(9), anna.ID, "enc2", "anna", expiry, "10.00", "BLOCKED", testNow, testNow))
	mock.ExpectRollback()

	transfers := NewTransferService(repo, env.cipher, nil, env.log)
	_, err = transfers.Transfer(context.Background(), anna, 9, 3, amount("1"))
	assert.ErrorIs(t, err, models.ErrSourceInactive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	from := env.activeCard(t, anna, "4000001111111111", "100.00")
	to := env.activeCard(t, anna, "4000002222222222", "0.00")
	transfers := NewTransferService(env.store, env.cipher, nil, env.log)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := transfers.Transfer(context.Background(), anna, from.ID, to.ID, amount("1"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if errors.Is(err, models.ErrInsufficientFunds) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, succeeded)
	assert.Equal(t, 50, rejected)
	assert.Equal(t, "0.00", env.balance(t, from.ID))
	assert.Equal(t, "100.00", env.balance(t, to.ID))
}

func TestTransfer_OppositeDirectionsConcurrently(t *testing.T) {
	env := newTestEnv(t)
	anna := env.user(t, "anna")
	a := env.activeCard(t, anna, "4000001111111111", "500.00")
	b := env.activeCard(t, anna, "4000002222222222", "500.00")
	transfers := NewTransferService(env.store, env.cipher, nil, env.log)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = transfers.Transfer(context.Background(), anna, a.ID, b.ID, amount("3.25"))
		}()
		go func() {
			defer wg.Done()
			_, _ = transfers.Transfer(context.Background(), anna, b.ID, a.ID, amount("1.75"))
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers did not finish")
	}

	assert.Equal(t, "440.00", env.balance(t, a.ID))
	assert.Equal(t, "560.00", env.balance(t, b.ID))
}
