package ledger_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/ledger"
	"serotonyl.ru/betdesk/internal/security"
	"serotonyl.ru/betdesk/internal/storage/memory"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc      *ledger.Service
	store    ledger.Store
	owner    security.Principal
	admin    security.Principal
	checking *ledger.Account
	savings  *ledger.Account
}

func newFixture(t *testing.T, store ledger.Store) *fixture {
	t.Helper()
	if store == nil {
		store = memory.New().Ledger()
	}
	svc := ledger.NewService(store)
	f := &fixture{
		svc:   svc,
		store: store,
		owner: security.Principal{UserID: uuid.New(), Role: security.RoleUser},
		admin: security.Principal{UserID: uuid.New(), Role: security.RoleAdmin},
	}

	var err error
	f.checking, err = svc.CreateAccount(context.Background(), f.owner.UserID, "Checking")
	require.NoError(t, err)
	f.savings, err = svc.CreateAccount(context.Background(), f.owner.UserID, "Savings")
	require.NoError(t, err)
	return f
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	a, err := f.svc.GetAccount(context.Background(), f.owner, id)
	require.NoError(t, err)
	return a.Balance
}

func (f *fixture) transfer(amount, status string) ledger.NewTransaction {
	return ledger.NewTransaction{
		FromAccountID: f.checking.ID,
		ToAccountID:   f.savings.ID,
		Amount:        money(amount),
		Status:        status,
	}
}

func TestCreateTransaction_ConfirmedMovesBalances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tx, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("50.00", ledger.StatusConfirmed))
	require.NoError(t, err)
	assert.NotNil(t, tx.ConfirmedAt)
	assert.Equal(t, ledger.DefaultType, tx.Type)

	assert.True(t, f.balance(t, f.checking.ID).Equal(money("-50")))
	assert.True(t, f.balance(t, f.savings.ID).Equal(money("50")))
}

func TestCreateTransaction_NonConfirmedLeavesBalances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, status := range []string{"", ledger.StatusPending, ledger.StatusCancelled} {
		tx, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("10.00", status))
		require.NoError(t, err)
		assert.Nil(t, tx.ConfirmedAt)
	}
	assert.True(t, f.balance(t, f.checking.ID).IsZero())
	assert.True(t, f.balance(t, f.savings.ID).IsZero())
}

func TestCreateTransaction_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ledger.NewTransaction
		want error
	}{
		{"zero amount", f.transfer("0", ledger.StatusConfirmed), common.ErrInvalidAmount},
		{"negative amount", f.transfer("-1.00", ledger.StatusConfirmed), common.ErrInvalidAmount},
		{"three decimals", f.transfer("1.005", ledger.StatusConfirmed), common.ErrInvalidAmount},
		{"amount over column precision", f.transfer("1000000000000.00", ledger.StatusConfirmed), common.ErrInvalidAmount},
		{"huge pending amount", f.transfer("1000000000000000.00", ledger.StatusPending), common.ErrInvalidAmount},
		{"same account", ledger.NewTransaction{
			FromAccountID: f.checking.ID, ToAccountID: f.checking.ID, Amount: money("1"),
		}, common.ErrSameAccount},
		{"missing account", ledger.NewTransaction{
			FromAccountID: f.checking.ID, ToAccountID: uuid.New(), Amount: money("1"),
		}, common.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(ctx, f.owner, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("1", "Settled"))
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	longType := f.transfer("1", ledger.StatusConfirmed)
	longType.Type = strings.Repeat("x", 40)
	_, err = f.svc.CreateTransaction(ctx, f.owner, longType)
	assert.Equal(t, common.KindValidation, common.KindOf(err))
	assert.True(t, f.balance(t, f.checking.ID).IsZero())

	_, err = f.svc.CreateAccount(ctx, f.owner.UserID, strings.Repeat("n", common.MaxNameLen+1))
	assert.Equal(t, common.KindValidation, common.KindOf(err))
}

func TestCreateTransaction_BalanceStaysWithinColumn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("999999999999.99", ledger.StatusConfirmed))
	require.NoError(t, err)

	_, err = f.svc.CreateTransaction(ctx, f.owner, f.transfer("1.00", ledger.StatusConfirmed))
	assert.Equal(t, common.KindValidation, common.KindOf(err))
	assert.True(t, f.balance(t, f.savings.ID).Equal(money("999999999999.99")))

	pending, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("1.00", ledger.StatusPending))
	require.NoError(t, err)
	_, err = f.svc.UpdateTransaction(ctx, f.admin, pending.ID, ledger.TransactionPatch{Status: ptr(ledger.StatusConfirmed)})
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	got, err := f.svc.GetTransaction(ctx, f.admin, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, got.Status)
}

func TestCreateTransaction_ForeignAccountForbidden(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stranger, err := f.svc.CreateAccount(ctx, uuid.New(), "Other")
	require.NoError(t, err)

	_, err = f.svc.CreateTransaction(ctx, f.owner, ledger.NewTransaction{
		FromAccountID: f.checking.ID,
		ToAccountID:   stranger.ID,
		Amount:        money("5"),
		Status:        ledger.StatusConfirmed,
	})
	assert.ErrorIs(t, err, common.ErrNotOwner)
	assert.True(t, f.balance(t, f.checking.ID).IsZero())

	other := security.Principal{UserID: uuid.New(), Role: security.RoleUser}
	_, err = f.svc.CreateTransaction(ctx, other, ledger.NewTransaction{
		UserID:        f.owner.UserID,
		FromAccountID: f.checking.ID,
		ToAccountID:   f.savings.ID,
		Amount:        money("5"),
	})
	assert.ErrorIs(t, err, common.ErrNotOwner)
}

func TestUpdateTransaction_ConfirmAppliesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tx, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("20.00", ledger.StatusPending))
	require.NoError(t, err)

	// Исправленная сумма применяется при подтверждении
	updated, err := f.svc.UpdateTransaction(ctx, f.admin, tx.ID, ledger.TransactionPatch{
		Amount: ptr(money("25.00")),
		Status: ptr(ledger.StatusConfirmed),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ConfirmedAt)
	assert.True(t, f.balance(t, f.checking.ID).Equal(money("-25")))
	assert.True(t, f.balance(t, f.savings.ID).Equal(money("25")))

	// Повторное «подтверждение» и правка описания не трогают балансы
	_, err = f.svc.UpdateTransaction(ctx, f.admin, tx.ID, ledger.TransactionPatch{
		Status:      ptr(ledger.StatusConfirmed),
		Description: ptr("исправлено"),
	})
	require.NoError(t, err)
	assert.True(t, f.balance(t, f.checking.ID).Equal(money("-25")))
	assert.True(t, f.balance(t, f.savings.ID).Equal(money("25")))
}

func TestUpdateTransaction_ConfirmedIsImmutable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tx, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("10.00", ledger.StatusConfirmed))
	require.NoError(t, err)

	_, err = f.svc.UpdateTransaction(ctx, f.admin, tx.ID, ledger.TransactionPatch{Amount: ptr(money("11.00"))})
	assert.ErrorIs(t, err, common.ErrConfirmedImmutable)

	_, err = f.svc.UpdateTransaction(ctx, f.admin, tx.ID, ledger.TransactionPatch{Status: ptr(ledger.StatusCancelled)})
	assert.ErrorIs(t, err, common.ErrConfirmedImmutable)

	got, err := f.svc.GetTransaction(ctx, f.owner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, got.Status)
	assert.True(t, got.Amount.Equal(money("10")))
	assert.True(t, f.balance(t, f.checking.ID).Equal(money("-10")))
}

func TestUpdateTransaction_RequiresAdmin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tx, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("10.00", ledger.StatusPending))
	require.NoError(t, err)

	_, err = f.svc.UpdateTransaction(ctx, f.owner, tx.ID, ledger.TransactionPatch{Status: ptr(ledger.StatusConfirmed)})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.svc.UpdateTransaction(ctx, f.admin, uuid.New(), ledger.TransactionPatch{Status: ptr(ledger.StatusConfirmed)})
	assert.ErrorIs(t, err, common.ErrTransactionNotFound)

	_, err = f.svc.UpdateTransaction(ctx, f.admin, tx.ID, ledger.TransactionPatch{})
	assert.Equal(t, common.KindValidation, common.KindOf(err))
}

// failingStore роняет второе изменение баланса внутри InTx.
type failingStore struct {
	ledger.Store
}

func (s failingStore) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.InTx(ctx, func(tx ledger.Tx) error {
		return fn(&failingTx{Tx: tx})
	})
}

type failingTx struct {
	ledger.Tx
	adjustments int
}

func (t *failingTx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	t.adjustments++
	if t.adjustments == 2 {
		return errors.New("диск переполнен")
	}
	return t.Tx.AdjustBalance(ctx, id, delta)
}

func TestCreateTransaction_RollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t, failingStore{Store: memory.New().Ledger()})
	ctx := context.Background()

	_, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("30.00", ledger.StatusConfirmed))
	require.Error(t, err)
	assert.Equal(t, common.KindInternal, common.KindOf(err))

	assert.True(t, f.balance(t, f.checking.ID).IsZero(), "списание откатилось")
	assert.True(t, f.balance(t, f.savings.ID).IsZero())

	list, err := f.svc.ListTransactions(ctx, f.owner, false)
	require.NoError(t, err)
	assert.Empty(t, list, "транзакция не записана")
}

func TestCreateTransaction_ConcurrentConfirmations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTransaction(ctx, f.owner, f.transfer("1.00", ledger.StatusConfirmed))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, f.checking.ID).Equal(money("-50")))
	assert.True(t, f.balance(t, f.savings.ID).Equal(money("50")))
}

func TestEnsureAccount_Idempotent(t *testing.T) {
	svc := ledger.NewService(memory.New().Ledger())
	ctx := context.Background()
	owner := uuid.New()

	first, created, err := svc.EnsureAccount(ctx, owner, "Acme Sportsbook")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ledger.SourcePromotion, first.Source)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc, created, err := svc.EnsureAccount(ctx, owner, "Acme Sportsbook")
			assert.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.ID, acc.ID)
		}()
	}
	wg.Wait()

	list, err := svc.ListAccounts(ctx, security.Principal{UserID: owner, Role: security.RoleUser}, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAccessControl(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	other := security.Principal{UserID: uuid.New(), Role: security.RoleUser}

	_, err := f.svc.GetAccount(ctx, other, f.checking.ID)
	assert.ErrorIs(t, err, common.ErrNotOwner)

	_, err = f.svc.GetAccount(ctx, f.admin, f.checking.ID)
	assert.NoError(t, err)

	_, err = f.svc.ListAccounts(ctx, other, true)
	assert.ErrorIs(t, err, common.ErrForbidden)

	all, err := f.svc.ListAccounts(ctx, f.admin, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListAccounts(ctx, other, false)
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.NotNil(t, mine)
}
