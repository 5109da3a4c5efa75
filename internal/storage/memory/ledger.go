package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/betdesk/internal/features/ledger"
)

// LedgerStore — ledger.Store в памяти.
type LedgerStore struct {
	s *Store
}

var _ ledger.Store = (*LedgerStore)(nil)

func cloneAccount(a *ledger.Account) *ledger.Account {
	c := *a
	return &c
}

func cloneTransaction(t *ledger.Transaction) *ledger.Transaction {
	c := *t
	return &c
}

func (st *LedgerStore) CreateAccount(_ context.Context, a *ledger.Account) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (st *LedgerStore) GetAccount(_ context.Context, id uuid.UUID) (*ledger.Account, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	a, ok := st.s.accounts[id]
	if !ok {
		return nil, nil
	}
	return cloneAccount(a), nil
}

func (st *LedgerStore) ListAccounts(_ context.Context, ownerID *uuid.UUID) ([]*ledger.Account, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []*ledger.Account
	for _, a := range st.s.accounts {
		if ownerID == nil || a.UserID == *ownerID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return earlier(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (st *LedgerStore) GetTransaction(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	t, ok := st.s.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

func (st *LedgerStore) ListTransactions(_ context.Context, userID *uuid.UUID) ([]*ledger.Transaction, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []*ledger.Transaction
	for _, t := range st.s.transactions {
		if userID == nil || t.UserID == *userID {
			out = append(out, cloneTransaction(t))
		}
	}
	// новые первыми
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// InTx держит мьютекс на всё время fn. Если fn вернула ошибку,
// счета и транзакции возвращаются к снимку, сделанному до вызова.
func (st *LedgerStore) InTx(_ context.Context, fn func(tx ledger.Tx) error) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	accounts := cloneMap(st.s.accounts, cloneAccount)
	transactions := cloneMap(st.s.transactions, cloneTransaction)

	if err := fn(&ledgerTx{s: st.s}); err != nil {
		st.s.accounts = accounts
		st.s.transactions = transactions
		return err
	}
	return nil
}

// ledgerTx работает с картами напрямую: мьютекс уже взят в InTx.
type ledgerTx struct {
	s *Store
}

func (t *ledgerTx) LockAccounts(_ context.Context, ids ...uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	out := make(map[uuid.UUID]*ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.s.accounts[id]; ok {
			out[id] = cloneAccount(a)
		}
	}
	return out, nil
}

func (t *ledgerTx) LockTransaction(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	tr, ok := t.s.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(tr), nil
}

func (t *ledgerTx) InsertTransaction(_ context.Context, tr *ledger.Transaction) error {
	if _, ok := t.s.transactions[tr.ID]; ok {
		return fmt.Errorf("транзакция %s уже существует", tr.ID)
	}
	t.s.transactions[tr.ID] = cloneTransaction(tr)
	return nil
}

func (t *ledgerTx) UpdateTransaction(_ context.Context, tr *ledger.Transaction) error {
	cur, ok := t.s.transactions[tr.ID]
	if !ok {
		return fmt.Errorf("транзакция %s не обновлена", tr.ID)
	}
	next := cloneTransaction(cur)
	next.Amount = tr.Amount
	next.Type = tr.Type
	next.Description = tr.Description
	next.Status = tr.Status
	next.ConfirmedAt = tr.ConfirmedAt
	next.UpdatedAt = tr.UpdatedAt
	t.s.transactions[tr.ID] = next
	return nil
}

func (t *ledgerTx) AdjustBalance(_ context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	a, ok := t.s.accounts[accountID]
	if !ok {
		return fmt.Errorf("счёт %s не найден при изменении баланса", accountID)
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// LockAccountName ничего не делает: мьютекс хранилища уже сериализует InTx.
func (t *ledgerTx) LockAccountName(context.Context, uuid.UUID, string) error {
	return nil
}

func (t *ledgerTx) FindAccountByName(_ context.Context, ownerID uuid.UUID, name string) (*ledger.Account, error) {
	var found *ledger.Account
	for _, a := range t.s.accounts {
		if a.UserID != ownerID || a.Name != name {
			continue
		}
		if found == nil || earlier(a.CreatedAt, found.CreatedAt, a.ID, found.ID) {
			found = a
		}
	}
	if found == nil {
		return nil, nil
	}
	return cloneAccount(found), nil
}

func (t *ledgerTx) InsertAccount(_ context.Context, a *ledger.Account) error {
	t.s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func earlier(a, b time.Time, idA, idB uuid.UUID) bool {
	if a.Equal(b) {
		return idA.String() < idB.String()
	}
	return a.Before(b)
}
