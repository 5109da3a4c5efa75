// Package ledger — service.go содержит бизнес-логику леджера.
// Валидация, создание счетов и транзакций, применение балансов
// для подтверждённых транзакций.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/metrics"
	"serotonyl.ru/betdesk/internal/security"
)

// Store — хранилище леджера. Реализации: Repository (PostgreSQL)
// и memory.LedgerStore (in-memory).
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	// ListAccounts возвращает счета владельца; ownerID == nil — все счета.
	ListAccounts(ctx context.Context, ownerID *uuid.UUID) ([]*Account, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// ListTransactions возвращает транзакции пользователя; userID == nil — все.
	ListTransactions(ctx context.Context, userID *uuid.UUID) ([]*Transaction, error)

	// InTx выполняет fn в одной транзакции хранилища:
	// либо применяется всё, либо ничего.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx — операции внутри транзакции хранилища.
type Tx interface {
	// LockAccounts блокирует строки счетов до конца транзакции.
	// Отсутствующие счета в результат не попадают.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*Account, error)
	// LockTransaction блокирует строку транзакции; nil, если её нет.
	LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	InsertTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t *Transaction) error
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error

	// LockAccountName сериализует создание счёта (owner, name).
	LockAccountName(ctx context.Context, ownerID uuid.UUID, name string) error
	FindAccountByName(ctx context.Context, ownerID uuid.UUID, name string) (*Account, error)
	InsertAccount(ctx context.Context, a *Account) error
}

// Service управляет счетами и транзакциями.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService создаёт новый сервис леджера.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateAccount создаёт счёт владельца с нулевым балансом.
func (s *Service) CreateAccount(ctx context.Context, ownerID uuid.UUID, name string) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.Validation("название счёта обязательно")
	}
	if err := common.CheckLen("name", name, common.MaxNameLen); err != nil {
		return nil, err
	}
	if ownerID == uuid.Nil {
		return nil, common.Validation("владелец счёта обязателен")
	}

	now := s.now().UTC()
	a := &Account{
		ID:        uuid.New(),
		UserID:    ownerID,
		Name:      name,
		Balance:   decimal.Zero,
		Source:    SourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, common.Internal("ошибка создания счёта", err)
	}
	return a, nil
}

// EnsureAccount идемпотентно создаёт счёт с точным именем name.
// Если счёт уже есть, возвращает его и created=false.
func (s *Service) EnsureAccount(ctx context.Context, ownerID uuid.UUID, name string) (acc *Account, created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, common.Validation("название счёта обязательно")
	}
	if err := common.CheckLen("name", name, common.MaxNameLen); err != nil {
		return nil, false, err
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockAccountName(ctx, ownerID, name); err != nil {
			return err
		}
		existing, err := tx.FindAccountByName(ctx, ownerID, name)
		if err != nil {
			return err
		}
		if existing != nil {
			acc = existing
			return nil
		}

		now := s.now().UTC()
		acc = &Account{
			ID:        uuid.New(),
			UserID:    ownerID,
			Name:      name,
			Balance:   decimal.Zero,
			Source:    SourcePromotion,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		return nil, false, common.Internal("ошибка создания счёта", err)
	}

	if created {
		metrics.AccountsProvisioned.Inc()
		log.WithFields(log.Fields{
			"user_id": ownerID,
			"account": name,
		}).Info("Счёт создан автоматически")
	}
	return acc, created, nil
}

// GetAccount возвращает счёт с проверкой владения.
func (s *Service) GetAccount(ctx context.Context, actor security.Principal, id uuid.UUID) (*Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, common.Internal("ошибка получения счёта", err)
	}
	if a == nil {
		return nil, common.ErrAccountNotFound
	}
	if err := security.AuthorizeOwner(actor, a.UserID); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAccounts возвращает счета владельца.
// all=true (только admin) — счета всех пользователей.
func (s *Service) ListAccounts(ctx context.Context, actor security.Principal, all bool) ([]*Account, error) {
	var scope *uuid.UUID
	if all {
		if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
			return nil, err
		}
	} else {
		scope = &actor.UserID
	}

	accounts, err := s.store.ListAccounts(ctx, scope)
	if err != nil {
		return nil, common.Internal("ошибка получения счетов", err)
	}
	if accounts == nil {
		accounts = []*Account{}
	}
	return accounts, nil
}

// GetTransaction возвращает транзакцию с проверкой владения.
func (s *Service) GetTransaction(ctx context.Context, actor security.Principal, id uuid.UUID) (*Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, common.Internal("ошибка получения транзакции", err)
	}
	if t == nil {
		return nil, common.ErrTransactionNotFound
	}
	if err := security.AuthorizeOwner(actor, t.UserID); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransactions возвращает транзакции пользователя (или все для admin при all=true).
func (s *Service) ListTransactions(ctx context.Context, actor security.Principal, all bool) ([]*Transaction, error) {
	var scope *uuid.UUID
	if all {
		if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
			return nil, err
		}
	} else {
		scope = &actor.UserID
	}

	txs, err := s.store.ListTransactions(ctx, scope)
	if err != nil {
		return nil, common.Internal("ошибка получения транзакций", err)
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	return txs, nil
}

// CreateTransaction записывает транзакцию. Если итоговый статус Confirmed,
// списание со счёта-источника и зачисление на счёт-получатель выполняются
// в той же транзакции хранилища, что и запись.
//
// Проверки:
//   - сумма положительная, не более 2 знаков после запятой
//   - оба счёта заданы, различны, существуют и принадлежат in.UserID
//   - статус известен (по умолчанию Pending)
func (s *Service) CreateTransaction(ctx context.Context, actor security.Principal, in NewTransaction) (*Transaction, error) {
	if in.UserID == uuid.Nil {
		in.UserID = actor.UserID
	}
	if err := security.AuthorizeOwner(actor, in.UserID); err != nil {
		return nil, err
	}
	if in.FromAccountID == uuid.Nil || in.ToAccountID == uuid.Nil {
		return nil, common.Validation("fromAccountId и toAccountId обязательны")
	}
	if in.FromAccountID == in.ToAccountID {
		return nil, common.ErrSameAccount
	}
	if !validAmount(in.Amount) {
		return nil, common.ErrInvalidAmount
	}
	if strings.TrimSpace(in.Type) == "" {
		in.Type = DefaultType
	}
	if err := common.CheckLen("type", strings.TrimSpace(in.Type), common.MaxCodeLen); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !knownStatus(in.Status) {
		return nil, common.Validation("неизвестный статус %q", in.Status)
	}

	now := s.now().UTC()
	t := &Transaction{
		ID:            uuid.New(),
		UserID:        in.UserID,
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Amount:        in.Amount,
		Type:          strings.TrimSpace(in.Type),
		Description:   in.Description,
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		// Блокируем оба счёта: параллельные подтверждения по ним ждут нас
		accounts, err := tx.LockAccounts(ctx, t.FromAccountID, t.ToAccountID)
		if err != nil {
			return err
		}
		if err := checkAccounts(accounts, t); err != nil {
			return err
		}

		if t.IsConfirmed() {
			if err := checkBalanceLimits(accounts, t); err != nil {
				return err
			}
			t.ConfirmedAt = &now
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if t.IsConfirmed() {
			return applyTransfer(ctx, tx, t)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr("ошибка создания транзакции", err)
	}

	metrics.LedgerTransactions.WithLabelValues(t.Status).Inc()
	if t.IsConfirmed() {
		metrics.LedgerConfirmations.Inc()
	}

	log.WithFields(log.Fields{
		"tx_id":  t.ID,
		"user":   t.UserID,
		"from":   t.FromAccountID,
		"to":     t.ToAccountID,
		"amount": t.Amount.StringFixed(2),
		"status": t.Status,
	}).Info("Транзакция записана")

	return t, nil
}

// UpdateTransaction — административная правка транзакции.
// Переход в Confirmed из любого другого статуса применяет баланс ровно один раз
// с актуальной (возможно исправленной) суммой. Подтверждённая транзакция
// не может сменить сумму или покинуть статус Confirmed.
func (s *Service) UpdateTransaction(ctx context.Context, actor security.Principal, id uuid.UUID, patch TransactionPatch) (*Transaction, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, common.Validation("нет полей для обновления")
	}
	if patch.Amount != nil && !validAmount(*patch.Amount) {
		return nil, common.ErrInvalidAmount
	}
	if patch.Status != nil && !knownStatus(*patch.Status) {
		return nil, common.Validation("неизвестный статус %q", *patch.Status)
	}
	if patch.Type != nil && strings.TrimSpace(*patch.Type) == "" {
		return nil, common.Validation("тип транзакции не может быть пустым")
	}
	if patch.Type != nil {
		if err := common.CheckLen("type", strings.TrimSpace(*patch.Type), common.MaxCodeLen); err != nil {
			return nil, err
		}
	}

	var updated *Transaction
	var confirmedNow bool
	err := s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return common.ErrTransactionNotFound
		}

		wasConfirmed := current.IsConfirmed()
		next := *current
		patch.Apply(&next)

		if wasConfirmed {
			if !next.Amount.Equal(current.Amount) || !next.IsConfirmed() {
				return common.ErrConfirmedImmutable
			}
		}

		now := s.now().UTC()
		next.UpdatedAt = now

		if !wasConfirmed && next.IsConfirmed() {
			// Блокировка счетов до применения; порядок id исключает взаимоблокировки
			accounts, err := tx.LockAccounts(ctx, next.FromAccountID, next.ToAccountID)
			if err != nil {
				return err
			}
			if err := checkAccounts(accounts, &next); err != nil {
				return err
			}
			if err := checkBalanceLimits(accounts, &next); err != nil {
				return err
			}
			if err := applyTransfer(ctx, tx, &next); err != nil {
				return err
			}
			next.ConfirmedAt = &now
			confirmedNow = true
		}

		if err := tx.UpdateTransaction(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr("ошибка обновления транзакции", err)
	}

	if confirmedNow {
		metrics.LedgerConfirmations.Inc()
	}
	log.WithFields(log.Fields{
		"tx_id":     id,
		"admin":     actor.UserID,
		"status":    updated.Status,
		"confirmed": confirmedNow,
	}).Info("Транзакция обновлена администратором")

	return updated, nil
}

// checkAccounts проверяет, что оба счёта существуют и принадлежат пользователю транзакции.
func checkAccounts(accounts map[uuid.UUID]*Account, t *Transaction) error {
	for _, id := range []uuid.UUID{t.FromAccountID, t.ToAccountID} {
		a, ok := accounts[id]
		if !ok {
			return common.ErrAccountNotFound
		}
		if a.UserID != t.UserID {
			return common.ErrNotOwner
		}
	}
	return nil
}

// checkBalanceLimits не даёт балансам выйти за пределы NUMERIC(14,2).
// Вызывается после checkAccounts, когда оба счёта уже заблокированы.
func checkBalanceLimits(accounts map[uuid.UUID]*Account, t *Transaction) error {
	from := accounts[t.FromAccountID].Balance.Sub(t.Amount)
	to := accounts[t.ToAccountID].Balance.Add(t.Amount)
	if !common.WithinMoneyLimit(from) || !common.WithinMoneyLimit(to) {
		return common.Validation("баланс счёта вышел бы за допустимый предел")
	}
	return nil
}

// applyTransfer списывает сумму с источника и зачисляет получателю.
func applyTransfer(ctx context.Context, tx Tx, t *Transaction) error {
	if err := tx.AdjustBalance(ctx, t.FromAccountID, t.Amount.Neg()); err != nil {
		return fmt.Errorf("ошибка списания со счёта %s: %w", t.FromAccountID, err)
	}
	if err := tx.AdjustBalance(ctx, t.ToAccountID, t.Amount); err != nil {
		return fmt.Errorf("ошибка зачисления на счёт %s: %w", t.ToAccountID, err)
	}
	return nil
}

// wrapStoreErr пропускает доменные ошибки как есть,
// остальное превращает во внутреннюю ошибку.
func wrapStoreErr(msg string, err error) error {
	if common.KindOf(err) != common.KindInternal {
		return err
	}
	return common.Internal(msg, err)
}
