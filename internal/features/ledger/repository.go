// Package ledger — repository.go выполняет все операции с таблицами accounts и transactions.
// Все денежные операции выполняются в транзакциях БД для целостности данных.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository — реализация Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, user_id, name, balance, source, created_at, updated_at`

const transactionColumns = `id, user_id, from_account_id, to_account_id, amount, type, description,
	status, confirmed_at, created_at, updated_at`

// CreateAccount добавляет счёт.
func (r *Repository) CreateAccount(ctx context.Context, a *Account) error {
	return insertAccount(ctx, r.db, a)
}

// GetAccount возвращает счёт по id; nil, если не найден.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения счёта: %w", err)
	}
	return a, nil
}

// ListAccounts возвращает счета владельца или все счета при ownerID == nil.
func (r *Repository) ListAccounts(ctx context.Context, ownerID *uuid.UUID) ([]*Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения счетов: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetTransaction возвращает транзакцию по id; nil, если не найдена.
func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакции: %w", err)
	}
	return t, nil
}

// ListTransactions возвращает транзакции пользователя, новые первыми.
func (r *Repository) ListTransactions(ctx context.Context, userID *uuid.UUID) ([]*Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// InTx начинает транзакцию БД и передаёт её в fn.
// Любая ошибка fn откатывает всё, включая изменения балансов.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// pgTx — Tx поверх pgx.Tx.
type pgTx struct {
	tx pgx.Tx
}

// LockAccounts блокирует строки счетов (FOR UPDATE) в порядке id,
// чтобы встречные переводы не взаимоблокировались.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*Account, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки счетов: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (t *pgTx) LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	tr, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка блокировки транзакции: %w", err)
	}
	return tr, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *Transaction) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tr.ID, tr.UserID, tr.FromAccountID, tr.ToAccountID, tr.Amount, tr.Type, tr.Description,
		tr.Status, tr.ConfirmedAt, tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

// UpdateTransaction перезаписывает изменяемые поля целиком, форма запроса фиксирована.
func (t *pgTx) UpdateTransaction(ctx context.Context, tr *Transaction) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE transactions
		SET amount = $2, type = $3, description = $4, status = $5,
		    confirmed_at = $6, updated_at = $7
		WHERE id = $1
	`, tr.ID, tr.Amount, tr.Type, tr.Description, tr.Status, tr.ConfirmedAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления транзакции: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("транзакция %s не обновлена", tr.ID)
	}
	return nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
	`, accountID, delta)
	if err != nil {
		return fmt.Errorf("ошибка изменения баланса: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("счёт %s не найден при изменении баланса", accountID)
	}
	return nil
}

// LockAccountName берёт advisory-блокировку на пару (владелец, имя) до конца транзакции.
func (t *pgTx) LockAccountName(ctx context.Context, ownerID uuid.UUID, name string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"account:"+ownerID.String()+":"+name)
	if err != nil {
		return fmt.Errorf("ошибка advisory-блокировки: %w", err)
	}
	return nil
}

func (t *pgTx) FindAccountByName(ctx context.Context, ownerID uuid.UUID, name string) (*Account, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1 AND name = $2
		ORDER BY created_at
		LIMIT 1
	`, ownerID, name)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска счёта: %w", err)
	}
	return a, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *Account) error {
	return insertAccount(ctx, t.tx, a)
}

// execer — общее между пулом и pgx.Tx для INSERT.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertAccount(ctx context.Context, db execer, a *Account) error {
	_, err := db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.UserID, a.Name, a.Balance, a.Source, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания счёта: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Balance, &a.Source, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Type, &t.Description,
		&t.Status, &t.ConfirmedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
