// Package ledger управляет счетами пользователей и транзакциями между ними.
// models.go описывает структуры счетов, транзакций и патчей.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/betdesk/internal/common"
)

// Account — финансовый счёт пользователя (банк, букмекер, кошелёк).
// Баланс меняется только подтверждёнными транзакциями.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	Source    string          `json:"source"` // manual или promotion
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Источники счетов
const (
	SourceManual    = "manual"    // создан владельцем
	SourcePromotion = "promotion" // создан системой по шагу промо-акции
)

// Transaction — перевод суммы со счёта на счёт.
// Подтверждённая транзакция уже применила списание и зачисление ровно один раз.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"userId"`
	FromAccountID uuid.UUID       `json:"fromAccountId"`
	ToAccountID   uuid.UUID       `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// IsConfirmed — баланс по транзакции уже применён.
func (t *Transaction) IsConfirmed() bool { return t.Status == StatusConfirmed }

// Статусы транзакций
const (
	StatusPending   = "Pending"
	StatusConfirmed = "Confirmed"
	StatusCancelled = "Cancelled"
)

// DefaultType — тип транзакции по умолчанию.
const DefaultType = "Deposit"

func knownStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// NewTransaction — входные данные для создания транзакции.
type NewTransaction struct {
	UserID        uuid.UUID       `json:"userId"`
	FromAccountID uuid.UUID       `json:"fromAccountId"`
	ToAccountID   uuid.UUID       `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
}

// TransactionPatch — административная правка транзакции.
// nil-поле означает «не менять».
type TransactionPatch struct {
	Amount      *decimal.Decimal `json:"amount"`
	Type        *string          `json:"type"`
	Description *string          `json:"description"`
	Status      *string          `json:"status"`
}

// Empty — в патче нет ни одного поля.
func (p TransactionPatch) Empty() bool {
	return p.Amount == nil && p.Type == nil && p.Description == nil && p.Status == nil
}

// Apply переносит заданные поля патча в транзакцию.
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// validAmount — положительная сумма не более чем с двумя знаками после запятой,
// помещающаяся в NUMERIC(14,2).
func validAmount(a decimal.Decimal) bool {
	return a.IsPositive() && a.Equal(a.Round(2)) && common.WithinMoneyLimit(a)
}
