// Package bets ведёт журнал ставок пользователя в букмекерских конторах.
// models.go описывает ставку, правку и сводную статистику.
package bets

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/betdesk/internal/common"
)

// Статусы ставки
const (
	StatusPending = "pending"
	StatusWon     = "won"
	StatusLost    = "lost"
	StatusVoid    = "void" // возврат ставки
)

// Bet — ставка.
type Bet struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"userId"`
	AccountID  *uuid.UUID       `json:"accountId,omitempty"` // счёт леджера, с которого сделана ставка
	Sportsbook string           `json:"sportsbook"`
	Event      string           `json:"event"`
	Selection  string           `json:"selection"`
	Odds       decimal.Decimal  `json:"odds"`  // десятичный коэффициент, > 1
	Stake      decimal.Decimal  `json:"stake"` // сумма ставки, > 0
	Status     string           `json:"status"`
	Payout     *decimal.Decimal `json:"payout,omitempty"` // только у рассчитанных
	Notes      string           `json:"notes"`
	PlacedAt   time.Time        `json:"placedAt"`
	SettledAt  *time.Time       `json:"settledAt,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Settled — ставка рассчитана.
func (b *Bet) Settled() bool {
	return b.Status != StatusPending
}

// NewBet — данные новой ставки.
type NewBet struct {
	UserID     uuid.UUID       `json:"userId"`
	AccountID  *uuid.UUID      `json:"accountId"`
	Sportsbook string          `json:"sportsbook"`
	Event      string          `json:"event"`
	Selection  string          `json:"selection"`
	Odds       decimal.Decimal `json:"odds"`
	Stake      decimal.Decimal `json:"stake"`
	Notes      string          `json:"notes"`
	PlacedAt   *time.Time      `json:"placedAt"`
}

// BetPatch — правка ставки. Status переводит pending в won/lost/void;
// Payout учитывается только при выигрыше.
type BetPatch struct {
	Event     *string          `json:"event"`
	Selection *string          `json:"selection"`
	Notes     *string          `json:"notes"`
	Status    *string          `json:"status"`
	Payout    *decimal.Decimal `json:"payout"`
}

func (p BetPatch) Empty() bool {
	return p.Event == nil && p.Selection == nil && p.Notes == nil && p.Status == nil && p.Payout == nil
}

// Stats — сводка по ставкам пользователя.
type Stats struct {
	Total    int             `json:"total"`
	Pending  int             `json:"pending"`
	Won      int             `json:"won"`
	Lost     int             `json:"lost"`
	Void     int             `json:"void"`
	Staked   decimal.Decimal `json:"staked"`   // сумма рассчитанных ставок
	Returned decimal.Decimal `json:"returned"` // сумма выплат
	Profit   decimal.Decimal `json:"profit"`
	ROI      decimal.Decimal `json:"roi"` // процент, 2 знака
}

// SettlePayout возвращает выплату для статуса:
// won — stake×odds (или заданная), lost — 0, void — stake.
func SettlePayout(status string, stake, odds decimal.Decimal, given *decimal.Decimal) decimal.Decimal {
	switch status {
	case StatusWon:
		if given != nil {
			return *given
		}
		return stake.Mul(odds).Round(2)
	case StatusVoid:
		return stake
	default:
		return decimal.Zero
	}
}

// Summarize считает статистику по списку ставок.
func Summarize(list []*Bet) Stats {
	st := Stats{
		Staked:   decimal.Zero,
		Returned: decimal.Zero,
		Profit:   decimal.Zero,
		ROI:      decimal.Zero,
	}
	hundred := decimal.NewFromInt(100)
	for _, b := range list {
		st.Total++
		switch b.Status {
		case StatusPending:
			st.Pending++
			continue
		case StatusWon:
			st.Won++
		case StatusLost:
			st.Lost++
		case StatusVoid:
			st.Void++
		}
		st.Staked = st.Staked.Add(b.Stake)
		if b.Payout != nil {
			st.Returned = st.Returned.Add(*b.Payout)
		}
	}
	st.Profit = st.Returned.Sub(st.Staked)
	if st.Staked.IsPositive() {
		st.ROI = st.Profit.Mul(hundred).Div(st.Staked).Round(2)
	}
	return st
}

func knownStatus(s string) bool {
	switch s {
	case StatusPending, StatusWon, StatusLost, StatusVoid:
		return true
	}
	return false
}

func validMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2)) && common.WithinMoneyLimit(d)
}

// validOdds — коэффициент больше 1, до 4 знаков, помещается в NUMERIC(10,4).
func validOdds(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.NewFromInt(1)) && d.Equal(d.Round(4)) && d.LessThan(common.OddsLimit)
}

// checkText проверяет длины текстовых полей ставки.
func checkText(fields map[string]string) error {
	for name, v := range fields {
		if err := common.CheckLen(name, v, common.MaxNameLen); err != nil {
			return err
		}
	}
	return nil
}
