// Package bets — service.go содержит правила записи и расчёта ставок.
package bets

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/ledger"
	"serotonyl.ru/betdesk/internal/security"
)

// Store — хранилище ставок. Get возвращает nil без ошибки, если ставки нет.
type Store interface {
	Create(ctx context.Context, b *Bet) error
	Get(ctx context.Context, id uuid.UUID) (*Bet, error)
	// List возвращает ставки пользователя; userID == nil — все ставки.
	List(ctx context.Context, userID *uuid.UUID) ([]*Bet, error)
	Update(ctx context.Context, b *Bet) error
}

// AccountLookup находит счёт леджера с проверкой доступа.
type AccountLookup interface {
	GetAccount(ctx context.Context, actor security.Principal, id uuid.UUID) (*ledger.Account, error)
}

// Service ведёт журнал ставок.
type Service struct {
	store    Store
	accounts AccountLookup
	now      func() time.Time
}

// NewService создаёт новый сервис ставок.
func NewService(store Store, accounts AccountLookup) *Service {
	return &Service{store: store, accounts: accounts, now: time.Now}
}

// Place записывает новую ставку в статусе pending.
func (s *Service) Place(ctx context.Context, actor security.Principal, in NewBet) (*Bet, error) {
	if in.UserID == uuid.Nil {
		in.UserID = actor.UserID
	}
	if err := security.AuthorizeOwner(actor, in.UserID); err != nil {
		return nil, err
	}

	in.Sportsbook = strings.TrimSpace(in.Sportsbook)
	in.Event = strings.TrimSpace(in.Event)
	if in.Sportsbook == "" || in.Event == "" {
		return nil, common.Validation("sportsbook и event обязательны")
	}
	if !validOdds(in.Odds) {
		return nil, common.Validation("коэффициент должен быть больше 1 и меньше %s, не более 4 знаков", common.OddsLimit)
	}
	in.Selection = strings.TrimSpace(in.Selection)
	if err := checkText(map[string]string{
		"sportsbook": in.Sportsbook, "event": in.Event, "selection": in.Selection,
	}); err != nil {
		return nil, err
	}
	if !validMoney(in.Stake) {
		return nil, common.ErrInvalidAmount
	}

	if in.AccountID != nil {
		acc, err := s.accounts.GetAccount(ctx, actor, *in.AccountID)
		if err != nil {
			return nil, err
		}
		if acc.UserID != in.UserID {
			return nil, common.ErrNotOwner
		}
	}

	now := s.now().UTC()
	placedAt := now
	if in.PlacedAt != nil {
		placedAt = in.PlacedAt.UTC()
	}
	b := &Bet{
		ID:         uuid.New(),
		UserID:     in.UserID,
		AccountID:  in.AccountID,
		Sportsbook: in.Sportsbook,
		Event:      in.Event,
		Selection:  in.Selection,
		Odds:       in.Odds,
		Stake:      in.Stake,
		Status:     StatusPending,
		Notes:      in.Notes,
		PlacedAt:   placedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, common.Internal("ошибка записи ставки", err)
	}

	log.WithFields(log.Fields{
		"bet_id":     b.ID,
		"user_id":    b.UserID,
		"sportsbook": b.Sportsbook,
		"stake":      b.Stake.StringFixed(2),
	}).Info("Ставка записана")
	return b, nil
}

// Get возвращает ставку с проверкой владения.
func (s *Service) Get(ctx context.Context, actor security.Principal, id uuid.UUID) (*Bet, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, common.Internal("ошибка получения ставки", err)
	}
	if b == nil {
		return nil, common.ErrBetNotFound
	}
	if err := security.AuthorizeOwner(actor, b.UserID); err != nil {
		return nil, err
	}
	return b, nil
}

// List возвращает ставки пользователя; all=true (admin) — все ставки.
func (s *Service) List(ctx context.Context, actor security.Principal, all bool) ([]*Bet, error) {
	var scope *uuid.UUID
	if all {
		if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
			return nil, err
		}
	} else {
		scope = &actor.UserID
	}
	list, err := s.store.List(ctx, scope)
	if err != nil {
		return nil, common.Internal("ошибка получения ставок", err)
	}
	if list == nil {
		list = []*Bet{}
	}
	return list, nil
}

// Update правит ставку. Расчёт (won/lost/void) выполняется один раз:
// у рассчитанной ставки можно менять только заметки.
func (s *Service) Update(ctx context.Context, actor security.Principal, id uuid.UUID, patch BetPatch) (*Bet, error) {
	if patch.Empty() {
		return nil, common.Validation("нет полей для обновления")
	}
	if patch.Status != nil && !knownStatus(*patch.Status) {
		return nil, common.Validation("неизвестный статус %q", *patch.Status)
	}
	if patch.Payout != nil && (patch.Payout.IsNegative() || !patch.Payout.Equal(patch.Payout.Round(2)) ||
		!common.WithinMoneyLimit(*patch.Payout)) {
		return nil, common.ErrInvalidAmount
	}

	b, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if b.Settled() {
		if patch.Status != nil || patch.Payout != nil || patch.Event != nil || patch.Selection != nil {
			return nil, common.ErrBetSettled
		}
	}

	if patch.Event != nil {
		b.Event = strings.TrimSpace(*patch.Event)
		if b.Event == "" {
			return nil, common.Validation("event не может быть пустым")
		}
	}
	if patch.Selection != nil {
		b.Selection = strings.TrimSpace(*patch.Selection)
	}
	if err := checkText(map[string]string{"event": b.Event, "selection": b.Selection}); err != nil {
		return nil, err
	}
	if patch.Notes != nil {
		b.Notes = *patch.Notes
	}

	now := s.now().UTC()
	if patch.Status != nil && *patch.Status != StatusPending {
		if patch.Payout != nil && *patch.Status != StatusWon {
			return nil, common.Validation("выплата задаётся только для выигрыша")
		}
		payout := SettlePayout(*patch.Status, b.Stake, b.Odds, patch.Payout)
		if !common.WithinMoneyLimit(payout) {
			return nil, common.Validation("выплата слишком велика, укажите payout явно")
		}
		b.Status = *patch.Status
		b.Payout = &payout
		b.SettledAt = &now
	} else if patch.Payout != nil {
		return nil, common.Validation("выплата задаётся только при расчёте ставки")
	}
	b.UpdatedAt = now

	if err := s.store.Update(ctx, b); err != nil {
		return nil, common.Internal("ошибка обновления ставки", err)
	}

	if b.SettledAt != nil && b.SettledAt.Equal(now) {
		log.WithFields(log.Fields{
			"bet_id": b.ID,
			"status": b.Status,
			"payout": b.Payout.StringFixed(2),
		}).Info("Ставка рассчитана")
	}
	return b, nil
}

// Stats возвращает сводку по ставкам пользователя.
func (s *Service) Stats(ctx context.Context, actor security.Principal, userID uuid.UUID) (*Stats, error) {
	if err := security.AuthorizeOwner(actor, userID); err != nil {
		return nil, err
	}
	list, err := s.store.List(ctx, &userID)
	if err != nil {
		return nil, common.Internal("ошибка получения ставок", err)
	}
	st := Summarize(list)
	return &st, nil
}
