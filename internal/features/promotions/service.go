// Package promotions — service.go содержит бизнес-логику промо-акций
// и движок прогресса по шагам.
package promotions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/ledger"
	"serotonyl.ru/betdesk/internal/metrics"
	"serotonyl.ru/betdesk/internal/security"
)

// Store — хранилище промо-акций. Get* возвращают nil без ошибки, если записи нет.
type Store interface {
	// CreatePromotion сохраняет акцию вместе с шагами.
	CreatePromotion(ctx context.Context, p *Promotion) error
	GetPromotion(ctx context.Context, id uuid.UUID) (*Promotion, error)
	// ListPromotions возвращает все акции; assignedTo != nil — только назначенные пользователю.
	ListPromotions(ctx context.Context, assignedTo *uuid.UUID) ([]*Promotion, error)
	// UpdatePromotion перезаписывает поля акции; replaceSteps — заменить и шаги.
	UpdatePromotion(ctx context.Context, p *Promotion, replaceSteps bool) error
	// ArchiveEnded переводит в archived активные акции с end_date раньше now.
	ArchiveEnded(ctx context.Context, now time.Time) (int64, error)

	// Assign добавляет назначения; существующие пропускаются.
	Assign(ctx context.Context, assignments []Assignment) error
	Unassign(ctx context.Context, promotionID, userID uuid.UUID) (bool, error)
	IsAssigned(ctx context.Context, userID, promotionID uuid.UUID) (bool, error)
	ListAssignments(ctx context.Context, promotionID uuid.UUID) ([]Assignment, error)

	GetProgress(ctx context.Context, userID, promotionID uuid.UUID) (*Progress, error)
	ListProgress(ctx context.Context, promotionID uuid.UUID) ([]*Progress, error)
	// InProgressTx выполняет fn в транзакции, сериализованной по паре (user, promotion).
	InProgressTx(ctx context.Context, userID, promotionID uuid.UUID, fn func(tx ProgressTx) error) error
}

// ProgressTx — операции над строкой прогресса внутри InProgressTx.
type ProgressTx interface {
	// Current возвращает текущий прогресс пары; nil, если записи ещё нет.
	Current(ctx context.Context) (*Progress, error)
	// Save вставляет или обновляет запись прогресса.
	Save(ctx context.Context, p *Progress) error
}

// AccountProvisioner создаёт счёт пользователя, если счёта с таким именем ещё нет.
type AccountProvisioner interface {
	EnsureAccount(ctx context.Context, ownerID uuid.UUID, name string) (*ledger.Account, bool, error)
}

// Options — настройки сервиса.
type Options struct {
	// RequireAssignment: прогресс и просмотр акции только для назначенных пользователей.
	RequireAssignment bool
}

// Service управляет промо-акциями и прогрессом.
type Service struct {
	store    Store
	accounts AccountProvisioner
	opts     Options
	now      func() time.Time
}

// NewService создаёт новый сервис промо-акций.
func NewService(store Store, accounts AccountProvisioner, opts Options) *Service {
	return &Service{store: store, accounts: accounts, opts: opts, now: time.Now}
}

// Create создаёт промо-акцию (admin).
func (s *Service) Create(ctx context.Context, actor security.Principal, in NewPromotion) (*Promotion, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &Promotion{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      StatusActive,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Steps:       in.Steps,
	}
	if in.SportsbookName != nil {
		PromotionPatch{SportsbookName: in.SportsbookName}.Apply(p)
	}
	if p.StartDate == nil {
		p.StartDate = &now
	}
	if err := validatePromotion(p); err != nil {
		return nil, err
	}

	if err := s.store.CreatePromotion(ctx, p); err != nil {
		return nil, common.Internal("ошибка создания промо-акции", err)
	}

	log.WithFields(log.Fields{
		"promotion_id": p.ID,
		"steps":        len(p.Steps),
		"by":           actor.UserID,
	}).Info("Промо-акция создана")
	return p, nil
}

// Get возвращает акцию. Пользователь без назначения получает ErrNotAssigned.
func (s *Service) Get(ctx context.Context, actor security.Principal, id uuid.UUID) (*Promotion, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if err := s.checkAssigned(ctx, actor.UserID, id); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// List возвращает акции: все для admin, назначенные — для пользователя.
func (s *Service) List(ctx context.Context, actor security.Principal) ([]*Promotion, error) {
	var scope *uuid.UUID
	if !actor.IsAdmin() && s.opts.RequireAssignment {
		scope = &actor.UserID
	}
	list, err := s.store.ListPromotions(ctx, scope)
	if err != nil {
		return nil, common.Internal("ошибка получения промо-акций", err)
	}
	if list == nil {
		list = []*Promotion{}
	}
	return list, nil
}

// Update правит акцию (admin).
func (s *Service) Update(ctx context.Context, actor security.Principal, id uuid.UUID, patch PromotionPatch) (*Promotion, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, common.Validation("нет полей для обновления")
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(p)
	p.Title = strings.TrimSpace(p.Title)
	if err := validatePromotion(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdatePromotion(ctx, p, patch.Steps != nil); err != nil {
		return nil, common.Internal("ошибка обновления промо-акции", err)
	}
	return p, nil
}

// Assign назначает акцию пользователям (admin). Повторное назначение не ошибка.
func (s *Service) Assign(ctx context.Context, actor security.Principal, promotionID uuid.UUID, userIDs []uuid.UUID) ([]Assignment, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, common.Validation("список пользователей пуст")
	}
	if _, err := s.load(ctx, promotionID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	assignments := make([]Assignment, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == uuid.Nil {
			return nil, common.Validation("пустой id пользователя")
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		assignments = append(assignments, Assignment{
			UserID:      uid,
			PromotionID: promotionID,
			AssignedBy:  actor.UserID,
			AssignedAt:  now,
		})
	}

	if err := s.store.Assign(ctx, assignments); err != nil {
		return nil, wrapStoreErr("ошибка назначения промо-акции", err)
	}

	log.WithFields(log.Fields{
		"promotion_id": promotionID,
		"users":        len(assignments),
	}).Info("Промо-акция назначена")
	return assignments, nil
}

// Unassign снимает назначение (admin). Прогресс пользователя сохраняется.
func (s *Service) Unassign(ctx context.Context, actor security.Principal, promotionID, userID uuid.UUID) error {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return err
	}
	removed, err := s.store.Unassign(ctx, promotionID, userID)
	if err != nil {
		return common.Internal("ошибка снятия назначения", err)
	}
	if !removed {
		return common.ErrNotAssigned
	}
	return nil
}

// ListAssignments возвращает назначения акции (admin).
func (s *Service) ListAssignments(ctx context.Context, actor security.Principal, promotionID uuid.UUID) ([]Assignment, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	list, err := s.store.ListAssignments(ctx, promotionID)
	if err != nil {
		return nil, common.Internal("ошибка получения назначений", err)
	}
	if list == nil {
		list = []Assignment{}
	}
	return list, nil
}

// RecordProgress записывает набор выполненных шагов пользователя.
//
// Алгоритм:
//  1. Проверяем владение и назначение
//  2. Убираем повторы, проверяем номера шагов
//  3. percentage = floor(100 * выполнено / всего), 0 если шагов нет
//  4. Шаг 1 и указана букмекерская контора — создаём счёт с её именем (идемпотентно)
//  5. Первый вызов создаёт запись со started_at, дальше обновление на месте
//  6. completed_at ставится один раз при переходе в 100%
func (s *Service) RecordProgress(ctx context.Context, actor security.Principal, userID, promotionID uuid.UUID, completedSteps []int) (*Progress, error) {
	if err := security.AuthorizeOwner(actor, userID); err != nil {
		return nil, err
	}

	promo, err := s.load(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssigned(ctx, userID, promotionID); err != nil {
		return nil, err
	}

	steps := normalizeSteps(completedSteps)
	for _, n := range steps {
		if n < 1 {
			return nil, common.Validation("номер шага должен быть не меньше 1")
		}
		if len(promo.Steps) > 0 && !promo.HasStep(n) {
			return nil, common.Validation("шаг %d не описан в промо-акции", n)
		}
	}
	percentage := Percentage(len(steps), len(promo.Steps))

	// Счёт создаётся до записи прогресса: повтор запроса после сбоя доведёт дело до конца
	if sportsbook := promo.Sportsbook(); sportsbook != "" && containsStep(steps, FirstStep) {
		if _, _, err := s.accounts.EnsureAccount(ctx, userID, sportsbook); err != nil {
			return nil, wrapStoreErr("ошибка создания счёта букмекера", err)
		}
	}

	var result *Progress
	var justCompleted bool
	err = s.store.InProgressTx(ctx, userID, promotionID, func(tx ProgressTx) error {
		current, err := tx.Current(ctx)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if current == nil {
			current = &Progress{
				ID:          uuid.New(),
				UserID:      userID,
				PromotionID: promotionID,
				StartedAt:   now,
			}
		} else if slices.Equal(current.CompletedSteps, steps) && current.Percentage == percentage {
			result = current
			return nil
		}

		current.CompletedSteps = steps
		current.Percentage = percentage
		current.UpdatedAt = now
		if percentage == 100 && current.CompletedAt == nil {
			current.CompletedAt = &now
			justCompleted = true
		}

		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr("ошибка записи прогресса", err)
	}

	if justCompleted {
		metrics.PromotionsCompleted.Inc()
		log.WithFields(log.Fields{
			"user_id":      userID,
			"promotion_id": promotionID,
		}).Info("Промо-акция выполнена")
	}
	return result, nil
}

// GetProgress возвращает прогресс пользователя по акции.
func (s *Service) GetProgress(ctx context.Context, actor security.Principal, userID, promotionID uuid.UUID) (*Progress, error) {
	if err := security.AuthorizeOwner(actor, userID); err != nil {
		return nil, err
	}
	p, err := s.store.GetProgress(ctx, userID, promotionID)
	if err != nil {
		return nil, common.Internal("ошибка получения прогресса", err)
	}
	if p == nil {
		return nil, common.ErrProgressNotFound
	}
	return p, nil
}

// ListProgress возвращает прогресс всех пользователей по акции (admin).
func (s *Service) ListProgress(ctx context.Context, actor security.Principal, promotionID uuid.UUID) ([]*Progress, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, promotionID); err != nil {
		return nil, err
	}
	list, err := s.store.ListProgress(ctx, promotionID)
	if err != nil {
		return nil, common.Internal("ошибка получения прогресса", err)
	}
	if list == nil {
		list = []*Progress{}
	}
	return list, nil
}

// ArchiveEnded архивирует акции с прошедшей датой окончания. Запускается кроном.
func (s *Service) ArchiveEnded(ctx context.Context) (int64, error) {
	n, err := s.store.ArchiveEnded(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("ошибка архивации промо-акций: %w", err)
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Promotion, error) {
	p, err := s.store.GetPromotion(ctx, id)
	if err != nil {
		return nil, common.Internal("ошибка получения промо-акции", err)
	}
	if p == nil {
		return nil, common.ErrPromotionNotFound
	}
	return p, nil
}

func (s *Service) checkAssigned(ctx context.Context, userID, promotionID uuid.UUID) error {
	if !s.opts.RequireAssignment {
		return nil
	}
	ok, err := s.store.IsAssigned(ctx, userID, promotionID)
	if err != nil {
		return common.Internal("ошибка проверки назначения", err)
	}
	if !ok {
		return common.ErrNotAssigned
	}
	return nil
}

func validatePromotion(p *Promotion) error {
	if p.Title == "" {
		return common.Validation("название промо-акции обязательно")
	}
	if err := common.CheckLen("title", p.Title, common.MaxNameLen); err != nil {
		return err
	}
	if p.SportsbookName != nil {
		if err := common.CheckLen("sportsbookName", *p.SportsbookName, common.MaxNameLen); err != nil {
			return err
		}
	}
	if !knownStatus(p.Status) {
		return common.Validation("неизвестный статус %q", p.Status)
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return common.Validation("дата окончания раньше даты начала")
	}
	if p.Steps == nil {
		p.Steps = []Step{}
	}
	seen := make(map[int]struct{}, len(p.Steps))
	for i := range p.Steps {
		n := p.Steps[i].StepNumber
		if n < 1 {
			return common.Validation("номер шага должен быть не меньше 1")
		}
		if _, ok := seen[n]; ok {
			return common.Validation("шаг %d повторяется", n)
		}
		seen[n] = struct{}{}
		p.Steps[i].Title = strings.TrimSpace(p.Steps[i].Title)
		if err := common.CheckLen("steps.title", p.Steps[i].Title, common.MaxNameLen); err != nil {
			return err
		}
	}
	slices.SortFunc(p.Steps, func(a, b Step) int { return a.StepNumber - b.StepNumber })
	return nil
}

func wrapStoreErr(msg string, err error) error {
	if common.KindOf(err) != common.KindInternal {
		return err
	}
	return common.Internal(msg, err)
}
