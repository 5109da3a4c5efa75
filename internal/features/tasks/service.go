// Package tasks — service.go содержит правила работы с задачами.
package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Store — хранилище задач. Get возвращает nil без ошибки, если задачи нет.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	// List возвращает задачи исполнителя; assigneeID == nil — все задачи.
	List(ctx context.Context, assigneeID *uuid.UUID) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
}

// Service управляет задачами.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService создаёт сервис задач.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create ставит задачу пользователю (admin).
func (s *Service) Create(ctx context.Context, actor security.Principal, in NewTask) (*Task, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, common.Validation("название задачи обязательно")
	}
	if err := common.CheckLen("title", title, common.MaxNameLen); err != nil {
		return nil, err
	}
	if in.AssigneeID == uuid.Nil {
		return nil, common.Validation("assigneeId обязателен")
	}

	now := s.now().UTC()
	t := &Task{
		ID:          uuid.New(),
		AssigneeID:  in.AssigneeID,
		CreatedBy:   actor.UserID,
		Title:       title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		if common.KindOf(err) != common.KindInternal {
			return nil, err
		}
		return nil, common.Internal("ошибка создания задачи", err)
	}

	log.WithFields(log.Fields{
		"task_id":  t.ID,
		"assignee": t.AssigneeID,
	}).Info("Задача создана")
	return t, nil
}

// Get возвращает задачу исполнителю или администратору.
func (s *Service) Get(ctx context.Context, actor security.Principal, id uuid.UUID) (*Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, common.Internal("ошибка получения задачи", err)
	}
	if t == nil {
		return nil, common.ErrTaskNotFound
	}
	if err := security.AuthorizeOwner(actor, t.AssigneeID); err != nil {
		return nil, err
	}
	return t, nil
}

// List возвращает свои задачи; all=true (admin) — все задачи.
func (s *Service) List(ctx context.Context, actor security.Principal, all bool) ([]*Task, error) {
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
		return nil, common.Internal("ошибка получения задач", err)
	}
	if list == nil {
		list = []*Task{}
	}
	return list, nil
}

// Update правит задачу. Исполнитель меняет только статус;
// done ставит completed_at, возврат из done его снимает.
func (s *Service) Update(ctx context.Context, actor security.Principal, id uuid.UUID, patch TaskPatch) (*Task, error) {
	if patch.Empty() {
		return nil, common.Validation("нет полей для обновления")
	}
	if !actor.IsAdmin() && !patch.onlyStatus() {
		return nil, common.ErrForbidden
	}
	if patch.Status != nil && !knownStatus(*patch.Status) {
		return nil, common.Validation("неизвестный статус %q", *patch.Status)
	}

	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
		if t.Title == "" {
			return nil, common.Validation("название задачи не может быть пустым")
		}
		if err := common.CheckLen("title", t.Title, common.MaxNameLen); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID == uuid.Nil {
			return nil, common.Validation("assigneeId не может быть пустым")
		}
		t.AssigneeID = *patch.AssigneeID
	}

	now := s.now().UTC()
	if patch.Status != nil && *patch.Status != t.Status {
		t.Status = *patch.Status
		if t.Status == StatusDone {
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = now

	if err := s.store.Update(ctx, t); err != nil {
		if common.KindOf(err) != common.KindInternal {
			return nil, err
		}
		return nil, common.Internal("ошибка обновления задачи", err)
	}
	return t, nil
}
