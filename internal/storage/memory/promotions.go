package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/promotions"
)

// PromotionStore — promotions.Store в памяти.
type PromotionStore struct {
	s *Store
}

var _ promotions.Store = (*PromotionStore)(nil)

func clonePromotion(p *promotions.Promotion) *promotions.Promotion {
	c := *p
	c.Steps = slices.Clone(p.Steps)
	if c.Steps == nil {
		c.Steps = []promotions.Step{}
	}
	return &c
}

func cloneProgress(p *promotions.Progress) *promotions.Progress {
	c := *p
	c.CompletedSteps = slices.Clone(p.CompletedSteps)
	if c.CompletedSteps == nil {
		c.CompletedSteps = []int{}
	}
	return &c
}

func (st *PromotionStore) CreatePromotion(_ context.Context, p *promotions.Promotion) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.promotions[p.ID] = clonePromotion(p)
	return nil
}

func (st *PromotionStore) GetPromotion(_ context.Context, id uuid.UUID) (*promotions.Promotion, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	p, ok := st.s.promotions[id]
	if !ok {
		return nil, nil
	}
	return clonePromotion(p), nil
}

func (st *PromotionStore) ListPromotions(_ context.Context, assignedTo *uuid.UUID) ([]*promotions.Promotion, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []*promotions.Promotion
	for _, p := range st.s.promotions {
		if assignedTo != nil {
			if _, ok := st.s.assignments[assignmentKey{*assignedTo, p.ID}]; !ok {
				continue
			}
		}
		out = append(out, clonePromotion(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (st *PromotionStore) UpdatePromotion(_ context.Context, p *promotions.Promotion, replaceSteps bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	cur, ok := st.s.promotions[p.ID]
	if !ok {
		return common.ErrPromotionNotFound
	}
	next := clonePromotion(p)
	next.CreatedBy = cur.CreatedBy
	next.CreatedAt = cur.CreatedAt
	if !replaceSteps {
		next.Steps = slices.Clone(cur.Steps)
	}
	st.s.promotions[p.ID] = next
	return nil
}

func (st *PromotionStore) ArchiveEnded(_ context.Context, now time.Time) (int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var n int64
	for _, p := range st.s.promotions {
		if p.Status == promotions.StatusActive && p.EndDate != nil && p.EndDate.Before(now) {
			p.Status = promotions.StatusArchived
			p.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// Assign проверяет существование пользователей так же, как внешний ключ в БД.
func (st *PromotionStore) Assign(_ context.Context, list []promotions.Assignment) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	for _, a := range list {
		if _, ok := st.s.users[a.UserID]; !ok {
			return common.ErrUserNotFound
		}
	}
	for _, a := range list {
		key := assignmentKey{a.UserID, a.PromotionID}
		if _, ok := st.s.assignments[key]; !ok {
			st.s.assignments[key] = a
		}
	}
	return nil
}

func (st *PromotionStore) Unassign(_ context.Context, promotionID, userID uuid.UUID) (bool, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	key := assignmentKey{userID, promotionID}
	if _, ok := st.s.assignments[key]; !ok {
		return false, nil
	}
	delete(st.s.assignments, key)
	return true, nil
}

func (st *PromotionStore) IsAssigned(_ context.Context, userID, promotionID uuid.UUID) (bool, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	_, ok := st.s.assignments[assignmentKey{userID, promotionID}]
	return ok, nil
}

func (st *PromotionStore) ListAssignments(_ context.Context, promotionID uuid.UUID) ([]promotions.Assignment, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []promotions.Assignment
	for key, a := range st.s.assignments {
		if key.promotionID == promotionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return earlier(out[i].AssignedAt, out[j].AssignedAt, out[i].UserID, out[j].UserID)
	})
	return out, nil
}

func (st *PromotionStore) GetProgress(_ context.Context, userID, promotionID uuid.UUID) (*promotions.Progress, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	p, ok := st.s.progress[assignmentKey{userID, promotionID}]
	if !ok {
		return nil, nil
	}
	return cloneProgress(p), nil
}

func (st *PromotionStore) ListProgress(_ context.Context, promotionID uuid.UUID) ([]*promotions.Progress, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []*promotions.Progress
	for key, p := range st.s.progress {
		if key.promotionID == promotionID {
			out = append(out, cloneProgress(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return earlier(out[i].StartedAt, out[j].StartedAt, out[i].UserID, out[j].UserID)
	})
	return out, nil
}

// InProgressTx держит мьютекс на время fn; при ошибке запись прогресса пары восстанавливается.
func (st *PromotionStore) InProgressTx(_ context.Context, userID, promotionID uuid.UUID, fn func(tx promotions.ProgressTx) error) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	key := assignmentKey{userID, promotionID}
	before, existed := st.s.progress[key]
	if existed {
		before = cloneProgress(before)
	}

	if err := fn(&progressTx{s: st.s, key: key}); err != nil {
		if existed {
			st.s.progress[key] = before
		} else {
			delete(st.s.progress, key)
		}
		return err
	}
	return nil
}

type progressTx struct {
	s   *Store
	key assignmentKey
}

func (t *progressTx) Current(context.Context) (*promotions.Progress, error) {
	p, ok := t.s.progress[t.key]
	if !ok {
		return nil, nil
	}
	return cloneProgress(p), nil
}

// Save повторяет семантику upsert: completed_at, однажды поставленный, не сбрасывается.
func (t *progressTx) Save(_ context.Context, p *promotions.Progress) error {
	next := cloneProgress(p)
	if cur, ok := t.s.progress[t.key]; ok {
		next.ID = cur.ID
		next.StartedAt = cur.StartedAt
		if cur.CompletedAt != nil {
			next.CompletedAt = cur.CompletedAt
		}
	}
	t.s.progress[t.key] = next
	return nil
}
