package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/tasks"
)

// TaskStore — tasks.Store в памяти.
type TaskStore struct {
	s *Store
}

var _ tasks.Store = (*TaskStore)(nil)

func cloneTask(t *tasks.Task) *tasks.Task {
	c := *t
	return &c
}

func (st *TaskStore) Create(_ context.Context, t *tasks.Task) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.users[t.AssigneeID]; !ok {
		return common.ErrUserNotFound
	}
	st.s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (st *TaskStore) Get(_ context.Context, id uuid.UUID) (*tasks.Task, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	t, ok := st.s.tasks[id]
	if !ok {
		return nil, nil
	}
	return cloneTask(t), nil
}

// List сортирует как SQL-вариант: по сроку, задачи без срока — в конце.
func (st *TaskStore) List(_ context.Context, assigneeID *uuid.UUID) ([]*tasks.Task, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []*tasks.Task
	for _, t := range st.s.tasks {
		if assigneeID == nil || t.AssigneeID == *assigneeID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return earlier(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (st *TaskStore) Update(_ context.Context, t *tasks.Task) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.tasks[t.ID]; !ok {
		return common.ErrTaskNotFound
	}
	if _, ok := st.s.users[t.AssigneeID]; !ok {
		return common.ErrUserNotFound
	}
	st.s.tasks[t.ID] = cloneTask(t)
	return nil
}
