package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/users"
)

// UserStore — users.Store в памяти.
type UserStore struct {
	s *Store
}

var _ users.Store = (*UserStore)(nil)

func cloneUser(u *users.User) *users.User {
	c := *u
	return &c
}

func (st *UserStore) Create(_ context.Context, u *users.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := st.s.emailIndex[email]; ok {
		return common.ErrEmailTaken
	}
	st.s.users[u.ID] = cloneUser(u)
	st.s.emailIndex[email] = u.ID
	return nil
}

func (st *UserStore) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.find(func(u *users.User) bool { return u.ID == id }), nil
}

func (st *UserStore) GetByEmail(_ context.Context, email string) (*users.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	id, ok := st.s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return cloneUser(st.s.users[id]), nil
}

func (st *UserStore) GetByVerificationToken(_ context.Context, token string) (*users.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.find(func(u *users.User) bool {
		return u.VerificationToken != nil && *u.VerificationToken == token
	}), nil
}

func (st *UserStore) GetByResetToken(_ context.Context, token string) (*users.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	return st.find(func(u *users.User) bool {
		return u.ResetToken != nil && *u.ResetToken == token
	}), nil
}

// Update не меняет email и токен подтверждения, как и SQL-вариант.
func (st *UserStore) Update(_ context.Context, u *users.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	cur, ok := st.s.users[u.ID]
	if !ok {
		return common.ErrUserNotFound
	}
	next := cloneUser(u)
	next.Email = cur.Email
	next.VerificationToken = cur.VerificationToken
	next.CreatedAt = cur.CreatedAt
	st.s.users[u.ID] = next
	return nil
}

func (st *UserStore) List(_ context.Context) ([]*users.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	out := make([]*users.User, 0, len(st.s.users))
	for _, u := range st.s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (st *UserStore) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var n int64
	for _, u := range st.s.users {
		if u.ResetToken != nil && u.ResetExpiresAt != nil && !u.ResetExpiresAt.After(now) {
			u.ResetToken = nil
			u.ResetExpiresAt = nil
			u.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (st *UserStore) find(match func(*users.User) bool) *users.User {
	for _, u := range st.s.users {
		if match(u) {
			return cloneUser(u)
		}
	}
	return nil
}
