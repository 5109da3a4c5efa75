package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/bets"
)

// BetStore — bets.Store в памяти.
type BetStore struct {
	s *Store
}

var _ bets.Store = (*BetStore)(nil)

func cloneBet(b *bets.Bet) *bets.Bet {
	c := *b
	return &c
}

func (st *BetStore) Create(_ context.Context, b *bets.Bet) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.bets[b.ID] = cloneBet(b)
	return nil
}

func (st *BetStore) Get(_ context.Context, id uuid.UUID) (*bets.Bet, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	b, ok := st.s.bets[id]
	if !ok {
		return nil, nil
	}
	return cloneBet(b), nil
}

func (st *BetStore) List(_ context.Context, userID *uuid.UUID) ([]*bets.Bet, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	var out []*bets.Bet
	for _, b := range st.s.bets {
		if userID == nil || b.UserID == *userID {
			out = append(out, cloneBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].PlacedAt.After(out[j].PlacedAt)
	})
	return out, nil
}

func (st *BetStore) Update(_ context.Context, b *bets.Bet) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.bets[b.ID]; !ok {
		return common.ErrBetNotFound
	}
	st.s.bets[b.ID] = cloneBet(b)
	return nil
}
