// Package memory — потокобезопасное хранилище в памяти для всех фич.
// Используется в тестах и при STORAGE_DRIVER=memory.
//
// Все данные защищены одним мьютексом. Транзакции (InTx, InProgressTx)
// держат его на всё время выполнения и при ошибке восстанавливают снимок,
// так что частичных изменений не бывает.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/features/bets"
	"serotonyl.ru/betdesk/internal/features/ledger"
	"serotonyl.ru/betdesk/internal/features/promotions"
	"serotonyl.ru/betdesk/internal/features/tasks"
	"serotonyl.ru/betdesk/internal/features/users"
)

// Store хранит данные всех фич.
type Store struct {
	mu sync.Mutex

	users      map[uuid.UUID]*users.User
	emailIndex map[string]uuid.UUID // email -> userID

	accounts     map[uuid.UUID]*ledger.Account
	transactions map[uuid.UUID]*ledger.Transaction

	promotions  map[uuid.UUID]*promotions.Promotion
	assignments map[assignmentKey]promotions.Assignment
	progress    map[assignmentKey]*promotions.Progress

	bets  map[uuid.UUID]*bets.Bet
	tasks map[uuid.UUID]*tasks.Task
}

type assignmentKey struct {
	userID      uuid.UUID
	promotionID uuid.UUID
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]*users.User),
		emailIndex:   make(map[string]uuid.UUID),
		accounts:     make(map[uuid.UUID]*ledger.Account),
		transactions: make(map[uuid.UUID]*ledger.Transaction),
		promotions:   make(map[uuid.UUID]*promotions.Promotion),
		assignments:  make(map[assignmentKey]promotions.Assignment),
		progress:     make(map[assignmentKey]*promotions.Progress),
		bets:         make(map[uuid.UUID]*bets.Bet),
		tasks:        make(map[uuid.UUID]*tasks.Task),
	}
}

// Users возвращает реализацию users.Store.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Ledger возвращает реализацию ledger.Store.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// Promotions возвращает реализацию promotions.Store.
func (s *Store) Promotions() *PromotionStore { return &PromotionStore{s: s} }

// Bets возвращает реализацию bets.Store.
func (s *Store) Bets() *BetStore { return &BetStore{s: s} }

// Tasks возвращает реализацию tasks.Store.
func (s *Store) Tasks() *TaskStore { return &TaskStore{s: s} }

func cloneMap[K comparable, V any](m map[K]*V, clone func(*V) *V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}
