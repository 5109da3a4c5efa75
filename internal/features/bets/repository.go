// Package bets — repository.go выполняет операции с таблицей bets.
package bets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository — реализация Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий ставок.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const betColumns = `id, user_id, account_id, sportsbook, event, selection, odds, stake, status,
	payout, notes, placed_at, settled_at, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, b *Bet) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bets (`+betColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, b.ID, b.UserID, b.AccountID, b.Sportsbook, b.Event, b.Selection, b.Odds, b.Stake, b.Status,
		b.Payout, b.Notes, b.PlacedAt, b.SettledAt, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи ставки: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Bet, error) {
	row := r.db.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ставки: %w", err)
	}
	return b, nil
}

// List возвращает ставки, последние первыми.
func (r *Repository) List(ctx context.Context, userID *uuid.UUID) ([]*Bet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+betColumns+`
		FROM bets
		WHERE ($1::uuid IS NULL OR user_id = $1)
		ORDER BY placed_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса ставок: %w", err)
	}
	defer rows.Close()

	var out []*Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ставки: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, b *Bet) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bets
		SET event = $2, selection = $3, notes = $4, status = $5, payout = $6,
		    settled_at = $7, updated_at = $8
		WHERE id = $1
	`, b.ID, b.Event, b.Selection, b.Notes, b.Status, b.Payout, b.SettledAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления ставки: %w", err)
	}
	return nil
}

func scanBet(row pgx.Row) (*Bet, error) {
	var b Bet
	err := row.Scan(&b.ID, &b.UserID, &b.AccountID, &b.Sportsbook, &b.Event, &b.Selection,
		&b.Odds, &b.Stake, &b.Status, &b.Payout, &b.Notes, &b.PlacedAt, &b.SettledAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
