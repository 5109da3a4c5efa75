// Package tasks — repository.go выполняет операции с таблицей tasks.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/db/postgres"
)

// Repository — реализация Store поверх PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий задач.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const taskColumns = `id, assignee_id, created_by, title, description, due_date, status,
	completed_at, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, t *Task) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.AssigneeID, t.CreatedBy, t.Title, t.Description, t.DueDate, t.Status,
		t.CompletedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "tasks_assignee_id_fkey") {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка создания задачи: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения задачи: %w", err)
	}
	return t, nil
}

// List возвращает задачи: сначала с ближайшим сроком, без срока — в конце.
func (r *Repository) List(ctx context.Context, assigneeID *uuid.UUID) ([]*Task, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE ($1::uuid IS NULL OR assignee_id = $1)
		ORDER BY due_date NULLS LAST, created_at, id
	`, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса задач: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования задачи: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, t *Task) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tasks
		SET assignee_id = $2, title = $3, description = $4, due_date = $5, status = $6,
		    completed_at = $7, updated_at = $8
		WHERE id = $1
	`, t.ID, t.AssigneeID, t.Title, t.Description, t.DueDate, t.Status, t.CompletedAt, t.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err, "tasks_assignee_id_fkey") {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка обновления задачи: %w", err)
	}
	return nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.AssigneeID, &t.CreatedBy, &t.Title, &t.Description, &t.DueDate,
		&t.Status, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
