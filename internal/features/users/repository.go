// Package users — repository.go отвечает за все операции с таблицей users в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// NewRepository создаёт новый репозиторий пользователей.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, email, first_name, last_name, password_hash, role, status,
	verification_token, verified_at, reset_token, reset_expires_at, created_at, updated_at`

// Create добавляет пользователя. Email уникален без учёта регистра.
func (r *Repository) Create(ctx context.Context, u *User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role, u.Status,
		u.VerificationToken, u.VerifiedAt, u.ResetToken, u.ResetExpiresAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "users_email_key") {
			return common.ErrEmailTaken
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

// GetByID: nil, если не найден.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `WHERE email = LOWER($1)`, email)
}

func (r *Repository) GetByVerificationToken(ctx context.Context, token string) (*User, error) {
	return r.getOne(ctx, `WHERE verification_token = $1`, token)
}

func (r *Repository) GetByResetToken(ctx context.Context, token string) (*User, error) {
	return r.getOne(ctx, `WHERE reset_token = $1`, token)
}

// Update перезаписывает изменяемые поля целиком, форма запроса фиксирована.
func (r *Repository) Update(ctx context.Context, u *User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, password_hash = $4, role = $5, status = $6,
		    verified_at = $7, reset_token = $8, reset_expires_at = $9, updated_at = $10
		WHERE id = $1
	`, u.ID, u.FirstName, u.LastName, u.PasswordHash, u.Role, u.Status,
		u.VerifiedAt, u.ResetToken, u.ResetExpiresAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// ClearExpiredResetTokens стирает токены сброса, истёкшие к моменту now.
func (r *Repository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET reset_token = NULL, reset_expires_at = NULL, updated_at = $1
		WHERE reset_token IS NOT NULL AND reset_expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки токенов сброса: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.Status,
		&u.VerificationToken, &u.VerifiedAt, &u.ResetToken, &u.ResetExpiresAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
