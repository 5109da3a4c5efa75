// Package promotions — repository.go выполняет операции с таблицами promotions,
// promotion_steps, promotion_assignments и user_promotion_progress.
package promotions

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

// NewRepository создаёт новый репозиторий промо-акций.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const promotionColumns = `p.id, p.title, p.description, p.status, p.sportsbook_name,
	p.start_date, p.end_date, p.created_by, p.created_at, p.updated_at`

const progressColumns = `id, user_id, promotion_id, completed_steps, percentage,
	started_at, completed_at, updated_at`

// CreatePromotion сохраняет акцию и её шаги одной транзакцией.
func (r *Repository) CreatePromotion(ctx context.Context, p *Promotion) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO promotions (id, title, description, status, sportsbook_name,
			                        start_date, end_date, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, p.ID, p.Title, p.Description, p.Status, p.SportsbookName,
			p.StartDate, p.EndDate, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("ошибка создания промо-акции: %w", err)
		}
		return insertSteps(ctx, tx, p.ID, p.Steps)
	})
}

// GetPromotion возвращает акцию с шагами; nil, если не найдена.
func (r *Repository) GetPromotion(ctx context.Context, id uuid.UUID) (*Promotion, error) {
	row := r.db.QueryRow(ctx, `SELECT `+promotionColumns+` FROM promotions p WHERE p.id = $1`, id)
	p, err := scanPromotion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения промо-акции: %w", err)
	}

	steps, err := r.loadSteps(ctx, []uuid.UUID{p.ID})
	if err != nil {
		return nil, err
	}
	p.Steps = steps[p.ID]
	if p.Steps == nil {
		p.Steps = []Step{}
	}
	return p, nil
}

// ListPromotions возвращает акции, новые первыми.
func (r *Repository) ListPromotions(ctx context.Context, assignedTo *uuid.UUID) ([]*Promotion, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotions p
		WHERE $1::uuid IS NULL OR EXISTS (
			SELECT 1 FROM promotion_assignments a
			WHERE a.promotion_id = p.id AND a.user_id = $1
		)
		ORDER BY p.created_at DESC, p.id
	`
	rows, err := r.db.Query(ctx, query, assignedTo)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса промо-акций: %w", err)
	}
	defer rows.Close()

	var out []*Promotion
	var ids []uuid.UUID
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования промо-акции: %w", err)
		}
		out = append(out, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	steps, err := r.loadSteps(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range out {
		p.Steps = steps[p.ID]
		if p.Steps == nil {
			p.Steps = []Step{}
		}
	}
	return out, nil
}

// UpdatePromotion перезаписывает поля акции; при replaceSteps шаги заменяются целиком.
func (r *Repository) UpdatePromotion(ctx context.Context, p *Promotion, replaceSteps bool) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE promotions
			SET title = $2, description = $3, status = $4, sportsbook_name = $5,
			    start_date = $6, end_date = $7, updated_at = $8
			WHERE id = $1
		`, p.ID, p.Title, p.Description, p.Status, p.SportsbookName,
			p.StartDate, p.EndDate, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("ошибка обновления промо-акции: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return common.ErrPromotionNotFound
		}
		if !replaceSteps {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM promotion_steps WHERE promotion_id = $1`, p.ID); err != nil {
			return fmt.Errorf("ошибка удаления шагов: %w", err)
		}
		return insertSteps(ctx, tx, p.ID, p.Steps)
	})
}

// ArchiveEnded архивирует активные акции с истёкшей end_date.
func (r *Repository) ArchiveEnded(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE promotions
		SET status = $1, updated_at = $3
		WHERE status = $2 AND end_date IS NOT NULL AND end_date < $3
	`, StatusArchived, StatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка архивации промо-акций: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Assign добавляет назначения пачкой; ON CONFLICT пропускает существующие.
func (r *Repository) Assign(ctx context.Context, assignments []Assignment) error {
	batch := &pgx.Batch{}
	for _, a := range assignments {
		batch.Queue(`
			INSERT INTO promotion_assignments (user_id, promotion_id, assigned_by, assigned_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, promotion_id) DO NOTHING
		`, a.UserID, a.PromotionID, a.AssignedBy, a.AssignedAt)
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range assignments {
			if _, err := results.Exec(); err != nil {
				results.Close()
				if postgres.IsForeignKeyViolation(err, "") {
					return common.ErrUserNotFound
				}
				return fmt.Errorf("ошибка назначения: %w", err)
			}
		}
		return results.Close()
	})
}

func (r *Repository) Unassign(ctx context.Context, promotionID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM promotion_assignments WHERE promotion_id = $1 AND user_id = $2
	`, promotionID, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка снятия назначения: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) IsAssigned(ctx context.Context, userID, promotionID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM promotion_assignments WHERE user_id = $1 AND promotion_id = $2)
	`, userID, promotionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки назначения: %w", err)
	}
	return exists, nil
}

func (r *Repository) ListAssignments(ctx context.Context, promotionID uuid.UUID) ([]Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, promotion_id, assigned_by, assigned_at
		FROM promotion_assignments
		WHERE promotion_id = $1
		ORDER BY assigned_at, user_id
	`, promotionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса назначений: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.UserID, &a.PromotionID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования назначения: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) GetProgress(ctx context.Context, userID, promotionID uuid.UUID) (*Progress, error) {
	return getProgress(ctx, r.db, userID, promotionID)
}

func (r *Repository) ListProgress(ctx context.Context, promotionID uuid.UUID) ([]*Progress, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+progressColumns+`
		FROM user_promotion_progress
		WHERE promotion_id = $1
		ORDER BY started_at, user_id
	`, promotionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса прогресса: %w", err)
	}
	defer rows.Close()

	var out []*Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования прогресса: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InProgressTx берёт advisory-блокировку на пару (user, promotion) до конца транзакции:
// параллельные записи прогресса одной пары выполняются по очереди.
func (r *Repository) InProgressTx(ctx context.Context, userID, promotionID uuid.UUID, fn func(tx ProgressTx) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"progress:"+userID.String()+":"+promotionID.String())
		if err != nil {
			return fmt.Errorf("ошибка advisory-блокировки: %w", err)
		}
		return fn(&progressTx{tx: tx, userID: userID, promotionID: promotionID})
	})
}

type progressTx struct {
	tx          pgx.Tx
	userID      uuid.UUID
	promotionID uuid.UUID
}

func (t *progressTx) Current(ctx context.Context) (*Progress, error) {
	return getProgress(ctx, t.tx, t.userID, t.promotionID)
}

func (t *progressTx) Save(ctx context.Context, p *Progress) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO user_promotion_progress (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, promotion_id) DO UPDATE
		SET completed_steps = EXCLUDED.completed_steps,
		    percentage = EXCLUDED.percentage,
		    completed_at = COALESCE(user_promotion_progress.completed_at, EXCLUDED.completed_at),
		    updated_at = EXCLUDED.updated_at
	`, p.ID, p.UserID, p.PromotionID, p.CompletedSteps, p.Percentage,
		p.StartedAt, p.CompletedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка сохранения прогресса: %w", err)
	}
	return nil
}

// querier — общее между пулом и pgx.Tx для чтения.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getProgress(ctx context.Context, db querier, userID, promotionID uuid.UUID) (*Progress, error) {
	row := db.QueryRow(ctx, `
		SELECT `+progressColumns+`
		FROM user_promotion_progress
		WHERE user_id = $1 AND promotion_id = $2
	`, userID, promotionID)
	p, err := scanProgress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения прогресса: %w", err)
	}
	return p, nil
}

func (r *Repository) loadSteps(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Step, error) {
	rows, err := r.db.Query(ctx, `
		SELECT promotion_id, step_number, title, description
		FROM promotion_steps
		WHERE promotion_id = ANY($1)
		ORDER BY promotion_id, step_number
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса шагов: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Step, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var s Step
		if err := rows.Scan(&id, &s.StepNumber, &s.Title, &s.Description); err != nil {
			return nil, fmt.Errorf("ошибка сканирования шага: %w", err)
		}
		out[id] = append(out[id], s)
	}
	return out, rows.Err()
}

func insertSteps(ctx context.Context, tx pgx.Tx, promotionID uuid.UUID, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, []any{promotionID, s.StepNumber, s.Title, s.Description})
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"promotion_steps"},
		[]string{"promotion_id", "step_number", "title", "description"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи шагов: %w", err)
	}
	return nil
}

func scanPromotion(row pgx.Row) (*Promotion, error) {
	var p Promotion
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Status, &p.SportsbookName,
		&p.StartDate, &p.EndDate, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProgress(row pgx.Row) (*Progress, error) {
	var p Progress
	err := row.Scan(&p.ID, &p.UserID, &p.PromotionID, &p.CompletedSteps, &p.Percentage,
		&p.StartedAt, &p.CompletedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.CompletedSteps == nil {
		p.CompletedSteps = []int{}
	}
	return &p, nil
}
