package app

import (
	"context"
	"fmt"

	"serotonyl.ru/betdesk/internal/config"
	"serotonyl.ru/betdesk/internal/db/postgres"
)

// Migrations возвращает схему БД по версиям. SQL встроен в код для упрощения деплоя.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{Version: 1, Name: "users", SQL: migration001Users},
		{Version: 2, Name: "ledger", SQL: migration002Ledger},
		{Version: 3, Name: "promotions", SQL: migration003Promotions},
		{Version: 4, Name: "bets", SQL: migration004Bets},
		{Version: 5, Name: "tasks", SQL: migration005Tasks},
	}
}

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email VARCHAR(320) NOT NULL,
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role VARCHAR(32) NOT NULL DEFAULT 'user',
    status VARCHAR(32) NOT NULL DEFAULT 'pendingVerification',
    verification_token VARCHAR(128),
    verified_at TIMESTAMPTZ,
    reset_token VARCHAR(128),
    reset_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT users_email_key UNIQUE (email),
    CONSTRAINT users_role_check CHECK (role IN ('user', 'admin', 'superadmin')),
    CONSTRAINT users_status_check CHECK (status IN ('pendingVerification', 'active', 'deactivated'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_verification_token ON users(verification_token)
    WHERE verification_token IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token)
    WHERE reset_token IS NOT NULL;
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS accounts (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    name VARCHAR(255) NOT NULL,
    balance NUMERIC(14,2) NOT NULL DEFAULT 0,
    source VARCHAR(32) NOT NULL DEFAULT 'manual',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_accounts_user_name ON accounts(user_id, name);

CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    from_account_id UUID REFERENCES accounts(id),
    to_account_id UUID REFERENCES accounts(id),
    amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
    type VARCHAR(32) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status VARCHAR(32) NOT NULL,
    confirmed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT transactions_has_account CHECK (from_account_id IS NOT NULL OR to_account_id IS NOT NULL)
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
`

var migration003Promotions = `
CREATE TABLE IF NOT EXISTS promotions (
    id UUID PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    status VARCHAR(32) NOT NULL DEFAULT 'active',
    sportsbook_name VARCHAR(255),
    start_date TIMESTAMPTZ,
    end_date TIMESTAMPTZ,
    created_by UUID NOT NULL REFERENCES users(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_promotions_status_end ON promotions(status, end_date);

CREATE TABLE IF NOT EXISTS promotion_steps (
    promotion_id UUID NOT NULL REFERENCES promotions(id) ON DELETE CASCADE,
    step_number INTEGER NOT NULL CHECK (step_number >= 1),
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (promotion_id, step_number)
);

CREATE TABLE IF NOT EXISTS promotion_assignments (
    user_id UUID NOT NULL REFERENCES users(id),
    promotion_id UUID NOT NULL REFERENCES promotions(id) ON DELETE CASCADE,
    assigned_by UUID NOT NULL REFERENCES users(id),
    assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, promotion_id)
);
CREATE INDEX IF NOT EXISTS idx_promotion_assignments_promotion ON promotion_assignments(promotion_id);

CREATE TABLE IF NOT EXISTS user_promotion_progress (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    promotion_id UUID NOT NULL REFERENCES promotions(id) ON DELETE CASCADE,
    completed_steps INTEGER[] NOT NULL DEFAULT '{}',
    percentage INTEGER NOT NULL DEFAULT 0 CHECK (percentage BETWEEN 0 AND 100),
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT user_promotion_progress_user_promotion_key UNIQUE (user_id, promotion_id)
);
`

var migration004Bets = `
CREATE TABLE IF NOT EXISTS bets (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    account_id UUID REFERENCES accounts(id),
    sportsbook VARCHAR(255) NOT NULL,
    event VARCHAR(255) NOT NULL,
    selection VARCHAR(255) NOT NULL DEFAULT '',
    odds NUMERIC(10,4) NOT NULL CHECK (odds > 1),
    stake NUMERIC(14,2) NOT NULL CHECK (stake > 0),
    status VARCHAR(32) NOT NULL DEFAULT 'pending',
    payout NUMERIC(14,2),
    notes TEXT NOT NULL DEFAULT '',
    placed_at TIMESTAMPTZ NOT NULL,
    settled_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bets_user_placed ON bets(user_id, placed_at DESC);
`

var migration005Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY,
    assignee_id UUID NOT NULL,
    created_by UUID NOT NULL REFERENCES users(id),
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    due_date TIMESTAMPTZ,
    status VARCHAR(32) NOT NULL DEFAULT 'open',
    completed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tasks_assignee_id_fkey FOREIGN KEY (assignee_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee_id);
`

// Migrate подключается к БД и применяет миграции без запуска сервера.
func Migrate(ctx context.Context, cfg *config.Config) error {
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	defer pool.Close()
	return postgres.RunMigrations(ctx, pool, Migrations())
}
