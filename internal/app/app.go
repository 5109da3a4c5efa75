// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилище, создаёт сервисы, обработчики,
// планировщик и собирает всё в один объект App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/config"
	"serotonyl.ru/betdesk/internal/db/postgres"
	"serotonyl.ru/betdesk/internal/features/bets"
	"serotonyl.ru/betdesk/internal/features/ledger"
	"serotonyl.ru/betdesk/internal/features/promotions"
	"serotonyl.ru/betdesk/internal/features/tasks"
	"serotonyl.ru/betdesk/internal/features/users"
	"serotonyl.ru/betdesk/internal/jobs"
	"serotonyl.ru/betdesk/internal/notify"
	"serotonyl.ru/betdesk/internal/security"
	"serotonyl.ru/betdesk/internal/server"
	"serotonyl.ru/betdesk/internal/storage/memory"
)

// App содержит все компоненты приложения.
type App struct {
	Config    *config.Config
	Server    *server.Server
	Scheduler *jobs.Scheduler
	Users     *users.Service

	// DB задан для драйвера postgres, Memory — для memory.
	DB     *pgxpool.Pool
	Memory *memory.Store
}

// stores — реализации хранилищ всех фич.
type stores struct {
	users      users.Store
	ledger     ledger.Store
	promotions promotions.Store
	bets       bets.Store
	tasks      tasks.Store
	ping       func(ctx context.Context) error
}

// New создаёт и инициализирует приложение.
// Для postgres подключается к БД и применяет миграции.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return NewMemory(cfg), nil
	}

	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool, Migrations()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Репозитории ===
	a := build(cfg, stores{
		users:      users.NewRepository(pool),
		ledger:     ledger.NewRepository(pool),
		promotions: promotions.NewRepository(pool),
		bets:       bets.NewRepository(pool),
		tasks:      tasks.NewRepository(pool),
		ping:       pool.Ping,
	})
	a.DB = pool
	return a, nil
}

// NewMemory собирает приложение поверх хранилища в памяти.
func NewMemory(cfg *config.Config) *App {
	log.Warn("STORAGE_DRIVER=memory: данные не переживут рестарт")
	mem := memory.New()
	a := build(cfg, stores{
		users:      mem.Users(),
		ledger:     mem.Ledger(),
		promotions: mem.Promotions(),
		bets:       mem.Bets(),
		tasks:      mem.Tasks(),
	})
	a.Memory = mem
	return a
}

func build(cfg *config.Config, st stores) *App {
	tokens := security.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, security.DefaultTokenTTL)

	// === 3. Оповещения ===
	var alerter users.Alerter = notify.NopAlerter{}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramAlerter(cfg.TelegramBotToken, cfg.AdminChatIDs)
		if err != nil {
			log.WithError(err).Warn("Telegram-оповещения отключены")
		} else {
			alerter = tg
		}
	}

	// === 4. Сервисы ===
	userService := users.NewService(st.users, tokens, notify.LogMailer{}, alerter, users.Options{
		PasswordMinLength: cfg.PasswordMinLength,
		ResetTokenTTL:     cfg.ResetTokenTTL,
		PublicBaseURL:     cfg.PublicBaseURL,
	})
	ledgerService := ledger.NewService(st.ledger)
	promotionService := promotions.NewService(st.promotions, ledgerService, promotions.Options{
		RequireAssignment: cfg.PromotionsRequireAssignment,
	})

	// === 5. Обработчики ===
	deps := server.Deps{
		Config:     cfg,
		Tokens:     tokens,
		Users:      users.NewHandler(userService),
		Ledger:     ledger.NewHandler(ledgerService),
		Promotions: promotions.NewHandler(promotionService),
		Ping:       st.ping,
	}
	if cfg.FeatureBetsEnabled {
		deps.Bets = bets.NewHandler(bets.NewService(st.bets, ledgerService))
	}
	if cfg.FeatureTasksEnabled {
		deps.Tasks = tasks.NewHandler(tasks.NewService(st.tasks))
	}

	return &App{
		Config:    cfg,
		Server:    server.New(deps),
		Scheduler: jobs.NewScheduler(userService, promotionService),
		Users:     userService,
	}
}

// Run запускает планировщик и HTTP-сервер и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("ошибка запуска планировщика: %w", err)
	}
	defer a.Scheduler.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки HTTP-сервера: %w", err)
	}
	return <-errCh
}

// Close освобождает пул соединений.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
