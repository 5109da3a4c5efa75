// Package main — точка входа сервиса.
// Команды: serve (HTTP API + планировщик), migrate (только миграции),
// superadmin (создать первого суперадмина), hash-password (Argon2id-хеш
// для ручной вставки в БД). Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serotonyl.ru/betdesk/internal/app"
	"serotonyl.ru/betdesk/internal/config"
	"serotonyl.ru/betdesk/internal/security"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "betdesk",
		Short:         "betdesk — учёт счетов, промо-акций и ставок",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), superadminCmd(), hashPasswordCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и фоновые задачи",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// Контекст отменяется по Ctrl+C или docker stop
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("=== Сервис запускается ===")
			application, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("не удалось инициализировать приложение: %w", err)
			}
			defer application.Close()

			if err := application.Run(ctx); err != nil {
				return err
			}
			log.Info("=== Сервис остановлен ===")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StorageDriver == config.StorageMemory {
				return errors.New("migrate не нужен для STORAGE_DRIVER=memory")
			}
			if err := app.Migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			log.Info("Миграции применены")
			return nil
		},
	}
}

func superadminCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "superadmin",
		Short: "Создать суперадмина (или повысить существующего пользователя)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("SUPERADMIN_PASSWORD")
			}

			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("не удалось инициализировать приложение: %w", err)
			}
			defer application.Close()

			u, created, err := application.Users.BootstrapSuperadmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if created {
				log.WithField("email", u.Email).Info("Суперадмин создан")
			} else {
				log.WithField("email", u.Email).Info("Пользователь повышен до суперадмина")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email суперадмина")
	cmd.Flags().StringVar(&password, "password", "", "пароль (или SUPERADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// hashPasswordCmd печатает Argon2id-хеш пароля в формате users.password_hash.
func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <пароль>",
		Short: "Сгенерировать Argon2id-хеш пароля",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := security.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	// Устанавливаем уровень логирования из конфига
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}
	return cfg, nil
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
