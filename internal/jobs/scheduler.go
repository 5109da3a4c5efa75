// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасная очистка токенов сброса пароля
// и ежедневная архивация завершившихся промо-акций.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Расписания задач
const (
	PurgeResetTokensSpec = "0 * * * *" // каждый час
	ArchivePromotionSpec = "5 0 * * *" // ежедневно в 00:05
)

// ResetTokenPurger стирает истёкшие токены сброса пароля.
type ResetTokenPurger interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// PromotionArchiver архивирует промо-акции с прошедшей датой окончания.
type PromotionArchiver interface {
	ArchiveEnded(ctx context.Context) (int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	users      ResetTokenPurger
	promotions PromotionArchiver
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(users ResetTokenPurger, promotions PromotionArchiver) *Scheduler {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить Europe/Moscow, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &Scheduler{
		cron:       c,
		users:      users,
		promotions: promotions,
	}
}

// Start регистрирует и запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(PurgeResetTokensSpec, func() { s.PurgeResetTokens(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(ArchivePromotionSpec, func() { s.ArchivePromotions(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	log.Info("Планировщик задач запущен (Europe/Moscow)")
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// PurgeResetTokens — задача очистки токенов сброса.
func (s *Scheduler) PurgeResetTokens(ctx context.Context) {
	n, err := s.users.PurgeExpiredResetTokens(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка очистки токенов сброса")
		return
	}
	log.WithField("cleared", n).Debug("[CRON] Токены сброса очищены")
}

// ArchivePromotions — задача архивации промо-акций.
func (s *Scheduler) ArchivePromotions(ctx context.Context) {
	n, err := s.promotions.ArchiveEnded(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка архивации промо-акций")
		return
	}
	if n > 0 {
		log.WithField("archived", n).Info("[CRON] Промо-акции архивированы")
	}
}
