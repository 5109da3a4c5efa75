// Package users — service.go содержит бизнес-логику учётных записей.
// Сервис координирует регистрацию, подтверждение, вход, сброс пароля
// и административные действия над пользователями.
package users

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Store — хранилище учётных записей.
// Get* возвращают nil без ошибки, если запись не найдена.
type Store interface {
	// Create добавляет пользователя; занятый email — common.ErrEmailTaken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByVerificationToken(ctx context.Context, token string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)
	// Update перезаписывает изменяемые поля пользователя целиком.
	Update(ctx context.Context, u *User) error
	List(ctx context.Context) ([]*User, error)
	// ClearExpiredResetTokens стирает токены сброса, истёкшие к моменту now.
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Mailer отправляет письма со ссылками.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
	SendPasswordReset(ctx context.Context, to, link string) error
}

// Alerter оповещает администраторов о событиях.
type Alerter interface {
	Alert(ctx context.Context, text string)
}

// Options — настройки сервиса.
type Options struct {
	PasswordMinLength int
	ResetTokenTTL     time.Duration
	PublicBaseURL     string
}

// Service управляет учётными записями.
type Service struct {
	store   Store
	tokens  *security.TokenService
	mailer  Mailer
	alerter Alerter
	opts    Options
	now     func() time.Time

	// хеш-пустышка, чтобы вход несуществующего пользователя занимал столько же времени
	dummyOnce sync.Once
	dummyHash string
}

// NewService создаёт новый сервис пользователей.
func NewService(store Store, tokens *security.TokenService, mailer Mailer, alerter Alerter, opts Options) *Service {
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = 8
	}
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	return &Service{
		store:   store,
		tokens:  tokens,
		mailer:  mailer,
		alerter: alerter,
		opts:    opts,
		now:     time.Now,
	}
}

// Register создаёт учётную запись в статусе pendingVerification
// и отправляет письмо со ссылкой подтверждения.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(in.Password); err != nil {
		return nil, err
	}
	if err := checkNames(in.FirstName, in.LastName); err != nil {
		return nil, err
	}

	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, common.Internal("ошибка проверки email", err)
	}
	if existing != nil {
		return nil, common.ErrEmailTaken
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, common.Internal("ошибка хеширования пароля", err)
	}
	token, err := security.NewOpaqueToken()
	if err != nil {
		return nil, common.Internal("ошибка генерации токена", err)
	}

	now := s.now().UTC()
	u := &User{
		ID:                uuid.New(),
		Email:             email,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		PasswordHash:      hash,
		Role:              security.RoleUser,
		Status:            StatusPending,
		VerificationToken: &token,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if common.KindOf(err) == common.KindValidation {
			return nil, err
		}
		return nil, common.Internal("ошибка регистрации", err)
	}

	link := s.opts.PublicBaseURL + "/auth/verify/" + token
	if err := s.mailer.SendVerification(ctx, u.Email, link); err != nil {
		// Пользователь уже создан, письмо можно переотправить через forgot/повторную регистрацию
		log.WithError(err).WithField("user_id", u.ID).Error("Не удалось отправить письмо подтверждения")
	}
	s.alerter.Alert(ctx, fmt.Sprintf("Новый пользователь: %s (%s)", u.DisplayName(), u.Email))

	log.WithFields(log.Fields{
		"user_id": u.ID,
		"email":   u.Email,
	}).Info("Пользователь зарегистрирован")

	return u, nil
}

// Verify подтверждает email по токену.
// Повторное подтверждение активного пользователя — успех.
func (s *Service) Verify(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, common.ErrUnknownToken
	}
	u, err := s.store.GetByVerificationToken(ctx, token)
	if err != nil {
		return nil, common.Internal("ошибка поиска токена", err)
	}
	if u == nil {
		return nil, common.ErrUnknownToken
	}

	switch u.Status {
	case StatusActive:
		return u, nil
	case StatusDeactivated:
		return nil, common.ErrDeactivated
	}

	now := s.now().UTC()
	u.Status = StatusActive
	u.VerifiedAt = &now
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		return nil, common.Internal("ошибка подтверждения email", err)
	}

	log.WithField("user_id", u.ID).Info("Email подтверждён")
	return u, nil
}

// Login проверяет пароль и выпускает сессионный токен.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, common.Validation("email и пароль обязательны")
	}

	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, common.Internal("ошибка поиска пользователя", err)
	}
	if u == nil {
		security.VerifyPassword(password, s.fakeHash())
		return nil, common.ErrBadCredentials
	}
	if !security.VerifyPassword(password, u.PasswordHash) {
		log.WithField("user_id", u.ID).Warn("Неудачная попытка входа")
		return nil, common.ErrBadCredentials
	}

	switch u.Status {
	case StatusPending:
		return nil, common.ErrNotVerified
	case StatusDeactivated:
		return nil, common.ErrDeactivated
	}

	token, expiresAt, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, common.Internal("ошибка выпуска токена", err)
	}

	log.WithFields(log.Fields{
		"user_id": u.ID,
		"role":    u.Role,
	}).Info("Вход выполнен")

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Role: u.Role, User: u}, nil
}

// Forgot выдаёт токен сброса пароля. Ответ одинаков для любых email,
// чтобы не раскрывать существование учётной записи.
func (s *Service) Forgot(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		log.WithError(err).Error("Ошибка поиска пользователя для сброса пароля")
		return nil
	}
	if u == nil || u.Status == StatusDeactivated {
		return nil
	}

	token, err := security.NewOpaqueToken()
	if err != nil {
		log.WithError(err).Error("Ошибка генерации токена сброса")
		return nil
	}
	now := s.now().UTC()
	expires := now.Add(s.opts.ResetTokenTTL)
	u.ResetToken = &token
	u.ResetExpiresAt = &expires
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		log.WithError(err).WithField("user_id", u.ID).Error("Ошибка сохранения токена сброса")
		return nil
	}

	link := s.opts.PublicBaseURL + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		log.WithError(err).WithField("user_id", u.ID).Error("Не удалось отправить письмо сброса пароля")
	}
	return nil
}

// Reset устанавливает новый пароль по токену сброса.
func (s *Service) Reset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.ErrUnknownToken
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}

	u, err := s.store.GetByResetToken(ctx, token)
	if err != nil {
		return common.Internal("ошибка поиска токена", err)
	}
	now := s.now().UTC()
	if u == nil || u.ResetExpiresAt == nil || !now.Before(*u.ResetExpiresAt) {
		return common.ErrUnknownToken
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return common.Internal("ошибка хеширования пароля", err)
	}
	u.PasswordHash = hash
	u.ResetToken = nil
	u.ResetExpiresAt = nil
	u.UpdatedAt = now
	if err := s.store.Update(ctx, u); err != nil {
		return common.Internal("ошибка смены пароля", err)
	}

	log.WithField("user_id", u.ID).Info("Пароль сброшен")
	return nil
}

// Get возвращает пользователя. Обычный пользователь видит только себя.
func (s *Service) Get(ctx context.Context, actor security.Principal, id uuid.UUID) (*User, error) {
	if err := security.AuthorizeOwner(actor, id); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// List возвращает всех пользователей (admin).
func (s *Service) List(ctx context.Context, actor security.Principal) ([]*User, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, common.Internal("ошибка получения пользователей", err)
	}
	if list == nil {
		list = []*User{}
	}
	return list, nil
}

// Update правит профиль пользователя (admin). Смена статуса — только superadmin.
func (s *Service) Update(ctx context.Context, actor security.Principal, id uuid.UUID, patch UserPatch) (*User, error) {
	if err := security.Authorize(actor.Role, security.RoleAdmin); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, common.Validation("нет полей для обновления")
	}
	if patch.Status != nil {
		if err := security.Authorize(actor.Role, security.RoleSuperadmin); err != nil {
			return nil, err
		}
		if !knownStatus(*patch.Status) {
			return nil, common.Validation("неизвестный статус %q", *patch.Status)
		}
		if id == actor.UserID {
			return nil, common.ErrSelfRoleChange
		}
	}

	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(u)
	u.FirstName = strings.TrimSpace(u.FirstName)
	u.LastName = strings.TrimSpace(u.LastName)
	if err := checkNames(u.FirstName, u.LastName); err != nil {
		return nil, err
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, common.Internal("ошибка обновления пользователя", err)
	}
	return u, nil
}

// ChangeRole назначает роль (superadmin). Свою роль менять нельзя.
func (s *Service) ChangeRole(ctx context.Context, actor security.Principal, id uuid.UUID, role security.Role) (*User, error) {
	if err := security.Authorize(actor.Role, security.RoleSuperadmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, common.Validation("неизвестная роль %q", role)
	}
	if id == actor.UserID {
		return nil, common.ErrSelfRoleChange
	}

	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == role {
		return u, nil
	}

	previous := u.Role
	u.Role = role
	u.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, u); err != nil {
		return nil, common.Internal("ошибка смены роли", err)
	}

	log.WithFields(log.Fields{
		"user_id": u.ID,
		"from":    previous,
		"to":      role,
		"by":      actor.UserID,
	}).Info("Роль изменена")
	s.alerter.Alert(ctx, fmt.Sprintf("Роль %s изменена: %s → %s", u.Email, previous, role))

	return u, nil
}

// Deactivate отключает учётную запись (superadmin).
// Уже выданные токены остаются валидными до истечения.
func (s *Service) Deactivate(ctx context.Context, actor security.Principal, id uuid.UUID) (*User, error) {
	status := StatusDeactivated
	return s.Update(ctx, actor, id, UserPatch{Status: &status})
}

// BootstrapSuperadmin создаёт первого суперадмина или повышает существующего пользователя.
// Используется из CLI, поэтому проверка ролей не выполняется.
func (s *Service) BootstrapSuperadmin(ctx context.Context, email, password string) (*User, bool, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.store.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, false, common.Internal("ошибка поиска пользователя", err)
	}
	now := s.now().UTC()

	if existing != nil {
		existing.Role = security.RoleSuperadmin
		existing.Status = StatusActive
		if existing.VerifiedAt == nil {
			existing.VerifiedAt = &now
		}
		existing.UpdatedAt = now
		if err := s.store.Update(ctx, existing); err != nil {
			return nil, false, common.Internal("ошибка повышения пользователя", err)
		}
		return existing, false, nil
	}

	if err := s.checkPassword(password); err != nil {
		return nil, false, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, false, common.Internal("ошибка хеширования пароля", err)
	}
	u := &User{
		ID:           uuid.New(),
		Email:        normalized,
		PasswordHash: hash,
		Role:         security.RoleSuperadmin,
		Status:       StatusActive,
		VerifiedAt:   &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, false, common.Internal("ошибка создания суперадмина", err)
	}
	return u, true, nil
}

// PurgeExpiredResetTokens стирает истёкшие токены сброса пароля.
func (s *Service) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	return s.store.ClearExpiredResetTokens(ctx, s.now().UTC())
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, common.Internal("ошибка получения пользователя", err)
	}
	if u == nil {
		return nil, common.ErrUserNotFound
	}
	return u, nil
}

func (s *Service) checkPassword(password string) error {
	if len(password) < s.opts.PasswordMinLength {
		return common.Validation("пароль должен быть не короче %d символов", s.opts.PasswordMinLength)
	}
	return nil
}

func (s *Service) fakeHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = security.HashPassword("betdesk-dummy-password")
	})
	return s.dummyHash
}

func checkNames(first, last string) error {
	if err := common.CheckLen("firstName", strings.TrimSpace(first), common.MaxNameLen); err != nil {
		return err
	}
	return common.CheckLen("lastName", strings.TrimSpace(last), common.MaxNameLen)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", common.Validation("email обязателен")
	}
	if err := common.CheckLen("email", email, common.MaxEmailLen); err != nil {
		return "", err
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", common.Validation("некорректный email")
	}
	return email, nil
}
