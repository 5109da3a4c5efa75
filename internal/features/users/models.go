// Package users управляет учётными записями: регистрацией, подтверждением email,
// входом, сбросом пароля, ролями и статусами.
// models.go описывает структуры данных для работы с таблицей users.
package users

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/security"
)

// Статусы учётной записи
const (
	StatusPending     = "pendingVerification" // зарегистрирован, email не подтверждён
	StatusActive      = "active"              // email подтверждён
	StatusDeactivated = "deactivated"         // отключён суперадмином
)

// User — учётная запись. Секреты (хеш, токены) в JSON не попадают.
type User struct {
	ID                uuid.UUID     `json:"id"`
	Email             string        `json:"email"`
	FirstName         string        `json:"firstName"`
	LastName          string        `json:"lastName"`
	PasswordHash      string        `json:"-"`
	Role              security.Role `json:"role"`
	Status            string        `json:"status"`
	VerificationToken *string       `json:"-"` // одноразовый токен подтверждения
	VerifiedAt        *time.Time    `json:"verifiedAt,omitempty"`
	ResetToken        *string       `json:"-"` // одноразовый токен сброса пароля
	ResetExpiresAt    *time.Time    `json:"-"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// DisplayName возвращает отображаемое имя пользователя.
// Если имени нет — email.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// Principal — субъект запроса для этого пользователя.
func (u *User) Principal() security.Principal {
	return security.Principal{UserID: u.ID, Role: u.Role}
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginResult — ответ на успешный вход.
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Role      security.Role `json:"role"`
	User      *User         `json:"user"`
}

// UserPatch — административная правка пользователя.
// nil-поле означает «не менять». Status меняет только суперадмин.
type UserPatch struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Status    *string `json:"status"`
}

// Empty — в патче нет ни одного поля.
func (p UserPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Status == nil
}

// Apply переносит заданные поля патча в пользователя.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
}

func knownStatus(s string) bool {
	switch s {
	case StatusPending, StatusActive, StatusDeactivated:
		return true
	}
	return false
}
