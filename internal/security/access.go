// Package security содержит сервис токенов, проверку ролей
// и хеширование паролей.
package security

import (
	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/common"
)

// Role — роль пользователя.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Level возвращает порядковый уровень роли: user < admin < superadmin.
// Неизвестная роль имеет уровень 0 и не проходит ни одну проверку.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperadmin:
		return 3
	default:
		return 0
	}
}

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool { return r.Level() > 0 }

// Principal — аутентифицированный субъект запроса.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin — роль не ниже admin.
func (p Principal) IsAdmin() bool { return p.Role.Level() >= RoleAdmin.Level() }

// Authorize — чистая функция решения: разрешает, если уровень роли
// не ниже требуемого.
func Authorize(role Role, required Role) error {
	if !role.Valid() || role.Level() < required.Level() {
		return common.ErrForbidden
	}
	return nil
}

// AuthorizeOwner разрешает доступ владельцу ресурса.
// Для admin и superadmin проверка владения не выполняется.
func AuthorizeOwner(p Principal, ownerID uuid.UUID) error {
	if !p.Role.Valid() {
		return common.ErrForbidden
	}
	if p.IsAdmin() || p.UserID == ownerID {
		return nil
	}
	return common.ErrNotOwner
}
