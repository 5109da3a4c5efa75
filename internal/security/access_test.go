package security

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"serotonyl.ru/betdesk/internal/common"
)

func TestAuthorize_RoleMatrix(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		allowed  bool
	}{
		{RoleUser, RoleUser, true},
		{RoleUser, RoleAdmin, false},
		{RoleUser, RoleSuperadmin, false},
		{RoleAdmin, RoleUser, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleSuperadmin, false},
		{RoleSuperadmin, RoleUser, true},
		{RoleSuperadmin, RoleAdmin, true},
		{RoleSuperadmin, RoleSuperadmin, true},
		{Role(""), RoleUser, false},
		{Role("root"), RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"->"+string(tt.required), func(t *testing.T) {
			err := Authorize(tt.role, tt.required)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, common.ErrForbidden)
			assert.Equal(t, common.KindForbidden, common.KindOf(err))
		})
	}
}

func TestAuthorizeOwner(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()

	assert.NoError(t, AuthorizeOwner(Principal{UserID: owner, Role: RoleUser}, owner))
	assert.ErrorIs(t, AuthorizeOwner(Principal{UserID: stranger, Role: RoleUser}, owner), common.ErrNotOwner)
	assert.NoError(t, AuthorizeOwner(Principal{UserID: stranger, Role: RoleAdmin}, owner))
	assert.NoError(t, AuthorizeOwner(Principal{UserID: stranger, Role: RoleSuperadmin}, owner))
	assert.ErrorIs(t, AuthorizeOwner(Principal{UserID: owner, Role: Role("guest")}, owner), common.ErrForbidden)
}
