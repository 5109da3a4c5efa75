package tasks_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/features/tasks"
	"serotonyl.ru/betdesk/internal/features/users"
	"serotonyl.ru/betdesk/internal/security"
	"serotonyl.ru/betdesk/internal/storage/memory"
)

func setup(t *testing.T) (*tasks.Service, security.Principal, security.Principal) {
	t.Helper()
	mem := memory.New()
	admin := security.Principal{UserID: uuid.New(), Role: security.RoleAdmin}
	user := security.Principal{UserID: uuid.New(), Role: security.RoleUser}
	for _, p := range []security.Principal{admin, user} {
		require.NoError(t, mem.Users().Create(context.Background(), &users.User{
			ID: p.UserID, Email: p.UserID.String() + "@example.com", Role: p.Role, Status: users.StatusActive,
		}))
	}
	return tasks.NewService(mem.Tasks()), admin, user
}

func TestCreate(t *testing.T) {
	svc, admin, user := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, user, tasks.NewTask{AssigneeID: user.UserID, Title: "x"})
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.Create(ctx, admin, tasks.NewTask{AssigneeID: user.UserID, Title: "  "})
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	_, err = svc.Create(ctx, admin, tasks.NewTask{AssigneeID: uuid.New(), Title: "Сверить выписку"})
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	long := strings.Repeat("x", common.MaxNameLen+1)
	_, err = svc.Create(ctx, admin, tasks.NewTask{AssigneeID: user.UserID, Title: long})
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	task, err := svc.Create(ctx, admin, tasks.NewTask{AssigneeID: user.UserID, Title: " Сверить выписку "})
	require.NoError(t, err)
	assert.Equal(t, "Сверить выписку", task.Title)
	assert.Equal(t, tasks.StatusOpen, task.Status)
	assert.Equal(t, admin.UserID, task.CreatedBy)
}

func TestAssigneeUpdatesOnlyStatus(t *testing.T) {
	svc, admin, user := setup(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, admin, tasks.NewTask{AssigneeID: user.UserID, Title: "Закрыть бонус"})
	require.NoError(t, err)

	title := "Другое"
	_, err = svc.Update(ctx, user, task.ID, tasks.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, common.ErrForbidden)

	done := tasks.StatusDone
	got, err := svc.Update(ctx, user, task.ID, tasks.TaskPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusDone, got.Status)
	require.NotNil(t, got.CompletedAt)

	reopen := tasks.StatusInProgress
	got, err = svc.Update(ctx, user, task.ID, tasks.TaskPatch{Status: &reopen})
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)

	bad := "blocked"
	_, err = svc.Update(ctx, user, task.ID, tasks.TaskPatch{Status: &bad})
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	stranger := security.Principal{UserID: uuid.New(), Role: security.RoleUser}
	_, err = svc.Update(ctx, stranger, task.ID, tasks.TaskPatch{Status: &done})
	assert.ErrorIs(t, err, common.ErrNotOwner)
}

func TestAdminReassigns(t *testing.T) {
	svc, admin, user := setup(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, admin, tasks.NewTask{AssigneeID: user.UserID, Title: "Проверить лимиты"})
	require.NoError(t, err)

	long := strings.Repeat("x", common.MaxNameLen+1)
	_, err = svc.Update(ctx, admin, task.ID, tasks.TaskPatch{Title: &long})
	assert.Equal(t, common.KindValidation, common.KindOf(err))

	ghost := uuid.New()
	_, err = svc.Update(ctx, admin, task.ID, tasks.TaskPatch{AssigneeID: &ghost})
	assert.ErrorIs(t, err, common.ErrUserNotFound)

	adminID := admin.UserID
	got, err := svc.Update(ctx, admin, task.ID, tasks.TaskPatch{AssigneeID: &adminID})
	require.NoError(t, err)
	assert.Equal(t, admin.UserID, got.AssigneeID)

	mine, err := svc.List(ctx, user, false)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = svc.List(ctx, user, true)
	assert.ErrorIs(t, err, common.ErrForbidden)

	all, err := svc.List(ctx, admin, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.Get(ctx, admin, uuid.New())
	assert.ErrorIs(t, err, common.ErrTaskNotFound)
}
