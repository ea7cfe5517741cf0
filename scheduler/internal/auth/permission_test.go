package auth

import (
	"context"
	"errors"
	"testing"

	"yqhp/scheduler/internal/model"
	"yqhp/scheduler/internal/testutil"
	"yqhp/scheduler/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizer_CreatorHasEverything(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(testutil.NewDB(t))
	owner := types.UserActor(7, 1)

	require.NoError(t, a.GrantCreator(ctx, owner, model.ResourceTypeMockService, 100))
	require.NoError(t, a.GrantCreator(ctx, owner, model.ResourceTypeMockService, 100))

	for _, perm := range model.CreatorPermissions() {
		assert.NoError(t, a.Check(ctx, owner, model.ResourceTypeMockService, 100, perm))
	}
	assert.NoError(t, a.CheckModifyAuth(ctx, owner, model.ResourceTypeMockService, 100))
	assert.NoError(t, a.CheckGrantAuth(ctx, owner, model.ResourceTypeMockService, 100))

	err := a.CheckModifyAuth(ctx, owner, model.ResourceTypeExecution, 100)
	assert.True(t, errors.Is(err, types.ErrForbidden))
}

func TestAuthorizer_GrantRequiresGrantPermission(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(testutil.NewDB(t))
	owner := types.UserActor(7, 1)
	viewer := types.UserActor(8, 1)
	require.NoError(t, a.GrantCreator(ctx, owner, model.ResourceTypeExecution, 5))

	require.NoError(t, a.Grant(ctx, owner, model.ResourceTypeExecution, 5, viewer.UserID, []model.Permission{model.PermissionView}))
	assert.NoError(t, a.Check(ctx, viewer, model.ResourceTypeExecution, 5, model.PermissionView))
	assert.True(t, errors.Is(a.CheckModifyAuth(ctx, viewer, model.ResourceTypeExecution, 5), types.ErrForbidden))

	err := a.Grant(ctx, viewer, model.ResourceTypeExecution, 5, 9, []model.Permission{model.PermissionView})
	assert.True(t, errors.Is(err, types.ErrForbidden))

	require.NoError(t, a.Grant(ctx, owner, model.ResourceTypeExecution, 5, viewer.UserID, []model.Permission{model.PermissionView, model.PermissionModify}))
	assert.NoError(t, a.CheckModifyAuth(ctx, viewer, model.ResourceTypeExecution, 5))
}

func TestAuthorizer_BatchCheckPermission(t *testing.T) {
	ctx := context.Background()
	a := NewAuthorizer(testutil.NewDB(t))
	user := types.UserActor(7, 1)
	require.NoError(t, a.GrantCreator(ctx, user, model.ResourceTypeMockService, 1))
	require.NoError(t, a.GrantCreator(ctx, user, model.ResourceTypeMockService, 3))

	allowed, err := a.BatchCheckPermission(ctx, user, model.ResourceTypeMockService, []int64{1, 2, 3, 3}, model.PermissionDelete)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true, 3: true}, allowed)

	all, err := a.BatchCheckPermission(ctx, types.SystemActor(1), model.ResourceTypeMockService, []int64{1, 2}, model.PermissionDelete)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAuthorizer_SystemActorBypasses(t *testing.T) {
	a := NewAuthorizer(testutil.NewDB(t))
	assert.NoError(t, a.CheckModifyAuth(context.Background(), types.SystemActor(1), model.ResourceTypeExecution, 42))
}

func TestParseTokenStyle(t *testing.T) {
	assert.Equal(t, parseTokenStyle("uuid"), parseTokenStyle("unknown"))
	assert.NotEqual(t, parseTokenStyle("uuid"), parseTokenStyle("jwt"))
}
