package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/workspace"
)

type stubMembers struct {
	roles map[uint64]string // userID -> role
}

func (s *stubMembers) CheckAccess(ctx context.Context, u *user.User, workspaceID uint64) (*workspace.Workspace, error) {
	return &workspace.Workspace{ID: workspaceID}, nil
}

func (s *stubMembers) MemberRole(ctx context.Context, userID, workspaceID uint64) (string, error) {
	role, ok := s.roles[userID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func (s *stubMembers) ListForUser(ctx context.Context, u *user.User, limit, offset int) ([]workspace.Workspace, error) {
	return nil, nil
}

func TestCanPublishRequiresOwnerRole(t *testing.T) {
	o := NewMembershipOracle(&stubMembers{roles: map[uint64]string{
		1: workspace.RoleOwner,
		2: workspace.RoleReviewer,
	}})
	ctx := context.Background()

	assert.True(t, o.CanPublishFromWorkspace(ctx, &user.User{ID: 1}, 7))
	assert.False(t, o.CanPublishFromWorkspace(ctx, &user.User{ID: 2}, 7))
	assert.False(t, o.CanPublishFromWorkspace(ctx, &user.User{ID: 3}, 7))
	assert.True(t, o.CanPublishFromWorkspace(ctx, &user.User{ID: 9, Admin: true}, 7))
	assert.False(t, o.CanPublishFromWorkspace(ctx, nil, 7))
}

func TestCanActAtStageByRole(t *testing.T) {
	o := NewMembershipOracle(&stubMembers{roles: map[uint64]string{
		1: workspace.RoleOwner,
		2: workspace.RoleReviewer,
		3: workspace.RoleMember,
	}})
	ctx := context.Background()

	assert.True(t, o.CanActAtStage(ctx, &user.User{ID: 1}, 7, workspace.StageReadyToPublish))
	assert.True(t, o.CanActAtStage(ctx, &user.User{ID: 2}, 7, 5))
	// plain members only act on records still in editing
	assert.True(t, o.CanActAtStage(ctx, &user.User{ID: 3}, 7, workspace.StageEdit))
	assert.False(t, o.CanActAtStage(ctx, &user.User{ID: 3}, 7, workspace.StageReadyToPublish))
	assert.False(t, o.CanActAtStage(ctx, &user.User{ID: 4}, 7, workspace.StageEdit))
}

func TestCanEditNeedsWorkspaceContext(t *testing.T) {
	o := NewMembershipOracle(&stubMembers{roles: map[uint64]string{1: workspace.RoleMember}})
	ctx := context.Background()

	assert.True(t, o.CanEdit(ctx, "pages", nil, &user.User{ID: 1, WorkspaceID: 7}))
	// live edits require admin rights
	assert.False(t, o.CanEdit(ctx, "pages", nil, &user.User{ID: 1, WorkspaceID: 0}))
	assert.True(t, o.CanEdit(ctx, "pages", nil, &user.User{ID: 2, Admin: true}))
	assert.False(t, o.CanEdit(ctx, "pages", nil, nil))
}
