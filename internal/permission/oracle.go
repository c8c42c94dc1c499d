package permission

import (
	"context"

	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/workspace"
)

// Oracle answers the permission questions the version engine asks. All
// checks are boolean; the engine logs and no-ops on denial.
type Oracle interface {
	// CanEdit checks edit permission on a record's container page.
	CanEdit(ctx context.Context, table string, container *record.Record, u *user.User) bool
	// CanPublishFromWorkspace checks the publish capability for a workspace.
	CanPublishFromWorkspace(ctx context.Context, u *user.User, workspaceID uint64) bool
	// CanShowPage checks read access on a container page.
	CanShowPage(ctx context.Context, page *record.Record, u *user.User) bool
	// CanActAtStage checks whether the user may act on records sitting at
	// the given stage of the workspace.
	CanActAtStage(ctx context.Context, u *user.User, workspaceID uint64, stageID int) bool
}

// MembershipOracle derives permissions from workspace membership roles.
type MembershipOracle struct {
	workspaces workspace.Service
}

func NewMembershipOracle(workspaces workspace.Service) *MembershipOracle {
	return &MembershipOracle{workspaces: workspaces}
}

func (o *MembershipOracle) CanEdit(ctx context.Context, table string, container *record.Record, u *user.User) bool {
	if u == nil {
		return false
	}
	if u.Admin {
		return true
	}
	// Editors act inside a workspace; live edits require admin rights.
	if u.WorkspaceID == 0 {
		return false
	}
	_, err := o.workspaces.MemberRole(ctx, u.ID, u.WorkspaceID)
	return err == nil
}

func (o *MembershipOracle) CanPublishFromWorkspace(ctx context.Context, u *user.User, workspaceID uint64) bool {
	if u == nil {
		return false
	}
	if u.Admin {
		return true
	}
	role, err := o.workspaces.MemberRole(ctx, u.ID, workspaceID)
	if err != nil {
		return false
	}
	return role == workspace.RoleOwner
}

func (o *MembershipOracle) CanShowPage(ctx context.Context, page *record.Record, u *user.User) bool {
	return u != nil
}

func (o *MembershipOracle) CanActAtStage(ctx context.Context, u *user.User, workspaceID uint64, stageID int) bool {
	if u == nil {
		return false
	}
	if u.Admin {
		return true
	}
	role, err := o.workspaces.MemberRole(ctx, u.ID, workspaceID)
	if err != nil {
		return false
	}
	switch role {
	case workspace.RoleOwner, workspace.RoleReviewer:
		return true
	case workspace.RoleMember:
		// plain members only act while the record still sits in editing
		return stageID == workspace.StageEdit
	}
	return false
}
