package workspace

import (
	"context"

	"gorm.io/gorm"

	"cms-workspace-publisher/internal/user"
)

// Service resolves workspace records and membership for an acting user.
type Service interface {
	// CheckAccess returns the workspace record when the user may act in it.
	CheckAccess(ctx context.Context, u *user.User, workspaceID uint64) (*Workspace, error)
	MemberRole(ctx context.Context, userID, workspaceID uint64) (string, error)
	ListForUser(ctx context.Context, u *user.User, limit, offset int) ([]Workspace, error)
}

type DefaultService struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) Service {
	return &DefaultService{db: db}
}

func (s *DefaultService) CheckAccess(ctx context.Context, u *user.User, workspaceID uint64) (*Workspace, error) {
	var ws Workspace
	if err := s.db.WithContext(ctx).First(&ws, workspaceID).Error; err != nil {
		return nil, err
	}
	if u.Admin {
		return &ws, nil
	}
	if _, err := s.MemberRole(ctx, u.ID, workspaceID); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (s *DefaultService) MemberRole(ctx context.Context, userID, workspaceID uint64) (string, error) {
	var role string
	err := s.db.WithContext(ctx).Model(&Member{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Select("role").
		Scan(&role).Error
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func (s *DefaultService) ListForUser(ctx context.Context, u *user.User, limit, offset int) ([]Workspace, error) {
	var workspaces []Workspace
	q := s.db.WithContext(ctx).Model(&Workspace{})
	if !u.Admin {
		q = q.Joins(
			"JOIN members ON members.workspace_id = workspaces.id AND members.user_id = ?",
			u.ID,
		)
	}
	err := q.Order("workspaces.id").Limit(limit).Offset(offset).Find(&workspaces).Error
	return workspaces, err
}
