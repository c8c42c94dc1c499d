package user

import (
	"time"
)

// User represents a backend editor account
type User struct {
	ID           uint64
	Name         string
	Email        string `gorm:"uniqueIndex"`
	Password     string `gorm:"-"` // input only, not stored in db
	PasswordHash string
	Admin        bool `gorm:"default:false"`
	// WorkspaceID is the workspace the editor currently works in (0 = live)
	WorkspaceID  uint64 `gorm:"default:0"`
	TokenVersion uint64 `gorm:"default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsActive     bool `gorm:"default:true"`
}

// SafeUser represents a user without sensitive information
type SafeUser struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Admin       bool      `json:"admin"`
	WorkspaceID uint64    `json:"workspace_id"`
	CreatedAt   time.Time `json:"created_at"`
	IsActive    bool      `json:"is_active"`
}

// ToSafeUser converts a User to a SafeUser
func (u *User) ToSafeUser() SafeUser {
	return SafeUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Admin:       u.Admin,
		WorkspaceID: u.WorkspaceID,
		CreatedAt:   u.CreatedAt,
		IsActive:    u.IsActive,
	}
}
