package user

import (
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(user *User) error
	FindByEmail(email string) (*User, error)
	FindByID(id uint64) (*User, error)
	UpdateWorkspace(id uint64, workspaceID uint64) error
	BumpTokenVersion(id uint64) error
}

type UserRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new user repository
func NewRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) Create(user *User) error {
	return r.db.Create(user).Error
}

func (r *UserRepositoryImpl) FindByEmail(email string) (*User, error) {
	var u User
	err := r.db.Where("email = ?", email).First(&u).Error
	return &u, err
}

func (r *UserRepositoryImpl) FindByID(id uint64) (*User, error) {
	var u User
	err := r.db.First(&u, id).Error
	return &u, err
}

func (r *UserRepositoryImpl) UpdateWorkspace(id uint64, workspaceID uint64) error {
	return r.db.Model(&User{}).
		Where("id = ?", id).
		Update("workspace_id", workspaceID).Error
}

func (r *UserRepositoryImpl) BumpTokenVersion(id uint64) error {
	return r.db.Model(&User{}).
		Where("id = ?", id).
		Update("token_version", gorm.Expr("token_version + 1")).Error
}
