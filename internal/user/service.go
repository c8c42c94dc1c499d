package user

import (
	"cms-workspace-publisher/internal/errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service defines the interface for user business logic
type Service interface {
	Register(user *User) error
	Login(email, password string) (*User, error)
	GetUserByID(id uint64) (*User, error)
	SwitchWorkspace(id uint64, workspaceID uint64) error
	Logout(id uint64) error
}

// DefaultService implements Service
type DefaultService struct {
	repository UserRepository
}

// NewService creates a new user service
func NewService(repository UserRepository) Service {
	return &DefaultService{repository: repository}
}

// Register registers a new backend user
func (s *DefaultService) Register(user *User) error {
	// Check if user with email already exists
	_, err := s.repository.FindByEmail(user.Email)
	if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	if err == nil {
		return errors.UnprocessableEntity("User already registered", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	user.IsActive = true

	return s.repository.Create(user)
}

func (s *DefaultService) Login(email, password string) (*User, error) {
	u, err := s.repository.FindByEmail(email)
	if err != nil {
		return nil, errors.Unauthorized("Invalid email or password", err)
	}
	if !u.IsActive {
		return nil, errors.Unauthorized("Account is deactivated", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized("Invalid email or password", err)
	}
	return u, nil
}

func (s *DefaultService) GetUserByID(id uint64) (*User, error) {
	return s.repository.FindByID(id)
}

// SwitchWorkspace changes the workspace the editor currently acts in
func (s *DefaultService) SwitchWorkspace(id uint64, workspaceID uint64) error {
	return s.repository.UpdateWorkspace(id, workspaceID)
}

// Logout invalidates all issued tokens for the user
func (s *DefaultService) Logout(id uint64) error {
	return s.repository.BumpTokenVersion(id)
}
