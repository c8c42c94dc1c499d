package db

import (
	"log"

	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/workspace"
)

// SeedData seeds the database with initial data (for development only)
func SeedData() {
	userRepo := user.NewRepository(AppDb)

	testUser := &user.User{
		Name:     "Test Editor",
		Email:    "editor@example.com",
		Password: "password123",
		IsActive: true,
	}

	// Check if user exists
	existing, err := userRepo.FindByEmail(testUser.Email)
	if err != nil {
		userService := user.NewService(userRepo)
		// User doesn't exist, create it
		if err := userService.Register(testUser); err != nil {
			log.Printf("Error creating test user: %v", err)
			return
		}
		log.Printf("Created test user: %s", testUser.Email)
	} else {
		log.Printf("Test user already exists: %s", testUser.Email)
		testUser = existing
	}

	var count int64
	AppDb.Model(&workspace.Workspace{}).Count(&count)
	if count > 0 {
		return
	}

	ws := &workspace.Workspace{
		Title:                   "Draft Workspace",
		StageChangeNotification: true,
	}
	if err := AppDb.Create(ws).Error; err != nil {
		log.Printf("Error creating seed workspace: %v", err)
		return
	}
	member := &workspace.Member{
		WorkspaceID: ws.ID,
		UserID:      testUser.ID,
		Role:        workspace.RoleOwner,
	}
	if err := AppDb.Create(member).Error; err != nil {
		log.Printf("Error adding seed workspace member: %v", err)
		return
	}
	log.Printf("Created seed workspace %q owned by %s", ws.Title, testUser.Email)
}
