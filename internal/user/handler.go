package user

import (
	"cms-workspace-publisher/internal/auth"
	"cms-workspace-publisher/internal/errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *Handler) Register(c *gin.Context) {
	var form RegisterRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	u := &User{
		Name:     form.Name,
		Email:    form.Email,
		Password: form.Password,
	}

	if err := h.service.Register(u); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, u.ToSafeUser())
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var form LoginRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	u, err := h.service.Login(form.Email, form.Password)
	if err != nil {
		c.Error(err)
		return
	}

	token, err := auth.GenerateJWT(u.ID, u.TokenVersion)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": u.ToSafeUser()})
}

func (h *Handler) Logout(c *gin.Context) {
	userID, _ := c.Get("user_id")
	if err := h.service.Logout(userID.(uint64)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID, _ := c.Get("user_id")
	u, err := h.service.GetUserByID(userID.(uint64))
	if err != nil {
		c.Error(errors.NotFound("User not found", err))
		return
	}
	c.JSON(http.StatusOK, u.ToSafeUser())
}

type SwitchWorkspaceRequest struct {
	WorkspaceID *uint64 `json:"workspace_id" binding:"required"`
}

// SwitchWorkspace sets the workspace the editor works in from now on
func (h *Handler) SwitchWorkspace(c *gin.Context) {
	var form SwitchWorkspaceRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	userID, _ := c.Get("user_id")
	if err := h.service.SwitchWorkspace(userID.(uint64), *form.WorkspaceID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workspace_id": *form.WorkspaceID})
}
