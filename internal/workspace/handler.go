package workspace

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// List returns the workspaces the current user is a member of. Admins see
// every workspace.
func (h *Handler) List(c *gin.Context) {
	currentUser, _ := c.Get("current_user")
	u := currentUser.(*user.User)

	page, pageSize := utils.GetPaginationParams(c)
	workspaces, err := h.service.ListForUser(c.Request.Context(), u, pageSize, (page-1)*pageSize)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workspaces": workspaces,
		"page":       page,
		"per_page":   pageSize,
	})
}
