package version

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cms-workspace-publisher/internal/errors"
	"cms-workspace-publisher/internal/user"
)

// BatchRunner executes one ordered command batch for an acting user.
type BatchRunner interface {
	Run(ctx context.Context, u *user.User, workspaceID uint64, cmds []Command) int
}

type Handler struct {
	runner BatchRunner
}

func NewHandler(runner BatchRunner) *Handler {
	return &Handler{runner: runner}
}

type CommandRequest struct {
	Action     string   `json:"action" binding:"required,oneof=swap publish setStage"`
	Table      string   `json:"table" binding:"required"`
	ID         uint64   `json:"id"`
	IDs        []uint64 `json:"ids"`
	SwapWith   uint64   `json:"swap_with"`
	StageID    int      `json:"stage_id"`
	Comment    string   `json:"comment"`
	Recipients []string `json:"recipients"`
}

type BatchRequest struct {
	WorkspaceID *uint64          `json:"workspace_id" binding:"required"`
	Commands    []CommandRequest `json:"commands" binding:"required,min=1,dive"`
}

// decodeCommand turns one wire command into its typed variant. Decoding
// happens once here; nothing downstream looks at action strings.
func decodeCommand(req CommandRequest) (Command, bool) {
	switch req.Action {
	case "swap", "publish":
		if req.ID == 0 || req.SwapWith == 0 {
			return nil, false
		}
		return Swap{
			Table:      req.Table,
			ID:         req.ID,
			SwapWith:   req.SwapWith,
			Comment:    req.Comment,
			Recipients: req.Recipients,
		}, true
	case "setStage":
		ids := req.IDs
		if len(ids) == 0 && req.ID != 0 {
			ids = []uint64{req.ID}
		}
		if len(ids) == 0 {
			return nil, false
		}
		return SetStage{
			Table:      req.Table,
			IDs:        ids,
			StageID:    req.StageID,
			Comment:    req.Comment,
			Recipients: req.Recipients,
		}, true
	}
	return nil, false
}

// RunBatch accepts a pre-ordered command batch and executes it. Per-command
// failures do not fail the request; they surface in the log stream only.
func (h *Handler) RunBatch(c *gin.Context) {
	var form BatchRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	currentUser, ok := c.Get("current_user")
	if !ok {
		c.Error(errors.Unauthorized("No acting user", nil))
		return
	}

	cmds := make([]Command, 0, len(form.Commands))
	for _, req := range form.Commands {
		cmd, ok := decodeCommand(req)
		if !ok {
			c.Error(errors.BadRequest("Malformed version command", nil))
			return
		}
		cmds = append(cmds, cmd)
	}

	handled := h.runner.Run(
		c.Request.Context(),
		currentUser.(*user.User),
		*form.WorkspaceID,
		cmds,
	)

	c.JSON(http.StatusOK, gin.H{"processed": handled})
}
