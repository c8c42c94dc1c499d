package workspace

import "time"

// Stage ids. Custom review stages are positive; the edit stage and the two
// publish pseudo-stages carry fixed ids.
const (
	StageEdit           = 0
	StageReadyToPublish = -10
	// StagePublishExecute tags notification entries emitted by a publish
	StagePublishExecute = -20
)

// PublishAccessOnlyInPublishStage restricts publishing from the workspace to
// records sitting in the ready-to-publish stage.
const PublishAccessOnlyInPublishStage = 1

type Workspace struct {
	ID    uint64 `json:"id"`
	Title string `json:"title"`
	// StageChangeNotification enables the batched stage-change messages
	StageChangeNotification bool `json:"stage_change_notification"`
	// PublishAccess is a bitmask, see PublishAccessOnlyInPublishStage
	PublishAccess int       `json:"publish_access"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PublishRestrictedToStage reports whether records may only be published
// from the ready-to-publish stage.
func (w *Workspace) PublishRestrictedToStage() bool {
	return w.PublishAccess&PublishAccessOnlyInPublishStage != 0
}

// Member roles.
const (
	RoleMember   = "member"
	RoleReviewer = "reviewer"
	RoleOwner    = "owner"
)

type Member struct {
	ID          uint64
	WorkspaceID uint64 `gorm:"index:idx_member,unique"`
	UserID      uint64 `gorm:"index:idx_member,unique"`
	Role        string
	AddedAt     time.Time
}
