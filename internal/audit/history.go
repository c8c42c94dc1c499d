package audit

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// StagePayload records a stage transition in the history stream.
type StagePayload struct {
	Current    int      `json:"current"`
	Next       int      `json:"next"`
	Comment    string   `json:"comment"`
	Recipients []string `json:"recipients"`
}

// PublishPayload records a publish with the pre-image and the value diff of
// the post-image.
type PublishPayload struct {
	OldRecord   map[string]any `json:"old_record"`
	Diff        map[string]any `json:"diff"`
	WorkspaceID uint64         `json:"workspace_id"`
	Comment     string         `json:"comment"`
	Recipients  []string       `json:"recipients"`
}

// HistoryStore persists the per-record change history the engine writes
// manually, since it bypasses the generic update path.
type HistoryStore interface {
	ChangeStage(ctx context.Context, workspaceID uint64, table string, id uint64, payload StagePayload) error
	PublishRecord(ctx context.Context, workspaceID uint64, table string, liveID, draftID uint64, payload PublishPayload) error
}

type HistoryRow struct {
	ID          uint64
	Kind        string
	RecordTable string `gorm:"column:table_name"`
	RecordID    uint64
	DraftID     uint64
	WorkspaceID uint64
	Payload     []byte `gorm:"type:jsonb"`
	CreatedAt   time.Time
}

func (HistoryRow) TableName() string { return "record_history" }

type GormHistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *GormHistoryStore {
	return &GormHistoryStore{db: db}
}

func (s *GormHistoryStore) ChangeStage(ctx context.Context, workspaceID uint64, table string, id uint64, payload StagePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&HistoryRow{
		Kind:        "stage_change",
		RecordTable: table,
		RecordID:    id,
		WorkspaceID: workspaceID,
		Payload:     body,
	}).Error
}

func (s *GormHistoryStore) PublishRecord(ctx context.Context, workspaceID uint64, table string, liveID, draftID uint64, payload PublishPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&HistoryRow{
		Kind:        "publish",
		RecordTable: table,
		RecordID:    liveID,
		DraftID:     draftID,
		WorkspaceID: workspaceID,
		Payload:     body,
	}).Error
}
