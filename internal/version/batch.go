package version

import (
	"context"

	"cms-workspace-publisher/internal/notification"
	"cms-workspace-publisher/internal/relation"
	"cms-workspace-publisher/internal/user"
)

// EventBus publishes domain events, fire-and-forget.
type EventBus interface {
	Publish(ctx context.Context, event string, payload any)
}

// EventRecordPublished is emitted after a record went live.
const EventRecordPublished = "record.published"

// PublishedEvent is the payload of EventRecordPublished.
type PublishedEvent struct {
	Table       string `json:"table"`
	ID          uint64 `json:"id"`
	WorkspaceID uint64 `json:"workspace_id"`
}

// CacheInvalidator drops cached output for a container page.
type CacheInvalidator interface {
	InvalidateContainer(ctx context.Context, containerID uint64)
}

// Batch is the mutable state of one command-batch run. It is owned by a
// single batch execution and never shared across concurrent batches.
type Batch struct {
	User *user.User
	// WorkspaceID is the caller's workspace context. The engine temporarily
	// forces it to 0 while executing a delete placeholder.
	WorkspaceID uint64
	// RemappedIDs records swapped id pairs per table for the rest of the
	// batch, so later re-sorts follow already-swapped identities.
	RemappedIDs   map[string]map[uint64]uint64
	Notifications *notification.Batch
	Logging       bool

	deferredSorts []relation.SortUpdate
}

func NewBatch(u *user.User, workspaceID uint64) *Batch {
	return &Batch{
		User:          u,
		WorkspaceID:   workspaceID,
		RemappedIDs:   make(map[string]map[uint64]uint64),
		Notifications: notification.NewBatch(),
		Logging:       true,
	}
}

func (b *Batch) remap(table string, liveID, draftID uint64) {
	if b.RemappedIDs[table] == nil {
		b.RemappedIDs[table] = make(map[uint64]uint64)
	}
	b.RemappedIDs[table][liveID] = draftID
	b.RemappedIDs[table][draftID] = liveID
}

func (b *Batch) deferSortUpdate(su relation.SortUpdate) {
	b.deferredSorts = append(b.deferredSorts, su)
}
