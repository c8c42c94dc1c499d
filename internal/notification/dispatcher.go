package notification

import (
	"context"
	"strings"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/workspace"
)

// AffectedElement carries the full record payload of one element, fetched
// at flush time since the row may have changed further during the batch.
type AffectedElement struct {
	Table  string         `json:"table"`
	ID     uint64         `json:"id"`
	Record map[string]any `json:"record"`
}

// Message is one grouped stage-change notification.
type Message struct {
	Workspace  *workspace.Workspace `json:"workspace"`
	StageID    int                  `json:"stage_id"`
	Comment    string               `json:"comment"`
	Recipients []string             `json:"recipients"`
	Elements   []AffectedElement    `json:"elements"`
	Actor      user.SafeUser        `json:"actor"`
}

// Sink delivers one grouped message, fire-and-forget from the engine's
// point of view.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher flushes a notification batch: one message per group.
type Dispatcher struct {
	store record.Storage
	sink  Sink
	audit audit.Sink
	// Logging controls the per-element recipient log line
	Logging bool
}

func NewDispatcher(store record.Storage, sink Sink, auditSink audit.Sink) *Dispatcher {
	return &Dispatcher{store: store, sink: sink, audit: auditSink, Logging: true}
}

// Flush emits one message per accumulated group and clears the batch.
func (d *Dispatcher) Flush(ctx context.Context, b *Batch, actor *user.User) {
	for _, key := range b.order {
		g := b.groups[key]
		elements := make([]AffectedElement, 0, len(g.elements))
		for _, el := range g.elements {
			affected := AffectedElement{Table: el.Table, ID: el.ID}
			rec, err := d.store.GetRow(ctx, el.Table, el.ID)
			if err == nil && rec != nil {
				payload := rec.Bookkeeping()
				payload["id"] = rec.ID
				for name, value := range rec.Fields {
					payload[name] = value
				}
				affected.Record = payload
			}
			elements = append(elements, affected)
		}

		msg := Message{
			Workspace:  g.workspace,
			StageID:    g.stageID,
			Comment:    g.comment,
			Recipients: g.recipients,
			Elements:   elements,
			Actor:      actor.ToSafeUser(),
		}
		if err := d.sink.Send(ctx, msg); err != nil {
			d.audit.Log(ctx, audit.Entry{
				Table:       "workspaces",
				RecordID:    g.workspace.ID,
				Action:      audit.ActionVersionize,
				Severity:    audit.SeverityUserError,
				Message:     "Stage change notification could not be delivered",
				Params:      map[string]any{"error": err.Error()},
				ContainerID: -1,
				UserID:      actor.ID,
			})
			continue
		}
		if d.Logging {
			for _, el := range elements {
				containerID := int64(-1)
				if el.Record != nil {
					if pid, ok := el.Record["pid"].(uint64); ok {
						containerID = int64(pid)
					}
				}
				d.audit.Log(ctx, audit.Entry{
					Table:    el.Table,
					RecordID: el.ID,
					Action:   audit.ActionVersionize,
					Severity: audit.SeverityMessage,
					Message:  "Notification for stage change was sent to \"{recipients}\"",
					Params: map[string]any{
						"recipients": strings.Join(g.recipients, "\", \""),
					},
					ContainerID: containerID,
					UserID:      actor.ID,
				})
			}
		}
	}
	b.Reset()
}
