package version

import (
	"context"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/permission"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/refindex"
	"cms-workspace-publisher/internal/relation"
	"cms-workspace-publisher/internal/schema"
	"cms-workspace-publisher/internal/workspace"
)

// Engine implements staging and publishing of workspace records. Every
// failure is logged and turns the operation into a no-op; nothing aborts
// the surrounding batch.
type Engine struct {
	schemas    *schema.Registry
	store      record.Storage
	relations  *relation.Resolver
	perms      permission.Oracle
	workspaces workspace.Service
	audit      audit.Sink
	history    audit.HistoryStore
	refIndex   refindex.Maintainer
	events     EventBus
	cache      CacheInvalidator
}

func NewEngine(
	schemas *schema.Registry,
	store record.Storage,
	relations *relation.Resolver,
	perms permission.Oracle,
	workspaces workspace.Service,
	auditSink audit.Sink,
	history audit.HistoryStore,
	refIndex refindex.Maintainer,
	events EventBus,
	cache CacheInvalidator,
) *Engine {
	return &Engine{
		schemas:    schemas,
		store:      store,
		relations:  relations,
		perms:      perms,
		workspaces: workspaces,
		audit:      auditSink,
		history:    history,
		refIndex:   refIndex,
		events:     events,
		cache:      cache,
	}
}

func (e *Engine) logError(ctx context.Context, b *Batch, table string, id uint64, action audit.Action, severity audit.Severity, message string, params map[string]any) {
	entry := audit.Entry{
		Table:       table,
		RecordID:    id,
		Action:      action,
		Severity:    severity,
		Message:     message,
		Params:      params,
		ContainerID: -1,
	}
	if b.User != nil {
		entry.UserID = b.User.ID
	}
	e.audit.Log(ctx, entry)
}

// containerPage resolves the container record permissions are checked
// against: the record itself for container tables, its parent page else.
func (e *Engine) containerPage(ctx context.Context, tbl *schema.Table, rec *record.Record) *record.Record {
	if tbl.Container {
		return rec
	}
	if rec.PID == 0 {
		return nil
	}
	page, err := e.store.GetRow(ctx, "pages", rec.PID)
	if err != nil {
		return nil
	}
	return page
}

// SetStage moves a workspace record to another approval stage. The stage
// column is written directly, deliberately bypassing generic update hooks.
func (e *Engine) SetStage(ctx context.Context, b *Batch, table string, id uint64, stageID int, comment string, recipients []string) {
	tbl, ok := e.schemas.Get(table)
	if !ok || !tbl.Versionable {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeverityUserError,
			"Attempt to set stage for record failed: Table \"{table}\" does not support versioning",
			map[string]any{"table": table})
		return
	}
	rec, err := e.store.GetRow(ctx, table, id)
	if err != nil || rec == nil {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeverityUserError,
			"Attempt to set stage for record failed: No Record", nil)
		return
	}
	if rec.WorkspaceID == 0 {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeverityUserError,
			"Attempt to set stage for record failed: Record is not a workspace version", nil)
		return
	}
	page := e.containerPage(ctx, tbl, rec)
	if !e.perms.CanEdit(ctx, table, page, b.User) {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeverityUserError,
			"Attempt to set stage for record failed because you do not have edit access", nil)
		return
	}
	// The user must be allowed to act at the stage the record leaves, not
	// just the one it enters.
	currentStage := rec.StageID
	if !e.perms.CanActAtStage(ctx, b.User, rec.WorkspaceID, currentStage) {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeverityUserError,
			"The member user tried to set a stage value \"{stage}\" that was not allowed",
			map[string]any{"stage": stageID})
		return
	}
	if err := e.store.UpdateFields(ctx, table, id, map[string]any{"stage_id": stageID}); err != nil {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeveritySystemError,
			"Stage change for record could not be written: {error}",
			map[string]any{"error": err.Error()})
		return
	}
	e.audit.Log(ctx, audit.Entry{
		Table:    table,
		RecordID: id,
		Action:   audit.ActionVersionize,
		Severity: audit.SeverityMessage,
		Message:  "Stage for record {table}:{id} was changed to {stage}. Comment was: \"{comment}\"",
		Params: map[string]any{
			"table":   table,
			"id":      id,
			"stage":   stageID,
			"comment": truncate(comment, 100),
		},
		ContainerID: int64(rec.PID),
		UserID:      b.User.ID,
	})
	wsInfo, err := e.workspaces.CheckAccess(ctx, b.User, rec.WorkspaceID)
	if err != nil {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeverityUserError,
			"Workspace #{workspace} of the record could not be resolved",
			map[string]any{"workspace": rec.WorkspaceID})
		return
	}
	// Write the stage change to history
	if err := e.history.ChangeStage(ctx, wsInfo.ID, table, id, audit.StagePayload{
		Current:    currentStage,
		Next:       stageID,
		Comment:    comment,
		Recipients: recipients,
	}); err != nil {
		e.logError(ctx, b, table, id, audit.ActionVersionize, audit.SeveritySystemError,
			"Stage change history for record could not be written: {error}",
			map[string]any{"error": err.Error()})
	}
	if wsInfo.StageChangeNotification {
		b.Notifications.Record(wsInfo, table, id, stageID, comment, recipients)
	}
}

// truncate shortens on rune boundaries so multi-byte comments stay valid
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
