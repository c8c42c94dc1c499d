package version

import (
	"context"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/relation"
	"cms-workspace-publisher/internal/schema"
	"cms-workspace-publisher/internal/workspace"
)

// Swap publishes a workspace version: the draft record swapWith exchanges
// contents with the live record liveID. Id values are never altered, only
// row contents; the vacated draft row is deleted at the end.
func (e *Engine) Swap(ctx context.Context, b *Batch, table string, liveID, swapWith uint64, comment string, recipients []string) {
	callerWorkspace := b.WorkspaceID
	// Currently live version, contents will be removed.
	live, err := e.store.GetRow(ctx, table, liveID)
	if err != nil || live == nil {
		return
	}
	// Keep the original live version for publish history
	originalLive := live.Clone()
	tbl, ok := e.schemas.Get(table)
	if !ok || !tbl.Versionable {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeverityUserError,
			"Attempt to publish record failed: Table \"{table}\" does not support versioning",
			map[string]any{"table": table})
		return
	}
	page := e.containerPage(ctx, tbl, live)
	if !e.perms.CanEdit(ctx, table, page, b.User) {
		// Return early if online record editing is denied
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeverityUserError,
			"Error: You cannot swap versions for record {table}:{id} you do not have access to edit",
			map[string]any{"table": table, "id": liveID})
		return
	}
	if live.State == record.StateNewPlaceholder {
		// A brand-new workspace record has no live counterpart to swap
		// with; it is promoted in place instead.
		if !e.perms.CanShowPage(ctx, page, b.User) {
			e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeverityUserError,
				"You cannot publish a record you do not have edit and show permissions for", nil)
			return
		}
		e.publishNew(ctx, b, table, live, comment, recipients)
		return
	}
	draft, err := e.store.GetRow(ctx, table, swapWith)
	if err != nil || draft == nil {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeveritySystemError,
			"Error: Either online or swap version for {table}:{id}->{draftId} could not be selected",
			map[string]any{"table": table, "id": liveID, "draftId": swapWith})
		return
	}
	// Check that the draft really IS a version of the live record.
	if draft.OnlineCounterpartID == 0 || draft.OnlineCounterpartID != liveID || live.OnlineCounterpartID != 0 {
		e.logError(ctx, b, table, swapWith, audit.ActionPublish, audit.SeveritySystemError,
			"In the offline record, either the online counterpart was not set or it didn't match the id of the online version as it must", nil)
		return
	}
	workspaceID := draft.WorkspaceID
	currentStage := draft.StageID
	if !e.perms.CanPublishFromWorkspace(ctx, b.User, workspaceID) {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeverityUserError,
			"User could not publish records from workspace #{workspace}",
			map[string]any{"workspace": workspaceID})
		return
	}
	wsAccess, err := e.workspaces.CheckAccess(ctx, b.User, workspaceID)
	if err != nil {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeverityUserError,
			"Workspace #{workspace} of the record could not be resolved",
			map[string]any{"workspace": workspaceID})
		return
	}
	if workspaceID > 0 && wsAccess.PublishRestrictedToStage() && currentStage != workspace.StageReadyToPublish {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeverityUserError,
			"Records in workspace #{workspace} can only be published when in \"Publish\" stage",
			map[string]any{"workspace": workspaceID})
		return
	}
	// The draft may have been moved to another container than the live row.
	draftPage := e.containerPage(ctx, tbl, draft)
	if !e.perms.CanShowPage(ctx, draftPage, b.User) || !e.perms.CanEdit(ctx, table, draftPage, b.User) {
		e.logError(ctx, b, table, swapWith, audit.ActionPublish, audit.SeverityUserError,
			"You cannot publish a record you do not have edit and show permissions for", nil)
		return
	}
	versionState := draft.State

	// Fields whose live-side value must stay on the live id: they are
	// exchanged between the two rows, never overwritten by the draft.
	keepFields := keepFieldNames(tbl, versionState)
	newLive := draft.Clone()
	demoted := live.Clone()
	for _, name := range keepFields {
		tmp := newLive.Fields[name]
		newLive.Fields[name] = demoted.Fields[name]
		demoted.Fields[name] = tmp
	}

	// Modify offline version to become online. Moved records keep their new
	// container; everything else stays where the live record was.
	if versionState != record.StateMovePointer {
		newLive.PID = live.PID
	}
	// Counterpart pointers only make sense on offline rows, so clear them
	// before the row goes live.
	newLive.OnlineCounterpartID = 0
	newLive.WorkspaceID = 0
	newLive.StageID = 0
	newLive.State = record.StateDefault

	// Inline children need a re-sort/re-link on both sides once the parent
	// swap committed, since their ids may be remapped within this batch.
	for _, rel := range tbl.OneToMany() {
		liveChildren, err := e.relations.Children(ctx, rel, liveID, 0)
		if err != nil {
			e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeveritySystemError,
				"Could not resolve live children of relation field {field}: {error}",
				map[string]any{"field": rel.Field, "error": err.Error()})
			return
		}
		draftChildren, err := e.relations.Children(ctx, rel, swapWith, workspaceID)
		if err != nil {
			e.logError(ctx, b, table, swapWith, audit.ActionPublish, audit.SeveritySystemError,
				"Could not resolve workspace children of relation field {field}: {error}",
				map[string]any{"field": rel.Field, "error": err.Error()})
			return
		}
		if len(liveChildren) > 0 {
			b.deferSortUpdate(relation.SortUpdate{
				ParentID:          liveID,
				Relation:          rel,
				ChildIDs:          liveChildren,
				TargetWorkspaceID: callerWorkspace,
			})
		}
		if len(draftChildren) > 0 {
			b.deferSortUpdate(relation.SortUpdate{
				ParentID:          liveID,
				Relation:          rel,
				ChildIDs:          draftChildren,
				TargetWorkspaceID: 0,
			})
		}
	}
	// The draft's workspace column is already cleared in memory, so the
	// pre-swap workspace id travels as an explicit argument.
	if err := e.store.PublishManyToManyRelations(ctx, table, live, draft, workspaceID); err != nil {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeveritySystemError,
			"Publishing mm relations failed: {error}", map[string]any{"error": err.Error()})
		return
	}

	// Modify online version to become offline, tagged as the counterpart
	// of the published row.
	demoted.OnlineCounterpartID = liveID
	demoted.WorkspaceID = 0
	demoted.StageID = 0
	demoted.State = record.StateDefault

	// Execute swapping: two independent row updates, ids stay untouched.
	if err := e.store.Update(ctx, table, liveID, newLive); err != nil {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeveritySystemError,
			"Writing the published contents failed: {error}", map[string]any{"error": err.Error()})
		return
	}
	if err := e.store.Update(ctx, table, swapWith, demoted); err != nil {
		e.logError(ctx, b, table, swapWith, audit.ActionPublish, audit.SeveritySystemError,
			"Writing the demoted contents failed: {error}", map[string]any{"error": err.Error()})
		return
	}

	// Localized overlays still pointing at the draft id must follow the
	// live id now, before the draft row is deleted.
	e.repairLocalizationOverlays(ctx, b, tbl, liveID, swapWith, workspaceID)

	// Register swapped ids for later remapping
	b.remap(table, liveID, swapWith)

	if versionState == record.StateDeletePlaceholder {
		// Publishing a delete placeholder: the live record gets deleted.
		// The live row is handled as in live, so the workspace context is
		// forced to 0 for the duration of the deletion.
		b.WorkspaceID = 0
		e.deleteLiveRecord(ctx, b, tbl, liveID, newLive.PID)
		b.WorkspaceID = callerWorkspace
	}

	e.events.Publish(ctx, EventRecordPublished, PublishedEvent{Table: table, ID: liveID, WorkspaceID: workspaceID})
	e.audit.Log(ctx, audit.Entry{
		Table:    table,
		RecordID: liveID,
		Action:   audit.ActionPublish,
		Severity: audit.SeverityMessage,
		Message:  "Record \"{table}\" id {liveId}=>{versionId} was published.",
		Params:   map[string]any{"table": table, "versionId": swapWith, "liveId": liveID},
		ContainerID: int64(newLive.PID),
		UserID:      b.User.ID,
	})
	// Publish history entry with the pre-image and a diff of what changed
	if err := e.history.PublishRecord(ctx, wsAccess.ID, table, liveID, swapWith, audit.PublishPayload{
		OldRecord:   flatten(originalLive),
		Diff:        record.DiffFields(originalLive, newLive),
		WorkspaceID: workspaceID,
		Comment:     comment,
		Recipients:  recipients,
	}); err != nil {
		e.logError(ctx, b, table, liveID, audit.ActionPublish, audit.SeveritySystemError,
			"Publish history for record could not be written: {error}",
			map[string]any{"error": err.Error()})
	}

	b.Notifications.Record(wsAccess, table, liveID, workspace.StagePublishExecute, comment, recipients)

	// Clear cached output of the container
	e.cache.InvalidateContainer(ctx, newLive.PID)

	// Delete the vacated draft row. Blind delete: the delete placeholder
	// handling above may have removed it already.
	if err := e.store.Delete(ctx, table, swapWith); err != nil {
		e.logError(ctx, b, table, swapWith, audit.ActionPublish, audit.SeveritySystemError,
			"Deleting the vacated draft row failed: {error}", map[string]any{"error": err.Error()})
	}
	if !tbl.Container {
		e.deleteLocalizationOverlays(ctx, b, tbl, swapWith)
		e.audit.Log(ctx, audit.Entry{
			Table:    table,
			RecordID: swapWith,
			Action:   audit.ActionDelete,
			Severity: audit.SeverityMessage,
			Message:  "Record {table}:{id} was deleted unrecoverable from pages:{pid}",
			Params:   map[string]any{"table": table, "id": swapWith, "pid": newLive.PID},
			ContainerID: int64(newLive.PID),
			UserID:      b.User.ID,
		})
		// Index bookkeeping for the deleted side happens in the caller's
		// workspace; children of the relation may be gone as well.
		e.refIndex.Refresh(ctx, table, swapWith, callerWorkspace)
		e.refIndex.UpdateReferencesTo(ctx, table, swapWith, callerWorkspace)
	}
	// The live record could have been a workspace record in case of "new"
	e.refIndex.Refresh(ctx, table, liveID, 0)
	// The draft row is gone, so any index rows it is involved in can go too
	e.refIndex.ScheduleDrop(ctx, table, swapWith, b.WorkspaceID)
}

// publishNew promotes a new-placeholder record in place: there is no second
// row to exchange contents with, only the versioning bookkeeping is cleared.
//
// TODO: unlike Swap this skips inline relation propagation and mm
// republishing; kept that way deliberately, pending a design review of how
// new records arrive with their children.
func (e *Engine) publishNew(ctx context.Context, b *Batch, table string, rec *record.Record, comment string, recipients []string) {
	id := rec.ID
	workspaceID := rec.WorkspaceID
	tbl, _ := e.schemas.Get(table)
	if !e.perms.CanPublishFromWorkspace(ctx, b.User, workspaceID) {
		e.logError(ctx, b, table, id, audit.ActionPublish, audit.SeverityUserError,
			"User could not publish records from workspace #{workspace}",
			map[string]any{"workspace": workspaceID})
		return
	}
	wsAccess, err := e.workspaces.CheckAccess(ctx, b.User, workspaceID)
	if err != nil {
		e.logError(ctx, b, table, id, audit.ActionPublish, audit.SeverityUserError,
			"Workspace #{workspace} of the record could not be resolved",
			map[string]any{"workspace": workspaceID})
		return
	}
	if workspaceID > 0 && wsAccess.PublishRestrictedToStage() && rec.StageID != workspace.StageReadyToPublish {
		e.logError(ctx, b, table, id, audit.ActionPublish, audit.SeverityUserError,
			"Records in workspace #{workspace} can only be published when in \"Publish\" stage",
			map[string]any{"workspace": workspaceID})
		return
	}
	// Modify the versioned record to become online
	if err := e.store.UpdateFields(ctx, table, id, map[string]any{
		"online_counterpart_id": uint64(0),
		"workspace_id":          uint64(0),
		"stage_id":              0,
		"state":                 int(record.StateDefault),
	}); err != nil {
		e.logError(ctx, b, table, id, audit.ActionPublish, audit.SeveritySystemError,
			"Promoting the new record failed: {error}", map[string]any{"error": err.Error()})
		return
	}
	e.events.Publish(ctx, EventRecordPublished, PublishedEvent{Table: table, ID: id, WorkspaceID: workspaceID})
	e.audit.Log(ctx, audit.Entry{
		Table:       table,
		RecordID:    id,
		Action:      audit.ActionPublish,
		Severity:    audit.SeverityMessage,
		Message:     "Record {table}:{id} was published.",
		Params:      map[string]any{"table": table, "id": id},
		ContainerID: int64(rec.PID),
		UserID:      b.User.ID,
	})
	// The publish goes to history manually, the stage column was written raw
	if err := e.history.PublishRecord(ctx, wsAccess.ID, table, id, 0, audit.PublishPayload{
		WorkspaceID: workspaceID,
		Comment:     comment,
		Recipients:  recipients,
	}); err != nil {
		e.logError(ctx, b, table, id, audit.ActionPublish, audit.SeveritySystemError,
			"Publish history for record could not be written: {error}",
			map[string]any{"error": err.Error()})
	}
	b.Notifications.Record(wsAccess, table, id, workspace.StagePublishExecute, comment, recipients)

	e.cache.InvalidateContainer(ctx, rec.PID)
	// Drop the references in the workspace, but update them in live
	e.refIndex.ScheduleDrop(ctx, table, id, workspaceID)
	e.refIndex.Refresh(ctx, table, id, 0)
	e.refreshOverlayReferenceIndex(ctx, tbl, id, workspaceID)
	// Index rows of records pointing at the new record need re-calculation
	// for the now live identity in both workspace contexts.
	e.refIndex.RemapReferencesTo(ctx, table, id, workspaceID, 0)
	e.refIndex.UpdateReferencesTo(ctx, table, id, workspaceID)
}

// deleteLiveRecord executes the live-side deletion of a published delete
// placeholder, including its localization overlays.
func (e *Engine) deleteLiveRecord(ctx context.Context, b *Batch, tbl *schema.Table, id uint64, pid uint64) {
	if err := e.store.Delete(ctx, tbl.Name, id); err != nil {
		e.logError(ctx, b, tbl.Name, id, audit.ActionDelete, audit.SeveritySystemError,
			"Deleting the live record failed: {error}", map[string]any{"error": err.Error()})
		return
	}
	e.deleteLocalizationOverlays(ctx, b, tbl, id)
	e.audit.Log(ctx, audit.Entry{
		Table:       tbl.Name,
		RecordID:    id,
		Action:      audit.ActionDelete,
		Severity:    audit.SeverityMessage,
		Message:     "Record {table}:{id} was deleted unrecoverable from pages:{pid}",
		Params:      map[string]any{"table": tbl.Name, "id": id, "pid": pid},
		ContainerID: int64(pid),
		UserID:      b.User.ID,
	})
	e.refIndex.ScheduleDrop(ctx, tbl.Name, id, b.WorkspaceID)
}

// repairLocalizationOverlays repoints rows whose localization-parent or
// translation-source referenced the vacated draft id at the live id, within
// the source workspace.
func (e *Engine) repairLocalizationOverlays(ctx context.Context, b *Batch, tbl *schema.Table, liveID, draftID uint64, workspaceID uint64) {
	if !tbl.LanguageAware || !tbl.Versionable {
		return
	}
	pointers := map[string]uint64{}
	if tbl.LanguageParentField != "" {
		pointers[tbl.LanguageParentField] = draftID
	}
	if tbl.TranslationSourceField != "" {
		pointers[tbl.TranslationSourceField] = draftID
	}
	if len(pointers) == 0 {
		return
	}
	ws := workspaceID
	rows, err := e.store.Query(ctx, tbl.Name, record.Predicate{
		WorkspaceID:    &ws,
		AnyFieldEquals: pointers,
	})
	if err != nil {
		e.logError(ctx, b, tbl.Name, draftID, audit.ActionPublish, audit.SeveritySystemError,
			"Could not resolve localization overlays: {error}", map[string]any{"error": err.Error()})
		return
	}
	for _, row := range rows {
		updates := map[string]any{}
		if tbl.LanguageParentField != "" && row.FieldUint64(tbl.LanguageParentField) == draftID {
			updates[tbl.LanguageParentField] = liveID
		}
		if tbl.TranslationSourceField != "" && row.FieldUint64(tbl.TranslationSourceField) == draftID {
			updates[tbl.TranslationSourceField] = liveID
		}
		if len(updates) == 0 {
			continue
		}
		if err := e.store.UpdateFields(ctx, tbl.Name, row.ID, updates); err != nil {
			e.logError(ctx, b, tbl.Name, row.ID, audit.ActionPublish, audit.SeveritySystemError,
				"Repointing localization overlay failed: {error}", map[string]any{"error": err.Error()})
			continue
		}
		e.refIndex.Refresh(ctx, tbl.Name, row.ID, workspaceID)
	}
}

// refreshOverlayReferenceIndex updates the reference index of localization
// overlays after a new record was promoted.
func (e *Engine) refreshOverlayReferenceIndex(ctx context.Context, tbl *schema.Table, id uint64, workspaceID uint64) {
	if tbl == nil || !tbl.LanguageAware || !tbl.Versionable {
		return
	}
	pointers := map[string]uint64{}
	if tbl.LanguageParentField != "" {
		pointers[tbl.LanguageParentField] = id
	}
	if tbl.TranslationSourceField != "" {
		pointers[tbl.TranslationSourceField] = id
	}
	if len(pointers) == 0 {
		return
	}
	ws := workspaceID
	rows, err := e.store.Query(ctx, tbl.Name, record.Predicate{
		WorkspaceID:    &ws,
		AnyFieldEquals: pointers,
	})
	if err != nil {
		return
	}
	for _, row := range rows {
		e.refIndex.Refresh(ctx, tbl.Name, row.ID, workspaceID)
	}
}

// deleteLocalizationOverlays cascades the deletion of a row to the overlay
// rows shadowing it.
func (e *Engine) deleteLocalizationOverlays(ctx context.Context, b *Batch, tbl *schema.Table, id uint64) {
	if !tbl.LanguageAware || tbl.LanguageParentField == "" {
		return
	}
	rows, err := e.store.Query(ctx, tbl.Name, record.Predicate{
		FieldEquals: map[string]uint64{tbl.LanguageParentField: id},
	})
	if err != nil {
		e.logError(ctx, b, tbl.Name, id, audit.ActionDelete, audit.SeveritySystemError,
			"Could not resolve localization overlays for deletion: {error}",
			map[string]any{"error": err.Error()})
		return
	}
	for _, row := range rows {
		if err := e.store.Delete(ctx, tbl.Name, row.ID); err != nil {
			e.logError(ctx, b, tbl.Name, row.ID, audit.ActionDelete, audit.SeveritySystemError,
				"Deleting localization overlay failed: {error}", map[string]any{"error": err.Error()})
		}
	}
}

// keepFieldNames is the set of fields exchanged between the rows instead of
// travelling with the content: unique identity fields, plus the sort key
// unless the record was moved, the creation timestamp, and the localization
// parent pointer.
func keepFieldNames(tbl *schema.Table, state record.VersionState) []string {
	keep := tbl.KeepFields()
	if tbl.SortField != "" && state != record.StateMovePointer {
		keep = append(keep, tbl.SortField)
	}
	if tbl.CreatedAtField != "" {
		keep = append(keep, tbl.CreatedAtField)
	}
	if tbl.LanguageAware && tbl.LanguageParentField != "" {
		keep = append(keep, tbl.LanguageParentField)
	}
	return keep
}

func flatten(rec *record.Record) map[string]any {
	out := rec.Bookkeeping()
	out["id"] = rec.ID
	for name, value := range rec.Fields {
		out[name] = value
	}
	return out
}
