package version

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/workspace"
)

func seedPagePair(te *testEngine) {
	te.store.put("pages", &record.Record{
		ID: 1, PID: 0, WorkspaceID: 0,
		Fields: map[string]any{
			"title":    "Live title",
			"slug":     "/home",
			"page_key": "uuid-live",
			"sorting":  uint64(16),
			"crdate":   uint64(1000),
		},
	})
	te.store.put("pages", &record.Record{
		ID: 5, PID: 0, WorkspaceID: 7, OnlineCounterpartID: 1,
		StageID: workspace.StageReadyToPublish,
		Fields: map[string]any{
			"title":    "Draft title",
			"slug":     "/draft",
			"page_key": "uuid-draft",
			"sorting":  uint64(512),
			"crdate":   uint64(2000),
		},
	})
}

func TestSwapExchangesContentsAndConservesIdentityFields(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "go live", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.NotNil(t, live)
	// content travelled from the draft
	assert.Equal(t, "Draft title", live.Field("title"))
	// identity fields stayed at the live id
	assert.Equal(t, "/home", live.Field("slug"))
	assert.Equal(t, "uuid-live", live.Field("page_key"))
	assert.Equal(t, uint64(16), live.FieldUint64("sorting"))
	assert.Equal(t, uint64(1000), live.FieldUint64("crdate"))
	// bookkeeping cleared
	assert.Equal(t, uint64(0), live.WorkspaceID)
	assert.Equal(t, uint64(0), live.OnlineCounterpartID)
	assert.Equal(t, 0, live.StageID)
	assert.Equal(t, record.StateDefault, live.State)

	// the vacated draft row is gone
	draft, _ := te.store.GetRow(context.Background(), "pages", 5)
	assert.Nil(t, draft)

	// swapped ids are registered in both directions
	assert.Equal(t, uint64(5), b.RemappedIDs["pages"][1])
	assert.Equal(t, uint64(1), b.RemappedIDs["pages"][5])

	// the batch workspace context survived
	assert.Equal(t, uint64(7), b.WorkspaceID)

	assert.Len(t, te.events.events, 1)
	assert.Equal(t, EventRecordPublished, te.events.events[0].Event)

	assert.Len(t, te.history.publishes, 1)
	pub := te.history.publishes[0]
	assert.Equal(t, uint64(1), pub.LiveID)
	assert.Equal(t, uint64(5), pub.DraftID)
	assert.Equal(t, "Live title", pub.Payload.OldRecord["title"])
	assert.Equal(t, "Draft title", pub.Payload.Diff["title"])
	// conserved fields do not show up in the diff
	assert.NotContains(t, pub.Payload.Diff, "slug")

	assert.Equal(t, []uint64{0}, te.cache.invalidated)
	assert.Equal(t, 1, b.Notifications.Len())
	assert.Equal(t, 0, te.audit.countSeverity(audit.SeverityUserError))
	assert.Equal(t, 0, te.audit.countSeverity(audit.SeveritySystemError))
}

func TestSwapMovePointerAdoptsDraftPlacement(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	// the draft was moved: different container, different sort position
	te.store.UpdateFields(context.Background(), "pages", 5, map[string]any{
		"pid":   uint64(42),
		"state": int(record.StateMovePointer),
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.Equal(t, uint64(42), live.PID)
	// the sort key travels with a moved record
	assert.Equal(t, uint64(512), live.FieldUint64("sorting"))
	// identity fields are still conserved
	assert.Equal(t, "/home", live.Field("slug"))
}

func TestSwapStaleDraftIsRejected(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	// counterpart points at a different live record
	te.store.UpdateFields(context.Background(), "pages", 5, map[string]any{
		"online_counterpart_id": uint64(999),
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.Equal(t, "Live title", live.Field("title"))
	draft, _ := te.store.GetRow(context.Background(), "pages", 5)
	assert.NotNil(t, draft)
	assert.Equal(t, 1, te.audit.countSeverity(audit.SeveritySystemError))
	assert.Empty(t, te.history.publishes)
	assert.Empty(t, te.events.events)
}

// Re-running a publish against the already-vacated draft id must leave the
// live row alone: the draft is gone, so the second attempt only logs.
func TestSwapRepublishOfVacatedDraftIsNoOp(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)
	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.Equal(t, "Draft title", live.Field("title"))
	assert.Equal(t, uint64(0), live.WorkspaceID)
	// only the first publish produced history and an event
	assert.Len(t, te.history.publishes, 1)
	assert.Len(t, te.events.events, 1)
	assert.Equal(t, 1, te.audit.countSeverity(audit.SeveritySystemError))
	assert.Equal(t, 0, te.audit.countSeverity(audit.SeverityUserError))
}

func TestSwapNewPlaceholderPromotesInPlace(t *testing.T) {
	te := newTestEngine(t)
	te.store.put("pages", &record.Record{
		ID: 9, PID: 3, WorkspaceID: 7, State: record.StateNewPlaceholder,
		StageID: workspace.StageReadyToPublish,
		Fields:  map[string]any{"title": "Brand new", "slug": "/new"},
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 9, 0, "", nil)

	rec, _ := te.store.GetRow(context.Background(), "pages", 9)
	assert.NotNil(t, rec)
	assert.Equal(t, uint64(0), rec.WorkspaceID)
	assert.Equal(t, record.StateDefault, rec.State)
	assert.Equal(t, 0, rec.StageID)
	// contents stay in place, nothing was exchanged
	assert.Equal(t, "Brand new", rec.Field("title"))

	assert.Len(t, te.history.publishes, 1)
	assert.Equal(t, uint64(0), te.history.publishes[0].DraftID)
	assert.Len(t, te.events.events, 1)
	// no remap: the id did not change meaning
	assert.Empty(t, b.RemappedIDs["pages"])
}

func TestSwapDeletePlaceholderRemovesLiveRecord(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	te.store.UpdateFields(context.Background(), "pages", 5, map[string]any{
		"state": int(record.StateDeletePlaceholder),
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.Nil(t, live)
	draft, _ := te.store.GetRow(context.Background(), "pages", 5)
	assert.Nil(t, draft)
	// the live-side deletion runs in workspace 0, the caller context is
	// restored afterwards
	assert.Equal(t, uint64(7), b.WorkspaceID)
	assert.Contains(t, te.refIndex.calls, "drop:pages:1:0")
	assert.Contains(t, te.refIndex.calls, "drop:pages:5:7")
}

func TestSwapBlockedOutsidePublishStage(t *testing.T) {
	te := newTestEngine(t)
	te.workspaces.byID[7].PublishAccess = workspace.PublishAccessOnlyInPublishStage
	seedPagePair(te)
	te.store.UpdateFields(context.Background(), "pages", 5, map[string]any{
		"stage_id": workspace.StageEdit,
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.Equal(t, "Live title", live.Field("title"))
	assert.Equal(t, 1, te.audit.countSeverity(audit.SeverityUserError))
	assert.Empty(t, te.history.publishes)
}

func TestSwapDeniedWithoutPublishPermission(t *testing.T) {
	te := newTestEngine(t)
	te.oracle.denyPublish = true
	seedPagePair(te)
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	live, _ := te.store.GetRow(context.Background(), "pages", 1)
	assert.Equal(t, "Live title", live.Field("title"))
	assert.Equal(t, 1, te.audit.countSeverity(audit.SeverityUserError))
}

func TestSwapRepointsLocalizationOverlays(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	// a workspace translation shadowing the draft
	te.store.put("pages", &record.Record{
		ID: 30, PID: 0, WorkspaceID: 7,
		Fields: map[string]any{
			"title":            "Entwurfstitel",
			"sys_language_uid": uint64(1),
			"l10n_parent":      uint64(5),
			"l10n_source":      uint64(5),
		},
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	overlay, _ := te.store.GetRow(context.Background(), "pages", 30)
	assert.NotNil(t, overlay)
	assert.Equal(t, uint64(1), overlay.FieldUint64("l10n_parent"))
	assert.Equal(t, uint64(1), overlay.FieldUint64("l10n_source"))
}

func TestSwapDefersInlineChildSorts(t *testing.T) {
	te := newTestEngine(t)
	seedPagePair(te)
	te.store.put("content_blocks", &record.Record{
		ID: 100, PID: 1, WorkspaceID: 0,
		Fields: map[string]any{"page_id": uint64(1), "sorting": uint64(1)},
	})
	te.store.put("content_blocks", &record.Record{
		ID: 200, PID: 1, WorkspaceID: 7, OnlineCounterpartID: 100,
		Fields: map[string]any{"page_id": uint64(5), "sorting": uint64(1)},
	})
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "pages", 1, 5, "", nil)

	// one re-link per side, both targeting the live parent id
	assert.Len(t, b.deferredSorts, 2)
	assert.Equal(t, uint64(1), b.deferredSorts[0].ParentID)
	assert.Equal(t, []uint64{100}, b.deferredSorts[0].ChildIDs)
	assert.Equal(t, uint64(7), b.deferredSorts[0].TargetWorkspaceID)
	assert.Equal(t, uint64(1), b.deferredSorts[1].ParentID)
	assert.Equal(t, []uint64{200}, b.deferredSorts[1].ChildIDs)
	assert.Equal(t, uint64(0), b.deferredSorts[1].TargetWorkspaceID)
}

func TestSwapPublishesManyToManyLinks(t *testing.T) {
	te := newTestEngine(t)
	te.store.put("content_blocks", &record.Record{
		ID: 100, PID: 1, WorkspaceID: 0,
		Fields: map[string]any{"header": "Live", "block_key": "key-live", "page_id": uint64(1)},
	})
	te.store.put("content_blocks", &record.Record{
		ID: 200, PID: 1, WorkspaceID: 7, OnlineCounterpartID: 100,
		StageID: workspace.StageReadyToPublish,
		Fields:  map[string]any{"header": "Draft", "block_key": "key-draft", "page_id": uint64(1)},
	})
	te.store.put("pages", &record.Record{ID: 1, WorkspaceID: 0, Fields: map[string]any{"title": "Container"}})
	te.store.links = []record.RelationLink{
		{ParentTable: "content_blocks", ParentID: 100, FieldName: "categories", ChildTable: "categories", ChildID: 11, WorkspaceID: 0},
		{ParentTable: "content_blocks", ParentID: 200, FieldName: "categories", ChildTable: "categories", ChildID: 12, WorkspaceID: 7},
	}
	b := te.newBatch()

	te.engine.Swap(context.Background(), b, "content_blocks", 100, 200, "", nil)

	var liveChildren []uint64
	for _, l := range te.store.links {
		if l.ParentID == 100 && l.WorkspaceID == 0 {
			liveChildren = append(liveChildren, l.ChildID)
		}
	}
	assert.Equal(t, []uint64{12}, liveChildren)
	// non-container table: the vacated draft side leaves the index
	assert.Contains(t, te.refIndex.calls, "refresh:content_blocks:200:7")
	assert.Contains(t, te.refIndex.calls, "refresh:content_blocks:100:0")
}
