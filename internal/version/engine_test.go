package version

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/relation"
	"cms-workspace-publisher/internal/schema"
	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/workspace"
)

// memoryStore is an in-memory record.Storage used by the engine tests.
type memoryStore struct {
	rows  map[string]map[uint64]*record.Record
	links []record.RelationLink
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]map[uint64]*record.Record)}
}

func (s *memoryStore) put(table string, rec *record.Record) {
	if s.rows[table] == nil {
		s.rows[table] = make(map[uint64]*record.Record)
	}
	s.rows[table][rec.ID] = rec.Clone()
}

func (s *memoryStore) GetRow(ctx context.Context, table string, id uint64) (*record.Record, error) {
	rec, ok := s.rows[table][id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *memoryStore) Update(ctx context.Context, table string, id uint64, rec *record.Record) error {
	if _, ok := s.rows[table][id]; !ok {
		return fmt.Errorf("update of missing row %s:%d", table, id)
	}
	updated := rec.Clone()
	updated.ID = id
	s.rows[table][id] = updated
	return nil
}

func (s *memoryStore) UpdateFields(ctx context.Context, table string, id uint64, fields map[string]any) error {
	rec, ok := s.rows[table][id]
	if !ok {
		return fmt.Errorf("update of missing row %s:%d", table, id)
	}
	for name, value := range fields {
		switch name {
		case "pid":
			rec.PID = toUint64(value)
		case "workspace_id":
			rec.WorkspaceID = toUint64(value)
		case "online_counterpart_id":
			rec.OnlineCounterpartID = toUint64(value)
		case "stage_id":
			rec.StageID = int(toInt64(value))
		case "state":
			rec.State = record.VersionState(toInt64(value))
		default:
			rec.SetField(name, value)
		}
	}
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, table string, id uint64) error {
	delete(s.rows[table], id)
	return nil
}

func (s *memoryStore) Query(ctx context.Context, table string, pred record.Predicate) ([]*record.Record, error) {
	var out []*record.Record
	for _, rec := range s.rows[table] {
		if pred.WorkspaceID != nil && rec.WorkspaceID != *pred.WorkspaceID {
			continue
		}
		matches := true
		for field, value := range pred.FieldEquals {
			if rec.FieldUint64(field) != value {
				matches = false
				break
			}
		}
		if !matches {
			continue
		}
		if len(pred.AnyFieldEquals) > 0 {
			any := false
			for field, value := range pred.AnyFieldEquals {
				if rec.FieldUint64(field) == value {
					any = true
					break
				}
			}
			if !any {
				continue
			}
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if pred.OrderBy != "" {
			a, b := out[i].FieldUint64(pred.OrderBy), out[j].FieldUint64(pred.OrderBy)
			if a != b {
				return a < b
			}
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) PublishManyToManyRelations(ctx context.Context, table string, live, draft *record.Record, fromWorkspaceID uint64) error {
	if fromWorkspaceID == 0 {
		return nil
	}
	kept := s.links[:0]
	for _, l := range s.links {
		if l.ParentTable == table && l.ParentID == live.ID && l.WorkspaceID == 0 {
			continue
		}
		kept = append(kept, l)
	}
	s.links = kept
	for i := range s.links {
		l := &s.links[i]
		if l.ParentTable == table && l.ParentID == draft.ID && l.WorkspaceID == fromWorkspaceID {
			l.ParentID = live.ID
			l.WorkspaceID = 0
		}
	}
	return nil
}

func toUint64(v any) uint64 {
	n := toInt64(v)
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// memorySink collects audit entries.
type memorySink struct {
	entries []audit.Entry
}

func (s *memorySink) Log(ctx context.Context, e audit.Entry) {
	s.entries = append(s.entries, e)
}

func (s *memorySink) countSeverity(sev audit.Severity) int {
	n := 0
	for _, e := range s.entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}

// stubWorkspaces resolves workspaces and membership from fixture maps.
type stubWorkspaces struct {
	byID  map[uint64]*workspace.Workspace
	roles map[string]string // "userID:workspaceID" -> role
}

func roleKey(userID, workspaceID uint64) string {
	return fmt.Sprintf("%d:%d", userID, workspaceID)
}

func (s *stubWorkspaces) CheckAccess(ctx context.Context, u *user.User, workspaceID uint64) (*workspace.Workspace, error) {
	ws, ok := s.byID[workspaceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if u.Admin {
		return ws, nil
	}
	if _, ok := s.roles[roleKey(u.ID, workspaceID)]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return ws, nil
}

func (s *stubWorkspaces) MemberRole(ctx context.Context, userID, workspaceID uint64) (string, error) {
	role, ok := s.roles[roleKey(userID, workspaceID)]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return role, nil
}

func (s *stubWorkspaces) ListForUser(ctx context.Context, u *user.User, limit, offset int) ([]workspace.Workspace, error) {
	var out []workspace.Workspace
	for _, ws := range s.byID {
		out = append(out, *ws)
	}
	return out, nil
}

// stubOracle answers permission checks from plain fields. Everything is
// allowed unless a test flips a flag.
type stubOracle struct {
	denyEdit    bool
	denyPublish bool
	denyShow    bool
	actAtStage  func(stageID int) bool
}

func (o *stubOracle) CanEdit(ctx context.Context, table string, container *record.Record, u *user.User) bool {
	return !o.denyEdit
}

func (o *stubOracle) CanPublishFromWorkspace(ctx context.Context, u *user.User, workspaceID uint64) bool {
	return !o.denyPublish
}

func (o *stubOracle) CanShowPage(ctx context.Context, page *record.Record, u *user.User) bool {
	return !o.denyShow
}

func (o *stubOracle) CanActAtStage(ctx context.Context, u *user.User, workspaceID uint64, stageID int) bool {
	if o.actAtStage != nil {
		return o.actAtStage(stageID)
	}
	return true
}

type stageChange struct {
	WorkspaceID uint64
	Table       string
	ID          uint64
	Payload     audit.StagePayload
}

type publishEntry struct {
	WorkspaceID uint64
	Table       string
	LiveID      uint64
	DraftID     uint64
	Payload     audit.PublishPayload
}

type memoryHistory struct {
	stages    []stageChange
	publishes []publishEntry
}

func (h *memoryHistory) ChangeStage(ctx context.Context, workspaceID uint64, table string, id uint64, payload audit.StagePayload) error {
	h.stages = append(h.stages, stageChange{workspaceID, table, id, payload})
	return nil
}

func (h *memoryHistory) PublishRecord(ctx context.Context, workspaceID uint64, table string, liveID, draftID uint64, payload audit.PublishPayload) error {
	h.publishes = append(h.publishes, publishEntry{workspaceID, table, liveID, draftID, payload})
	return nil
}

// recordingRefIndex notes every maintenance call as a flat string.
type recordingRefIndex struct {
	calls []string
}

func (r *recordingRefIndex) note(op, table string, id uint64, ws uint64) {
	r.calls = append(r.calls, fmt.Sprintf("%s:%s:%d:%d", op, table, id, ws))
}

func (r *recordingRefIndex) Refresh(ctx context.Context, table string, id uint64, workspaceID uint64) error {
	r.note("refresh", table, id, workspaceID)
	return nil
}

func (r *recordingRefIndex) ScheduleDrop(ctx context.Context, table string, id uint64, workspaceID uint64) error {
	r.note("drop", table, id, workspaceID)
	return nil
}

func (r *recordingRefIndex) UpdateReferencesTo(ctx context.Context, table string, id uint64, workspaceID uint64) error {
	r.note("update-refs", table, id, workspaceID)
	return nil
}

func (r *recordingRefIndex) RemapReferencesTo(ctx context.Context, table string, id uint64, fromWorkspaceID, toWorkspaceID uint64) error {
	r.calls = append(r.calls, fmt.Sprintf("remap-refs:%s:%d:%d->%d", table, id, fromWorkspaceID, toWorkspaceID))
	return nil
}

type recordedEvent struct {
	Event   string
	Payload any
}

type memoryEvents struct {
	events []recordedEvent
}

func (e *memoryEvents) Publish(ctx context.Context, event string, payload any) {
	e.events = append(e.events, recordedEvent{event, payload})
}

type memoryCache struct {
	invalidated []uint64
}

func (c *memoryCache) InvalidateContainer(ctx context.Context, containerID uint64) {
	c.invalidated = append(c.invalidated, containerID)
}

// testEngine bundles the engine with every fake collaborator a test may
// want to inspect.
type testEngine struct {
	engine     *Engine
	store      *memoryStore
	audit      *memorySink
	history    *memoryHistory
	refIndex   *recordingRefIndex
	events     *memoryEvents
	cache      *memoryCache
	oracle     *stubOracle
	workspaces *stubWorkspaces
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	te := &testEngine{
		store:    newMemoryStore(),
		audit:    &memorySink{},
		history:  &memoryHistory{},
		refIndex: &recordingRefIndex{},
		events:   &memoryEvents{},
		cache:    &memoryCache{},
		oracle:   &stubOracle{},
		workspaces: &stubWorkspaces{
			byID: map[uint64]*workspace.Workspace{
				7: {ID: 7, Title: "Draft", StageChangeNotification: true},
			},
			roles: map[string]string{roleKey(1, 7): workspace.RoleOwner},
		},
	}
	schemas := schema.Default()
	te.engine = NewEngine(
		schemas,
		te.store,
		relation.NewResolver(te.store),
		te.oracle,
		te.workspaces,
		te.audit,
		te.history,
		te.refIndex,
		te.events,
		te.cache,
	)
	return te
}

func testUser() *user.User {
	return &user.User{ID: 1, Name: "Editor", Email: "editor@example.com", WorkspaceID: 7}
}

func (te *testEngine) newBatch() *Batch {
	return NewBatch(testUser(), 7)
}

func TestSetStageWritesStageAndHistory(t *testing.T) {
	te := newTestEngine(t)
	te.store.put("pages", &record.Record{
		ID: 5, PID: 1, WorkspaceID: 7, OnlineCounterpartID: 2, StageID: workspace.StageEdit,
		Fields: map[string]any{"title": "Draft page"},
	})
	b := te.newBatch()

	te.engine.SetStage(context.Background(), b, "pages", 5, workspace.StageReadyToPublish, "ready for review", []string{"reviewer@example.com"})

	rec, _ := te.store.GetRow(context.Background(), "pages", 5)
	assert.Equal(t, workspace.StageReadyToPublish, rec.StageID)

	assert.Len(t, te.history.stages, 1)
	assert.Equal(t, workspace.StageEdit, te.history.stages[0].Payload.Current)
	assert.Equal(t, workspace.StageReadyToPublish, te.history.stages[0].Payload.Next)
	assert.Equal(t, "ready for review", te.history.stages[0].Payload.Comment)

	// workspace has stage-change notification enabled
	assert.Equal(t, 1, b.Notifications.Len())
	assert.Equal(t, 0, te.audit.countSeverity(audit.SeverityUserError))
}

func TestSetStageNoNotificationWhenDisabled(t *testing.T) {
	te := newTestEngine(t)
	te.workspaces.byID[7].StageChangeNotification = false
	te.store.put("pages", &record.Record{ID: 5, PID: 1, WorkspaceID: 7, OnlineCounterpartID: 2})
	b := te.newBatch()

	te.engine.SetStage(context.Background(), b, "pages", 5, workspace.StageReadyToPublish, "", nil)

	assert.Equal(t, 0, b.Notifications.Len())
	assert.Len(t, te.history.stages, 1)
}

func TestSetStageRejectsNonVersionableTable(t *testing.T) {
	te := newTestEngine(t)
	te.store.put("categories", &record.Record{ID: 3, WorkspaceID: 7})
	b := te.newBatch()

	te.engine.SetStage(context.Background(), b, "categories", 3, workspace.StageReadyToPublish, "", nil)

	assert.Equal(t, 1, te.audit.countSeverity(audit.SeverityUserError))
	assert.Empty(t, te.history.stages)
}

func TestSetStageRejectsLiveRecord(t *testing.T) {
	te := newTestEngine(t)
	te.store.put("pages", &record.Record{ID: 2, PID: 1, WorkspaceID: 0})
	b := te.newBatch()

	te.engine.SetStage(context.Background(), b, "pages", 2, workspace.StageReadyToPublish, "", nil)

	rec, _ := te.store.GetRow(context.Background(), "pages", 2)
	assert.Equal(t, 0, rec.StageID)
	assert.Equal(t, 1, te.audit.countSeverity(audit.SeverityUserError))
}

func TestSetStageMissingRecord(t *testing.T) {
	te := newTestEngine(t)
	b := te.newBatch()

	te.engine.SetStage(context.Background(), b, "pages", 99, workspace.StageReadyToPublish, "", nil)

	assert.Equal(t, 1, te.audit.countSeverity(audit.SeverityUserError))
	assert.Empty(t, te.history.stages)
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	// multi-byte characters count as one, never split mid-rune
	assert.Equal(t, "äöü", truncate("äöüß", 3))
	assert.Equal(t, "日本", truncate("日本語のコメント", 2))
}

// A user not allowed to act at the record's current stage must not move it,
// regardless of the requested target stage.
func TestSetStageDeniedAtCurrentStage(t *testing.T) {
	te := newTestEngine(t)
	te.oracle.actAtStage = func(stageID int) bool { return stageID == workspace.StageEdit }
	te.store.put("pages", &record.Record{
		ID: 5, PID: 1, WorkspaceID: 7, OnlineCounterpartID: 2, StageID: workspace.StageReadyToPublish,
	})
	b := te.newBatch()

	te.engine.SetStage(context.Background(), b, "pages", 5, workspace.StageEdit, "send back", nil)

	rec, _ := te.store.GetRow(context.Background(), "pages", 5)
	assert.Equal(t, workspace.StageReadyToPublish, rec.StageID)
	assert.Equal(t, 1, te.audit.countSeverity(audit.SeverityUserError))
	assert.Empty(t, te.history.stages)
	assert.Equal(t, 0, b.Notifications.Len())
}
