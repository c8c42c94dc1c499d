package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneIsolatesFields(t *testing.T) {
	orig := &Record{ID: 1, WorkspaceID: 7, Fields: map[string]any{"title": "a"}}

	clone := orig.Clone()
	clone.SetField("title", "b")
	clone.WorkspaceID = 0

	assert.Equal(t, "a", orig.Field("title"))
	assert.Equal(t, uint64(7), orig.WorkspaceID)
	assert.Equal(t, "b", clone.Field("title"))
}

func TestFieldUint64Conversions(t *testing.T) {
	rec := &Record{Fields: map[string]any{
		"a": uint64(5),
		"b": int64(6),
		"c": 7,
		"d": float64(8),
		"e": int64(-1),
		"f": "text",
	}}

	assert.Equal(t, uint64(5), rec.FieldUint64("a"))
	assert.Equal(t, uint64(6), rec.FieldUint64("b"))
	assert.Equal(t, uint64(7), rec.FieldUint64("c"))
	assert.Equal(t, uint64(8), rec.FieldUint64("d"))
	assert.Equal(t, uint64(0), rec.FieldUint64("e"))
	assert.Equal(t, uint64(0), rec.FieldUint64("f"))
	assert.Equal(t, uint64(0), rec.FieldUint64("missing"))
}

func TestDiffFieldsReportsChangedValuesOnly(t *testing.T) {
	prev := &Record{Fields: map[string]any{"title": "old", "slug": "/home", "sorting": uint64(1)}}
	next := &Record{Fields: map[string]any{"title": "new", "slug": "/home", "sorting": uint64(1)}}

	diff := DiffFields(prev, next)

	assert.Equal(t, map[string]any{"title": "new"}, diff)
}

func TestBookkeepingShape(t *testing.T) {
	rec := &Record{ID: 3, PID: 1, WorkspaceID: 7, OnlineCounterpartID: 2, StageID: -10, State: StateMovePointer}

	bk := rec.Bookkeeping()

	assert.Equal(t, uint64(1), bk["pid"])
	assert.Equal(t, uint64(7), bk["workspace_id"])
	assert.Equal(t, uint64(2), bk["online_counterpart_id"])
	assert.Equal(t, -10, bk["stage_id"])
	assert.Equal(t, int(StateMovePointer), bk["state"])
	// id never travels through field updates
	assert.NotContains(t, bk, "id")
}
