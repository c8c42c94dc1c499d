package record

// VersionState tells what kind of change a workspace row represents.
type VersionState int

const (
	// StateDefault is a plain row: live, or a workspace edit of a live row.
	StateDefault VersionState = 0
	// StateNewPlaceholder is a workspace row with no live counterpart yet.
	StateNewPlaceholder VersionState = 1
	// StateDeletePlaceholder is a workspace row marking a pending deletion.
	StateDeletePlaceholder VersionState = 2
	// StateMovePointer is a workspace row representing only a relocation.
	StateMovePointer VersionState = 4
)

func (s VersionState) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StateNewPlaceholder:
		return "new_placeholder"
	case StateDeletePlaceholder:
		return "delete_placeholder"
	case StateMovePointer:
		return "move_pointer"
	}
	return "unknown"
}

// Record is one row of a versionable table. The versioning bookkeeping
// columns are typed; the type-specific payload stays in Fields.
type Record struct {
	ID  uint64
	PID uint64
	// WorkspaceID is 0 for live rows
	WorkspaceID uint64
	// OnlineCounterpartID points a workspace row at the live row it shadows
	OnlineCounterpartID uint64
	StageID             int
	State               VersionState
	Fields              map[string]any
}

// Clone deep-copies the record so in-memory mutation during a swap
// cannot leak into the caller's row.
func (r *Record) Clone() *Record {
	out := *r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return &out
}

// Field returns a payload field value, nil when absent.
func (r *Record) Field(name string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

func (r *Record) SetField(name string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[name] = value
}

// FieldUint64 reads a payload field as an id-like number.
func (r *Record) FieldUint64(name string) uint64 {
	switch v := r.Field(name).(type) {
	case uint64:
		return v
	case int64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case int:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case float64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case int32:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case uint:
		return uint64(v)
	}
	return 0
}

// Bookkeeping returns the versioning columns as a field map, the shape the
// storage layer writes.
func (r *Record) Bookkeeping() map[string]any {
	return map[string]any{
		"pid":                   r.PID,
		"workspace_id":          r.WorkspaceID,
		"online_counterpart_id": r.OnlineCounterpartID,
		"stage_id":              r.StageID,
		"state":                 int(r.State),
	}
}

// DiffFields returns the payload fields of next whose values differ from
// prev, used for publish history entries.
func DiffFields(prev, next *Record) map[string]any {
	diff := make(map[string]any)
	for name, value := range next.Fields {
		if prev.Fields[name] != value {
			diff[name] = value
		}
	}
	return diff
}
