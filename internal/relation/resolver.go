package relation

import (
	"context"

	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/schema"
)

// Resolver enumerates inline (one-to-many) children of a parent record.
// Reads only; the workspace filter is strict.
type Resolver struct {
	store record.Storage
}

func NewResolver(store record.Storage) *Resolver {
	return &Resolver{store: store}
}

// Children returns the ordered child ids of one inline relation field,
// restricted to rows of the given workspace.
func (r *Resolver) Children(ctx context.Context, rel schema.Relation, parentID uint64, workspaceID uint64) ([]uint64, error) {
	ws := workspaceID
	rows, err := r.store.Query(ctx, rel.ForeignTable, record.Predicate{
		WorkspaceID: &ws,
		FieldEquals: map[string]uint64{rel.ForeignField: parentID},
		OrderBy:     rel.ForeignSortField,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// SortUpdate is a deferred re-link of inline children under a parent whose
// identity was just swapped. It runs only after the parent swap committed,
// so child ids can be followed through the batch remap table.
type SortUpdate struct {
	ParentID          uint64
	Relation          schema.Relation
	ChildIDs          []uint64
	TargetWorkspaceID uint64
}

// Apply re-materializes the ordered relation for the target workspace.
// Child ids are resolved through remapped first; delete placeholders are
// skipped, missing rows tolerated.
func (r *Resolver) Apply(ctx context.Context, su SortUpdate, remapped map[string]map[uint64]uint64) error {
	ids := make([]uint64, 0, len(su.ChildIDs))
	for _, id := range su.ChildIDs {
		if mapped, ok := remapped[su.Relation.ForeignTable][id]; ok {
			ids = append(ids, mapped)
		} else {
			ids = append(ids, id)
		}
	}

	sorting := 0
	for _, id := range ids {
		child, err := r.store.GetRow(ctx, su.Relation.ForeignTable, id)
		if err != nil {
			return err
		}
		if child == nil || child.State == record.StateDeletePlaceholder {
			continue
		}
		if child.WorkspaceID != su.TargetWorkspaceID {
			continue
		}
		sorting++
		fields := map[string]any{
			su.Relation.ForeignField: su.ParentID,
		}
		if su.Relation.ForeignSortField != "" {
			fields[su.Relation.ForeignSortField] = sorting
		}
		if err := r.store.UpdateFields(ctx, su.Relation.ForeignTable, id, fields); err != nil {
			return err
		}
	}
	return nil
}
