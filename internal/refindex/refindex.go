package refindex

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/schema"
)

// Maintainer keeps the derived table of record-to-record references in sync
// after publishes and deletions.
type Maintainer interface {
	// Refresh recomputes the outgoing references of one record, evaluated
	// in the given workspace context.
	Refresh(ctx context.Context, table string, id uint64, workspaceID uint64) error
	// ScheduleDrop removes every index row the record is involved in within
	// one workspace, used once a row is gone for good.
	ScheduleDrop(ctx context.Context, table string, id uint64, workspaceID uint64) error
	// UpdateReferencesTo recomputes the rows of records pointing at the
	// given record within one workspace.
	UpdateReferencesTo(ctx context.Context, table string, id uint64, workspaceID uint64) error
	// RemapReferencesTo moves index rows pointing at the record from one
	// workspace context into another, used when a draft row goes live.
	RemapReferencesTo(ctx context.Context, table string, id uint64, fromWorkspaceID, toWorkspaceID uint64) error
}

// Row is one reference-index entry: the record on the left points at the
// record on the right.
type Row struct {
	ID          uint64
	RecordTable string `gorm:"column:table_name;index:idx_ref_rec"`
	RecordID    uint64 `gorm:"index:idx_ref_rec"`
	FieldName   string
	RefTable    string `gorm:"index:idx_ref_target"`
	RefID       uint64 `gorm:"index:idx_ref_target"`
	WorkspaceID uint64
	Sorting     int
}

func (Row) TableName() string { return "reference_index" }

type GormMaintainer struct {
	db      *gorm.DB
	store   record.Storage
	schemas *schema.Registry
}

func NewMaintainer(db *gorm.DB, store record.Storage, schemas *schema.Registry) *GormMaintainer {
	return &GormMaintainer{db: db, store: store, schemas: schemas}
}

func (m *GormMaintainer) Refresh(ctx context.Context, table string, id uint64, workspaceID uint64) error {
	tbl, ok := m.schemas.Get(table)
	if !ok {
		return nil
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(
			"table_name = ? AND record_id = ? AND workspace_id = ?",
			table, id, workspaceID,
		).Delete(&Row{}).Error; err != nil {
			return err
		}
		rec, err := m.store.GetRow(ctx, table, id)
		if err != nil || rec == nil {
			return err
		}
		for _, rel := range tbl.OneToMany() {
			ws := workspaceID
			children, err := m.store.Query(ctx, rel.ForeignTable, record.Predicate{
				WorkspaceID: &ws,
				FieldEquals: map[string]uint64{rel.ForeignField: id},
				OrderBy:     rel.ForeignSortField,
			})
			if err != nil {
				return err
			}
			for i, child := range children {
				row := Row{
					RecordTable: table,
					RecordID:    id,
					FieldName:   rel.Field,
					RefTable:    rel.ForeignTable,
					RefID:       child.ID,
					WorkspaceID: workspaceID,
					Sorting:     i,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (m *GormMaintainer) ScheduleDrop(ctx context.Context, table string, id uint64, workspaceID uint64) error {
	return m.db.WithContext(ctx).Where(
		"workspace_id = ? AND ((table_name = ? AND record_id = ?) OR (ref_table = ? AND ref_id = ?))",
		workspaceID, table, id, table, id,
	).Delete(&Row{}).Error
}

func (m *GormMaintainer) UpdateReferencesTo(ctx context.Context, table string, id uint64, workspaceID uint64) error {
	var referers []Row
	err := m.db.WithContext(ctx).
		Where("ref_table = ? AND ref_id = ? AND workspace_id = ?", table, id, workspaceID).
		Find(&referers).Error
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, row := range referers {
		key := row.RecordTable + ":" + strconv.FormatUint(row.RecordID, 10)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := m.Refresh(ctx, row.RecordTable, row.RecordID, workspaceID); err != nil {
			return err
		}
	}
	return nil
}

func (m *GormMaintainer) RemapReferencesTo(ctx context.Context, table string, id uint64, fromWorkspaceID, toWorkspaceID uint64) error {
	return m.db.WithContext(ctx).Model(&Row{}).
		Where("ref_table = ? AND ref_id = ? AND workspace_id = ?", table, id, fromWorkspaceID).
		Update("workspace_id", toWorkspaceID).Error
}
