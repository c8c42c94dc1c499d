package record

import (
	"context"

	"gorm.io/gorm"

	"cms-workspace-publisher/internal/schema"
)

// Predicate narrows a table query. Zero value matches everything.
type Predicate struct {
	// WorkspaceID filters on the workspace column when set
	WorkspaceID *uint64
	// FieldEquals are AND-joined payload field conditions
	FieldEquals map[string]uint64
	// AnyFieldEquals are OR-joined payload field conditions
	AnyFieldEquals map[string]uint64
	// OrderBy sorts ascending on a payload field
	OrderBy string
}

// Storage is the row-level access the version engine needs from the
// underlying record store.
type Storage interface {
	// GetRow returns (nil, nil) when the row does not exist.
	GetRow(ctx context.Context, table string, id uint64) (*Record, error)
	// Update rewrites row contents at an existing id. Ids themselves are
	// never altered by the engine, only row contents.
	Update(ctx context.Context, table string, id uint64, rec *Record) error
	// UpdateFields writes a partial raw update, bypassing any save hooks.
	UpdateFields(ctx context.Context, table string, id uint64, fields map[string]any) error
	Delete(ctx context.Context, table string, id uint64) error
	Query(ctx context.Context, table string, pred Predicate) ([]*Record, error)
	// PublishManyToManyRelations re-homes mm link rows of the draft parent
	// onto the live id. The pre-swap workspace must be passed explicitly:
	// the draft row's workspace column is already cleared at call time.
	PublishManyToManyRelations(ctx context.Context, table string, live, draft *Record, fromWorkspaceID uint64) error
}

// RelationLink is one mm link row, shared by all mm relation fields.
type RelationLink struct {
	ID          uint64
	ParentTable string `gorm:"index:idx_link_parent"`
	ParentID    uint64 `gorm:"index:idx_link_parent"`
	FieldName   string
	ChildTable  string
	ChildID     uint64
	WorkspaceID uint64
	Sorting     int
}

type GormStorage struct {
	db      *gorm.DB
	schemas *schema.Registry
}

func NewGormStorage(db *gorm.DB, schemas *schema.Registry) *GormStorage {
	return &GormStorage{db: db, schemas: schemas}
}

var bookkeepingColumns = map[string]bool{
	"id":                    true,
	"pid":                   true,
	"workspace_id":          true,
	"online_counterpart_id": true,
	"stage_id":              true,
	"state":                 true,
}

func rowToRecord(row map[string]any) *Record {
	rec := &Record{Fields: make(map[string]any)}
	for column, value := range row {
		switch column {
		case "id":
			rec.ID = asUint64(value)
		case "pid":
			rec.PID = asUint64(value)
		case "workspace_id":
			rec.WorkspaceID = asUint64(value)
		case "online_counterpart_id":
			rec.OnlineCounterpartID = asUint64(value)
		case "stage_id":
			rec.StageID = int(asInt64(value))
		case "state":
			rec.State = VersionState(asInt64(value))
		default:
			rec.Fields[column] = value
		}
	}
	return rec
}

func asUint64(v any) uint64 {
	n := asInt64(v)
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func (s *GormStorage) GetRow(ctx context.Context, table string, id uint64) (*Record, error) {
	row := map[string]any{}
	err := s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rowToRecord(row), nil
}

func (s *GormStorage) Update(ctx context.Context, table string, id uint64, rec *Record) error {
	fields := rec.Bookkeeping()
	for name, value := range rec.Fields {
		fields[name] = value
	}
	return s.UpdateFields(ctx, table, id, fields)
}

func (s *GormStorage) UpdateFields(ctx context.Context, table string, id uint64, fields map[string]any) error {
	return s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Updates(fields).Error
}

func (s *GormStorage) Delete(ctx context.Context, table string, id uint64) error {
	return s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Delete(nil).Error
}

func (s *GormStorage) Query(ctx context.Context, table string, pred Predicate) ([]*Record, error) {
	q := s.db.WithContext(ctx).Table(table)
	if pred.WorkspaceID != nil {
		q = q.Where("workspace_id = ?", *pred.WorkspaceID)
	}
	for field, value := range pred.FieldEquals {
		q = q.Where(field+" = ?", value)
	}
	if len(pred.AnyFieldEquals) > 0 {
		or := s.db.Table(table)
		first := true
		for field, value := range pred.AnyFieldEquals {
			if first {
				or = or.Where(field+" = ?", value)
				first = false
			} else {
				or = or.Or(field+" = ?", value)
			}
		}
		q = q.Where(or)
	}
	if pred.OrderBy != "" {
		q = q.Order(pred.OrderBy + " ASC")
	}

	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, rowToRecord(row))
	}
	return records, nil
}

func (s *GormStorage) PublishManyToManyRelations(ctx context.Context, table string, live, draft *Record, fromWorkspaceID uint64) error {
	tbl, ok := s.schemas.Get(table)
	if !ok || fromWorkspaceID == 0 {
		return nil
	}
	for _, rel := range tbl.ManyToMany() {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Drop the replaced live links
			if err := tx.Where(
				"parent_table = ? AND parent_id = ? AND field_name = ? AND workspace_id = 0",
				table, live.ID, rel.Field,
			).Delete(&RelationLink{}).Error; err != nil {
				return err
			}
			// Re-home the workspace links onto the live parent
			return tx.Model(&RelationLink{}).
				Where(
					"parent_table = ? AND parent_id = ? AND field_name = ? AND workspace_id = ?",
					table, draft.ID, rel.Field, fromWorkspaceID,
				).
				Updates(map[string]any{"parent_id": live.ID, "workspace_id": 0}).Error
		})
		if err != nil {
			return err
		}
	}
	return nil
}
