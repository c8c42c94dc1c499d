package db

import (
	"fmt"
	"log"
	"strings"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/record"
	"cms-workspace-publisher/internal/refindex"
	"cms-workspace-publisher/internal/schema"
	"cms-workspace-publisher/internal/user"
	"cms-workspace-publisher/internal/workspace"
)

func Migrate() {
	err := AppDb.AutoMigrate(
		&user.User{},
		&workspace.Workspace{},
		&workspace.Member{},
		&audit.LogRow{},
		&audit.HistoryRow{},
		&refindex.Row{},
		&record.RelationLink{},
	)
	if err != nil {
		log.Fatalf("failed to migrate db %v", err)
	}

	if err := migrateRecordTables(schema.Default()); err != nil {
		log.Fatalf("failed to migrate record tables %v", err)
	}

	log.Println("Success Migrating DB")
}

// migrateRecordTables creates the content tables from the registry. They are
// not gorm models: the engine reads and writes them as raw rows, so the
// bookkeeping columns have to exist with fixed names.
func migrateRecordTables(reg *schema.Registry) error {
	for _, tbl := range reg.Tables() {
		cols := []string{
			"id BIGSERIAL PRIMARY KEY",
			"pid BIGINT NOT NULL DEFAULT 0",
			"workspace_id BIGINT NOT NULL DEFAULT 0",
			"online_counterpart_id BIGINT NOT NULL DEFAULT 0",
			"stage_id BIGINT NOT NULL DEFAULT 0",
			"state BIGINT NOT NULL DEFAULT 0",
		}
		for _, f := range tbl.Fields {
			cols = append(cols, fmt.Sprintf("%s %s", f.Name, columnType(f.Type)))
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tbl.Name, strings.Join(cols, ", "))
		if err := AppDb.Exec(stmt).Error; err != nil {
			return err
		}
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ws ON %s (workspace_id, online_counterpart_id)", tbl.Name, tbl.Name)
		if err := AppDb.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}

func columnType(t schema.FieldType) string {
	switch t {
	case schema.FieldTypeNumber, schema.FieldTypeDatetime, schema.FieldTypeLanguage:
		return "BIGINT NOT NULL DEFAULT 0"
	case schema.FieldTypeText:
		return "TEXT NOT NULL DEFAULT ''"
	default:
		// input, email, uuid
		return "VARCHAR(255) NOT NULL DEFAULT ''"
	}
}
