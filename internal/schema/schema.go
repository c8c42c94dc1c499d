package schema

// FieldType describes how a payload field is edited, which decides
// whether it can carry a unique constraint.
type FieldType string

const (
	FieldTypeInput    FieldType = "input"
	FieldTypeEmail    FieldType = "email"
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeUUID     FieldType = "uuid"
	FieldTypeLanguage FieldType = "language"
)

type Field struct {
	Name              string
	Type              FieldType
	Unique            bool
	UniqueInContainer bool
}

type RelationKind string

const (
	RelationOneToMany  RelationKind = "one_to_many"
	RelationManyToMany RelationKind = "many_to_many"
)

// Relation describes a relation field on a parent table.
type Relation struct {
	Field        string
	Kind         RelationKind
	ForeignTable string
	// ForeignField is the column on the child table pointing back at the parent
	ForeignField string
	// ForeignSortField orders children under one parent
	ForeignSortField string
}

// Table is the versioning-relevant metadata of one record table.
type Table struct {
	Name          string
	Versionable   bool
	LanguageAware bool
	// Container marks the table whose rows act as containers (pages)
	Container bool

	SortField              string
	CreatedAtField         string
	LanguageField          string
	LanguageParentField    string
	TranslationSourceField string

	Fields    []Field
	Relations []Relation
}

// KeepFields returns payload fields whose values must stay on their row during
// a publish swap: unique identifiers must not travel into the workspace copy.
func (t *Table) KeepFields() []string {
	var keep []string
	for _, f := range t.Fields {
		switch f.Type {
		case FieldTypeInput, FieldTypeEmail:
			if f.Unique || f.UniqueInContainer {
				keep = append(keep, f.Name)
			}
		case FieldTypeUUID:
			keep = append(keep, f.Name)
		}
	}
	return keep
}

// OneToMany returns the inline relation fields of the table.
func (t *Table) OneToMany() []Relation {
	var out []Relation
	for _, r := range t.Relations {
		if r.Kind == RelationOneToMany {
			out = append(out, r)
		}
	}
	return out
}

// ManyToMany returns the mm relation fields of the table.
func (t *Table) ManyToMany() []Relation {
	var out []Relation
	for _, r := range t.Relations {
		if r.Kind == RelationManyToMany {
			out = append(out, r)
		}
	}
	return out
}

// Registry holds the table metadata, consumed read-only by the engine.
type Registry struct {
	tables map[string]*Table
}

func NewRegistry(tables ...*Table) *Registry {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		r.tables[t.Name] = t
	}
	return r
}

func (r *Registry) Get(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

func (r *Registry) IsVersionable(name string) bool {
	t, ok := r.tables[name]
	return ok && t.Versionable
}

func (r *Registry) IsLanguageAware(name string) bool {
	t, ok := r.tables[name]
	return ok && t.LanguageAware
}

func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	return out
}

// Default returns the registry of the built-in content model: pages as the
// container table, content blocks underneath them.
func Default() *Registry {
	pages := &Table{
		Name:           "pages",
		Versionable:    true,
		LanguageAware:  true,
		Container:      true,
		SortField:      "sorting",
		CreatedAtField: "crdate",
		LanguageField:  "sys_language_uid",
		// translations of a page are rows in the same table
		LanguageParentField:    "l10n_parent",
		TranslationSourceField: "l10n_source",
		Fields: []Field{
			{Name: "title", Type: FieldTypeInput},
			{Name: "slug", Type: FieldTypeInput, UniqueInContainer: true},
			{Name: "nav_title", Type: FieldTypeInput},
			{Name: "page_key", Type: FieldTypeUUID},
			{Name: "sorting", Type: FieldTypeNumber},
			{Name: "crdate", Type: FieldTypeDatetime},
			{Name: "sys_language_uid", Type: FieldTypeLanguage},
			{Name: "l10n_parent", Type: FieldTypeNumber},
			{Name: "l10n_source", Type: FieldTypeNumber},
		},
		Relations: []Relation{
			{
				Field:            "content",
				Kind:             RelationOneToMany,
				ForeignTable:     "content_blocks",
				ForeignField:     "page_id",
				ForeignSortField: "sorting",
			},
		},
	}
	contentBlocks := &Table{
		Name:                   "content_blocks",
		Versionable:            true,
		LanguageAware:          true,
		SortField:              "sorting",
		CreatedAtField:         "crdate",
		LanguageField:          "sys_language_uid",
		LanguageParentField:    "l10n_parent",
		TranslationSourceField: "l10n_source",
		Fields: []Field{
			{Name: "header", Type: FieldTypeInput},
			{Name: "body", Type: FieldTypeText},
			{Name: "block_key", Type: FieldTypeUUID},
			{Name: "page_id", Type: FieldTypeNumber},
			{Name: "sorting", Type: FieldTypeNumber},
			{Name: "crdate", Type: FieldTypeDatetime},
			{Name: "sys_language_uid", Type: FieldTypeLanguage},
			{Name: "l10n_parent", Type: FieldTypeNumber},
			{Name: "l10n_source", Type: FieldTypeNumber},
		},
		Relations: []Relation{
			{
				Field:        "categories",
				Kind:         RelationManyToMany,
				ForeignTable: "categories",
			},
		},
	}
	categories := &Table{
		Name:           "categories",
		Versionable:    false,
		CreatedAtField: "crdate",
		Fields: []Field{
			{Name: "title", Type: FieldTypeInput},
			{Name: "crdate", Type: FieldTypeDatetime},
		},
	}
	return NewRegistry(pages, contentBlocks, categories)
}
