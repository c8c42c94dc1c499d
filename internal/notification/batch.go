package notification

import (
	"fmt"

	"cms-workspace-publisher/internal/workspace"
)

// Element identifies one affected record.
type Element struct {
	Table string `json:"table"`
	ID    uint64 `json:"id"`
}

type group struct {
	workspace  *workspace.Workspace
	stageID    int
	comment    string
	recipients []string
	elements   []Element
}

// Batch accumulates stage-change information across one command batch so a
// single message is sent per (workspace, stage, comment) group.
type Batch struct {
	groups map[string]*group
	order  []string
}

func NewBatch() *Batch {
	return &Batch{groups: make(map[string]*group)}
}

// Record appends an affected element to its group, seeding the group
// metadata on first use of the key.
func (b *Batch) Record(ws *workspace.Workspace, table string, id uint64, stageID int, comment string, recipients []string) {
	key := fmt.Sprintf("%d:%d:%s", ws.ID, stageID, comment)
	g, ok := b.groups[key]
	if !ok {
		g = &group{
			workspace:  ws,
			stageID:    stageID,
			comment:    comment,
			recipients: recipients,
		}
		b.groups[key] = g
		b.order = append(b.order, key)
	}
	g.elements = append(g.elements, Element{Table: table, ID: id})
}

// Len returns the number of pending message groups.
func (b *Batch) Len() int {
	return len(b.groups)
}

// Reset clears the accumulator for the next command batch.
func (b *Batch) Reset() {
	b.groups = make(map[string]*group)
	b.order = nil
}
