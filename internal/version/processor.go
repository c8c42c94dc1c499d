package version

import (
	"context"

	"cms-workspace-publisher/internal/audit"
	"cms-workspace-publisher/internal/notification"
	"cms-workspace-publisher/internal/user"
)

// Processor drives one command batch through the engine: dispatching the
// decoded commands, draining the deferred relation re-links once the swaps
// committed, and flushing the accumulated notifications at the end.
//
// Cross-record dependency resolution is not done here; commands arrive
// already ordered.
type Processor struct {
	engine     *Engine
	dispatcher *notification.Dispatcher
}

func NewProcessor(engine *Engine, dispatcher *notification.Dispatcher) *Processor {
	return &Processor{engine: engine, dispatcher: dispatcher}
}

// BeginBatch creates the batch-scoped state for one command batch.
func (p *Processor) BeginBatch(u *user.User, workspaceID uint64) *Batch {
	return NewBatch(u, workspaceID)
}

// Process dispatches one command. The return value tells whether the
// command was recognized; failures inside the engine only surface in the
// log stream.
func (p *Processor) Process(ctx context.Context, b *Batch, cmd Command) bool {
	switch c := cmd.(type) {
	case SetStage:
		for _, id := range c.IDs {
			p.engine.SetStage(ctx, b, c.Table, id, c.StageID, c.Comment, c.Recipients)
		}
		return true
	case Swap:
		p.engine.Swap(ctx, b, c.Table, c.ID, c.SwapWith, c.Comment, c.Recipients)
		return true
	}
	return false
}

// EndBatch finishes the batch: the deferred inline re-sorts run now, after
// every swap of the batch, so child ids resolve through the remap table;
// then one notification per group goes out and the batch state is cleared.
func (p *Processor) EndBatch(ctx context.Context, b *Batch) {
	for _, su := range b.deferredSorts {
		if err := p.engine.relations.Apply(ctx, su, b.RemappedIDs); err != nil {
			p.engine.logError(ctx, b, su.Relation.ForeignTable, su.ParentID,
				audit.ActionPublish, audit.SeveritySystemError,
				"Re-sorting inline children failed: {error}",
				map[string]any{"error": err.Error()})
		}
	}
	b.deferredSorts = nil

	p.dispatcher.Logging = b.Logging
	p.dispatcher.Flush(ctx, b.Notifications, b.User)
	b.RemappedIDs = make(map[string]map[uint64]uint64)
}

// Run executes a full pre-ordered command batch.
func (p *Processor) Run(ctx context.Context, u *user.User, workspaceID uint64, cmds []Command) int {
	b := p.BeginBatch(u, workspaceID)
	handled := 0
	for _, cmd := range cmds {
		if p.Process(ctx, b, cmd) {
			handled++
		}
	}
	p.EndBatch(ctx, b)
	return handled
}
