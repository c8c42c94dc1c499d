package notification

import (
	"context"

	"cms-workspace-publisher/internal/worker"
)

// AsyncSink hands message delivery to the worker pool so a slow notify
// service cannot stall the command batch.
type AsyncSink struct {
	pool  *worker.Pool
	inner Sink
}

func NewAsyncSink(pool *worker.Pool, inner Sink) *AsyncSink {
	return &AsyncSink{pool: pool, inner: inner}
}

// Send enqueues the delivery and returns immediately. Delivery errors are
// logged by the pool.
func (s *AsyncSink) Send(_ context.Context, msg Message) error {
	s.pool.Submit(func(ctx context.Context) error {
		return s.inner.Send(ctx, msg)
	})
	return nil
}
