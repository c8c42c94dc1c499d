package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

// Pool runs background jobs, used to push notification delivery off the
// request path.
type Pool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool // thread-safe value
}

func NewPool(size, queueSize int) *Pool {
	if queueSize < 1 {
		queueSize = 100
	}
	p := &Pool{
		taskQueue: make(chan Task, queueSize),
	}

	// Start the workers
	for i := 0; i < size; i++ {
		p.wg.Add(1) // add to WaitGroup
		go p.startWorker()
	}

	return p
}

func (p *Pool) startWorker() {
	defer p.wg.Done() // signal when worker finished
	for task := range p.taskQueue {
		ctx := context.Background()
		if err := task(ctx); err != nil { // run task
			log.Printf("Worker task failed: %v", err)
		}
	}
}

func (p *Pool) Submit(t Task) {
	if p.isClosing.Load() {
		log.Println("Warning: task submitted during shutdown, dropping.")
		return
	}
	select {
	case p.taskQueue <- t: // send task to worker pool
	default:
		log.Println("Task queue full, dropping task!")
	}
}

// Shutdown closes the queue and waits for workers to finish
func (p *Pool) Shutdown() {
	p.isClosing.Store(true)
	close(p.taskQueue) // Stop accepting new tasks
	p.wg.Wait()        // Wait for all active workers to finish tasks
}
