package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/minhqn/ocrflow/internal/core/domain"
)

// workerPool runs N concurrent execution units over a closed, buffered item
// queue. The channel guarantees each item is dequeued by exactly one unit.
// When parallel is disabled a single unit processes items sequentially
// through the identical gate checks, so behavior is uniform regardless of
// concurrency level.
type workerPool struct {
	workers int
	queue   chan *domain.WorkItem
	gate    *Gate
	log     *slog.Logger
	// process handles one item end to end; returning false makes the unit
	// exit (the item was abandoned because of a stop).
	process func(ctx context.Context, item *domain.WorkItem) bool
	wg      sync.WaitGroup
}

func newWorkerPool(
	cfg domain.JobConfig,
	items []domain.WorkItem,
	gate *Gate,
	log *slog.Logger,
	process func(ctx context.Context, item *domain.WorkItem) bool,
) *workerPool {
	workers := cfg.Workers
	if !cfg.Parallel {
		workers = 1
	}

	// The job is a bounded batch: enqueue everything up front and close the
	// channel so units can detect exhaustion.
	queue := make(chan *domain.WorkItem, len(items))
	for i := range items {
		queue <- &items[i]
	}
	close(queue)

	return &workerPool{
		workers: workers,
		queue:   queue,
		gate:    gate,
		log:     log,
		process: process,
	}
}

// start launches the execution units.
func (p *workerPool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// wait blocks until every unit has exited.
func (p *workerPool) wait() {
	p.wg.Wait()
}

func (p *workerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	p.log.Debug("worker started", "worker_id", id)

	for item := range p.queue {
		// Gate check before dispatching a new item. Blocks while paused,
		// returns an error once stopped.
		if err := p.gate.Wait(ctx); err != nil {
			p.log.Debug("worker exiting at gate", "worker_id", id, "reason", err)
			return
		}
		if !p.process(ctx, item) {
			p.log.Debug("worker exiting mid-item", "worker_id", id, "item_id", item.ID)
			return
		}
	}

	p.log.Debug("worker finished, queue drained", "worker_id", id)
}
