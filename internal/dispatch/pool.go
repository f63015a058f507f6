package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
)

// job is one send-and-update task for a single delivery unit.
type job struct {
	unit *domain.DeliveryUnit
	req  provider.Request
	done *sync.WaitGroup
}

// Pool manages a fixed number of worker goroutines that execute delivery
// jobs, each gated by the shared concurrency limiter.
type Pool struct {
	numWorkers int
	jobs       chan job
	limiter    *Limiter
	client     provider.Client
	flusher    *Flusher
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, limiter *Limiter, client provider.Client, flusher *Flusher, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan job, numWorkers*2),
		limiter:    limiter,
		client:     client,
		flusher:    flusher,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("dispatch pool started", "num_workers", p.numWorkers)
}

// Submit queues one unit for sending. done is decremented when the unit
// reaches a terminal status, on every exit path.
func (p *Pool) Submit(unit *domain.DeliveryUnit, req provider.Request, done *sync.WaitGroup) {
	p.jobs <- job{unit: unit, req: req, done: done}
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("dispatch pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for j := range p.jobs {
		p.process(ctx, j)
	}
}

// process sends one unit and records its outcome. The unit always leaves
// with a terminal status — a cancelled or interrupted task is marked failed
// and counted complete, never dropped — and the permit is released on every
// path.
func (p *Pool) process(ctx context.Context, j job) {
	defer j.done.Done()

	// The flush must complete even when the dispatch context is cancelled,
	// or the unit would be stuck pending.
	flushCtx := context.WithoutCancel(ctx)

	if err := p.limiter.Acquire(ctx); err != nil {
		j.unit.MarkFailed("cancelled while waiting for send permit: " + err.Error())
		p.flusher.Add(flushCtx, j.unit)
		return
	}
	defer p.limiter.Release()

	j.unit.RequestPayload = string(j.req.Payload)

	res := p.client.Send(ctx, j.req)
	if res.Success {
		j.unit.MarkSent(res.ProviderMessageID, res.ResponseBody)
	} else {
		j.unit.MarkFailed(res.Reason.Message)
		p.logger.Warn("provider send failed",
			"unit_id", j.unit.ID,
			"recipient", j.unit.Recipient,
			"reason", res.Reason.Code,
		)
	}

	p.flusher.Add(flushCtx, j.unit)
}
