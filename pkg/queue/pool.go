package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// QueueSpec binds a queue name to the handler that processes its messages.
type QueueSpec struct {
	Queue   string
	Handler Handler
}

// WorkerPool supervises a fixed set of worker goroutines per registered
// queue. Each queue gets cfg.WorkerCount independent pollers so that a
// slow stage (e.g. review, which fans out to an LLM call) doesn't starve
// other stages sharing the same broker.
type WorkerPool struct {
	podID   string
	broker  *Broker
	status  StatusPublisher
	config  Config
	specs   []QueueSpec
	workers []*Worker
	mu      sync.Mutex
	started bool
}

// NewWorkerPool creates a pool that will run the given queue specs once Start is called.
func NewWorkerPool(podID string, broker *Broker, status StatusPublisher, cfg Config, specs []QueueSpec) *WorkerPool {
	return &WorkerPool{
		podID:  podID,
		broker: broker,
		status: status,
		config: cfg,
		specs:  specs,
	}
}

// Start spawns cfg.WorkerCount workers per queue spec. Safe to call once;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("worker pool already started", "pod_id", p.podID)
		return
	}
	p.started = true

	for _, spec := range p.specs {
		for i := 0; i < p.config.WorkerCount; i++ {
			id := p.podID + "-" + spec.Queue + "-" + strconv.Itoa(i)
			w := NewWorker(id, spec.Queue, p.broker, spec.Handler, p.status, p.config)
			p.workers = append(p.workers, w)
			w.Start(ctx)
		}
	}
	slog.Info("worker pool started", "pod_id", p.podID, "queues", len(p.specs), "workers", len(p.workers))
}

// Stop signals every worker to finish its current message and exit.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool", "pod_id", p.podID)
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
	slog.Info("worker pool stopped")
}

// Health aggregates per-worker health and per-queue depth.
func (p *WorkerPool) Health(ctx context.Context) PoolHealth {
	depths := make(map[string]int, len(p.specs))
	dbHealthy := true
	var dbErr string
	for _, spec := range p.specs {
		n, err := p.broker.Depth(ctx, spec.Queue)
		if err != nil {
			dbHealthy = false
			dbErr = err.Error()
			continue
		}
		depths[spec.Queue] = n
	}

	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.Health()
		stats[i] = h
		if h.Status == string(WorkerStatusWorking) {
			active++
		}
	}

	return PoolHealth{
		IsHealthy:     dbHealthy && len(p.workers) > 0,
		DBReachable:   dbHealthy,
		DBError:       dbErr,
		PodID:         p.podID,
		ActiveWorkers: active,
		TotalWorkers:  len(p.workers),
		QueueDepths:   depths,
		WorkerStats:   stats,
	}
}
