package queue

import (
	"context"
	"log/slog"
	"time"
)

// DeadLetterSweeper periodically reports queues with dead-lettered
// messages so operators notice a stuck stage instead of a silently
// growing backlog. Unlike the claim-based orphan recovery this broker
// gets for free from lock expiry (a crashed worker's visible_at simply
// elapses and another worker reclaims the message), dead-lettered
// messages stop being reclaimed by design — they need a human or a
// manual requeue.
type DeadLetterSweeper struct {
	broker   *Broker
	queues   []string
	interval time.Duration
	stopCh   chan struct{}

	onDeadLetterCount func(queue string, count int)
	onDepth           func(queue string, depth int)
}

// NewDeadLetterSweeper builds a sweeper over the given queues.
func NewDeadLetterSweeper(broker *Broker, queues []string, interval time.Duration) *DeadLetterSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DeadLetterSweeper{broker: broker, queues: queues, interval: interval, stopCh: make(chan struct{})}
}

// WithDeadLetterObserver registers a callback invoked with the current
// dead-letter count for each queue on every scan. Intended for a metrics
// gauge; nil disables the callback.
func (s *DeadLetterSweeper) WithDeadLetterObserver(fn func(queue string, count int)) *DeadLetterSweeper {
	s.onDeadLetterCount = fn
	return s
}

// WithDepthObserver registers a callback invoked with the current
// pending depth for each queue on every scan. Intended for a metrics
// gauge; nil disables the callback.
func (s *DeadLetterSweeper) WithDepthObserver(fn func(queue string, depth int)) *DeadLetterSweeper {
	s.onDepth = fn
	return s
}

// Run blocks, scanning on a ticker until ctx is cancelled or Stop is called.
func (s *DeadLetterSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

// Stop ends the sweep loop.
func (s *DeadLetterSweeper) Stop() {
	close(s.stopCh)
}

func (s *DeadLetterSweeper) scanOnce(ctx context.Context) {
	for _, q := range s.queues {
		count, err := s.broker.CountDeadLettered(ctx, q)
		if err != nil {
			slog.Error("dead-letter scan failed", "queue", q, "error", err)
			continue
		}
		if count > 0 {
			slog.Warn("queue has dead-lettered messages awaiting operator action", "queue", q, "count", count)
		}
		if s.onDeadLetterCount != nil {
			s.onDeadLetterCount(q, count)
		}

		if s.onDepth != nil {
			depth, err := s.broker.Depth(ctx, q)
			if err != nil {
				slog.Error("queue depth scan failed", "queue", q, "error", err)
				continue
			}
			s.onDepth(q, depth)
		}
	}
}
