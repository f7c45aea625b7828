package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/docwriter/pkg/models"
)

// Config controls worker pool timing and retry behavior. Defaults mirror
// the spec's lock-duration and delivery-count guidance.
type Config struct {
	WorkerCount             int
	PollInterval            time.Duration
	PollIntervalJitter      time.Duration
	LockDuration            time.Duration
	HeartbeatInterval       time.Duration
	AbandonBackoff          time.Duration
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns the spec's baseline queue timings.
func DefaultConfig() Config {
	return Config{
		WorkerCount:             2,
		PollInterval:            2 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		LockDuration:            5 * time.Minute,
		HeartbeatInterval:       90 * time.Second,
		AbandonBackoff:          10 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Worker polls one queue and drives every claimed message through the
// common stage contract: claim, publish STAGE_START, invoke the handler,
// publish STAGE_DONE/STAGE_FAILED, then complete/abandon/dead-letter.
type Worker struct {
	id      string
	queue   string
	broker  *Broker
	handler Handler
	status  StatusPublisher
	config  Config
	stopCh  chan struct{}
	stopOnce sync.Once
	wg      sync.WaitGroup

	mu                sync.RWMutex
	workerStatus      WorkerStatus
	currentMessageID  string
	messagesProcessed int
	lastActivity      time.Time
}

// NewWorker creates a worker bound to one queue. status may be nil if
// stage lifecycle publication is not needed (e.g. in unit tests).
func NewWorker(id, queue string, broker *Broker, handler Handler, status StatusPublisher, cfg Config) *Worker {
	return &Worker{
		id:           id,
		queue:        queue,
		broker:       broker,
		handler:      handler,
		status:       status,
		config:       cfg,
		stopCh:       make(chan struct{}),
		workerStatus: WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current message, if
// any, to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns a snapshot of this worker's activity.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Queue:             w.queue,
		Status:            string(w.workerStatus),
		CurrentMessageID:  w.currentMessageID,
		MessagesProcessed: w.messagesProcessed,
		LastActivity:      w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "queue", w.queue)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoMessagesAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing message", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	msg, err := w.broker.Receive(ctx, w.queue, w.config.LockDuration)
	if err != nil {
		return err
	}

	log := slog.With("message_id", msg.ID, "job_id", msg.Payload.JobID, "stage", w.queue)
	w.setStatus(WorkerStatusWorking, msg.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	w.publish(ctx, msg.Payload, models.PhaseStageStart, "")

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	go w.runHeartbeat(heartbeatCtx, msg)

	next, handleErr := w.handler.Handle(ctx, msg.Payload)
	cancelHeartbeat()

	if handleErr != nil {
		log.Error("stage handler failed", "error", handleErr)

		if errors.Is(handleErr, ErrValidation) {
			if dlErr := w.broker.DeadLetter(context.Background(), msg, handleErr.Error()); dlErr != nil {
				return dlErr
			}
			w.publish(context.Background(), msg.Payload, models.PhaseStageFailed,
				fmt.Sprintf("dead-lettered (validation): %v", handleErr))
			return nil
		}

		delay := w.config.AbandonBackoff
		var backoffErr *BackoffError
		if errors.As(handleErr, &backoffErr) {
			delay = backoffErr.Delay
		}
		abandonErr := w.broker.Abandon(context.Background(), msg, delay, handleErr.Error())
		if errors.Is(abandonErr, ErrDeadLettered) {
			w.publish(context.Background(), msg.Payload, models.PhaseStageFailed,
				fmt.Sprintf("dead-lettered after %d deliveries: %v", msg.DeliveryCount, handleErr))
			return nil
		}
		if abandonErr != nil {
			return abandonErr
		}
		w.publish(context.Background(), msg.Payload, models.PhaseStageFailed, handleErr.Error())
		return nil
	}

	for _, e := range next {
		if err := w.broker.Enqueue(ctx, e.Queue, e.Message); err != nil {
			return fmt.Errorf("enqueue follow-up to %s: %w", e.Queue, err)
		}
	}

	w.publish(context.Background(), msg.Payload, models.PhaseStageDone, "")

	if err := w.broker.Complete(context.Background(), msg); err != nil {
		return fmt.Errorf("complete message: %w", err)
	}

	w.mu.Lock()
	w.messagesProcessed++
	w.mu.Unlock()
	log.Info("stage complete")
	return nil
}

func (w *Worker) runHeartbeat(ctx context.Context, msg *Message) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.broker.Heartbeat(ctx, msg, w.config.LockDuration); err != nil {
				slog.Warn("heartbeat failed", "message_id", msg.ID, "error", err)
			}
		}
	}
}

func (w *Worker) publish(ctx context.Context, msg models.StageMessage, phase models.Phase, note string) {
	if w.status == nil {
		return
	}
	if err := w.status.PublishStage(ctx, msg.JobID, w.queue, msg.Cycle, phase, note); err != nil {
		slog.Warn("failed to publish stage status", "job_id", msg.JobID, "stage", w.queue, "phase", phase, "error", err)
	}
}

func (w *Worker) setStatus(status WorkerStatus, messageID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.workerStatus = status
	w.currentMessageID = messageID
	w.lastActivity = time.Now()
}
