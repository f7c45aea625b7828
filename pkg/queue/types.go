// Package queue implements the durable Queue Broker: a PostgreSQL-backed
// multi-queue job queue with claim-based delivery, heartbeat lease
// renewal, and delivery-count dead-lettering, generalized from a
// single-table session queue into one logical queue per pipeline stage.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/docwriter/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoMessagesAvailable indicates no visible messages are in the queue.
	ErrNoMessagesAvailable = errors.New("no messages available")

	// ErrAtCapacity indicates the worker pool's concurrency limit has been reached.
	ErrAtCapacity = errors.New("at capacity")

	// ErrDeadLettered indicates a message exceeded its delivery count and was
	// moved to the dead-letter state instead of being retried further.
	ErrDeadLettered = errors.New("message dead-lettered")

	// ErrValidation marks a handler error as structurally unrecoverable
	// (malformed message, missing owner, a plan invariant violation).
	// Handlers wrap it with fmt.Errorf("...: %w", ErrValidation); the
	// worker dead-letters the message immediately instead of retrying.
	ErrValidation = errors.New("validation error")
)

// BackoffError lets a Handler override the worker's configured
// AbandonBackoff with a delay suited to the specific failure — e.g. a
// section waiting on a sibling's draft should be retried much sooner
// than a transient LLM Gateway failure.
type BackoffError struct {
	Err   error
	Delay time.Duration
}

func (e *BackoffError) Error() string { return e.Err.Error() }
func (e *BackoffError) Unwrap() error { return e.Err }

// Enqueue describes one follow-up message a Handler wants sent to the next
// stage's queue. Handlers never enqueue directly; returning Enqueue values
// keeps "publish STAGE_DONE before the next stage becomes visible" a
// property of Worker, not something every handler must remember.
type Enqueue struct {
	Queue   string
	Message models.StageMessage
}

// Handler implements stage-specific business logic. The queue worker owns
// claiming, lock renewal, status publication, completion/retry/dead-letter,
// and enqueuing whatever the handler returns.
type Handler interface {
	Handle(ctx context.Context, msg models.StageMessage) ([]Enqueue, error)
}

// StatusPublisher is the subset of the Status Topic the queue worker needs
// to announce stage lifecycle events.
type StatusPublisher interface {
	PublishStage(ctx context.Context, jobID, stage string, cycle int, phase models.Phase, message string) error
}

// PoolHealth mirrors the health snapshot surfaced by the worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	DBReachable   bool           `json:"db_reachable"`
	DBError       string         `json:"db_error,omitempty"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepths   map[string]int `json:"queue_depths"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth is per-worker health tracking.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Queue             string    `json:"queue"`
	Status            string    `json:"status"`
	CurrentMessageID  string    `json:"current_message_id,omitempty"`
	MessagesProcessed int       `json:"messages_processed"`
	LastActivity      time.Time `json:"last_activity"`
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)
