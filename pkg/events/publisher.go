package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/docwriter/pkg/models"
)

// notifyPayloadLimit is PostgreSQL's practical NOTIFY payload ceiling
// (8000 bytes). Stage messages rarely approach it, but a verbose verify or
// review message could; oversized payloads fall back to a minimal
// routing envelope so the NOTIFY never fails outright.
const notifyPayloadLimit = 7800

// Recorder persists stage-lifecycle events to the timeline and fans them
// out over NOTIFY within the same transaction, so a channel subscriber
// never observes a NOTIFY for an event that didn't durably commit. It
// implements queue.StatusPublisher.
type Recorder struct {
	db *sql.DB
}

// NewRecorder wires a Recorder to a *sql.DB (the database/sql handle
// backing the same connection pool statusstore uses, required for
// pg_notify to run inside the same committed transaction as the insert).
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// PublishStage persists a timeline row for the stage transition and
// notifies both the job's own channel and the global jobs channel.
func (r *Recorder) PublishStage(ctx context.Context, jobID, stage string, cycle int, phase models.Phase, message string) error {
	payload := StagePayload{
		Type:    "stage." + string(phase),
		JobID:   jobID,
		Stage:   stage,
		Cycle:   cycle,
		Phase:   string(phase),
		Message: message,
	}
	return r.persistAndNotify(ctx, jobID, payload)
}

// persistAndNotify inserts the timeline row and issues pg_notify on the
// job channel and the global channel inside one transaction, so the
// NOTIFY only fires if the insert commits.
func (r *Recorder) persistAndNotify(ctx context.Context, jobID string, payload StagePayload) error {
	body := payload.toMap()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO timeline_events (job_id, stage, phase, cycle, message, timestamp)
		 VALUES ($1, $2, $3, $4, $5, now()) RETURNING id`,
		jobID, payload.Stage, payload.Phase, payload.Cycle, payload.Message,
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}

	body["db_event_id"] = eventID
	notifyBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}

	jobChan := JobChannel(jobID)
	if err := r.notify(ctx, tx, jobChan, notifyBody, eventID, payload); err != nil {
		return err
	}
	if err := r.notify(ctx, tx, GlobalJobsChannel, notifyBody, eventID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// notify issues pg_notify for a single channel, substituting a truncated
// routing-only envelope when the encoded payload exceeds PostgreSQL's
// NOTIFY size limit.
func (r *Recorder) notify(ctx context.Context, tx *sql.Tx, channel string, body []byte, eventID int64, payload StagePayload) error {
	final := body
	if len(final) > notifyPayloadLimit {
		truncated, err := json.Marshal(map[string]interface{}{
			"type":        payload.Type,
			"job_id":      payload.JobID,
			"stage":       payload.Stage,
			"db_event_id": eventID,
			"truncated":   true,
		})
		if err != nil {
			return fmt.Errorf("marshal truncated notify payload: %w", err)
		}
		final = truncated
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, string(final)); err != nil {
		return fmt.Errorf("notify %s: %w", channel, err)
	}
	return nil
}

// CatchupEvent and GetCatchupEvents satisfy events.CatchupQuerier so a
// freshly-subscribed ConnectionManager client can replay everything it
// missed before LISTEN became active.
func (r *Recorder) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	jobID, ok := jobIDFromChannel(channel)
	if !ok {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, stage, phase, cycle, message FROM timeline_events
		 WHERE job_id = $1 AND id > $2 ORDER BY id ASC LIMIT $3`,
		jobID, sinceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query catchup events: %w", err)
	}
	defer rows.Close()

	var out []CatchupEvent
	for rows.Next() {
		var id int
		var stage, phase, message string
		var cycle int
		if err := rows.Scan(&id, &stage, &phase, &cycle, &message); err != nil {
			return nil, fmt.Errorf("scan catchup event: %w", err)
		}
		body := StagePayload{
			Type: "stage." + phase, JobID: jobID, Stage: stage, Cycle: cycle, Phase: phase, Message: message,
		}.toMap()
		out = append(out, CatchupEvent{ID: id, Payload: body})
	}
	return out, rows.Err()
}

func jobIDFromChannel(channel string) (string, bool) {
	const prefix = "job."
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return "", false
	}
	return channel[len(prefix):], true
}
