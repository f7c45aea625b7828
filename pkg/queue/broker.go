package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/docwriter/pkg/models"
)

// Message is a claimed queue entry: the decoded stage payload plus the
// bookkeeping the Broker needs to complete, abandon, or dead-letter it.
type Message struct {
	ID            string
	Queue         string
	Payload       models.StageMessage
	DeliveryCount int
}

// Broker is the durable, PostgreSQL-backed Queue Broker. One row in
// queue_messages represents one in-flight or pending delivery; claims use
// SELECT ... FOR UPDATE SKIP LOCKED so multiple worker pods can poll the
// same table without double-processing a message.
type Broker struct {
	db              *sqlx.DB
	maxDeliveryCount int
}

// NewBroker wires a Broker to an already-migrated database handle.
// maxDeliveryCount is the default dead-letter threshold for queues that
// don't specify their own.
func NewBroker(db *sqlx.DB, maxDeliveryCount int) *Broker {
	if maxDeliveryCount <= 0 {
		maxDeliveryCount = 10
	}
	return &Broker{db: db, maxDeliveryCount: maxDeliveryCount}
}

// Enqueue inserts a new message, visible immediately.
func (b *Broker) Enqueue(ctx context.Context, queue string, msg models.StageMessage) error {
	return b.enqueueAt(ctx, b.db, queue, msg, time.Now())
}

func (b *Broker) enqueueAt(ctx context.Context, q sqlx.ExtContext, queue string, msg models.StageMessage, visibleAt time.Time) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stage message: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO queue_messages
			(id, queue, payload, owner_id, job_id, visible_at, delivery_count, max_delivery_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, now())`,
		uuid.NewString(), queue, payload, msg.OwnerID, msg.JobID, visibleAt, b.maxDeliveryCount)
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", queue, err)
	}
	return nil
}

// Receive claims the oldest visible message on queue, locking it for
// lockDuration. Returns ErrNoMessagesAvailable if nothing is claimable.
func (b *Broker) Receive(ctx context.Context, queue string, lockDuration time.Duration) (*Message, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row struct {
		ID            string `db:"id"`
		Payload       []byte `db:"payload"`
		DeliveryCount int    `db:"delivery_count"`
	}
	err = tx.QueryRowxContext(ctx, `
		SELECT id, payload, delivery_count
		FROM queue_messages
		WHERE queue = $1 AND visible_at <= now() AND dead_letter_reason IS NULL
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, queue).Scan(&row.ID, &row.Payload, &row.DeliveryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMessagesAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim from %s: %w", queue, err)
	}

	deliveryCount := row.DeliveryCount + 1
	_, err = tx.ExecContext(ctx, `
		UPDATE queue_messages
		SET delivery_count = $1, visible_at = $2
		WHERE id = $3`, deliveryCount, time.Now().Add(lockDuration), row.ID)
	if err != nil {
		return nil, fmt.Errorf("lock claimed message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	var payload models.StageMessage
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode stage message: %w", err)
	}
	payload.Attempt = deliveryCount

	return &Message{ID: row.ID, Queue: queue, Payload: payload, DeliveryCount: deliveryCount}, nil
}

// Heartbeat extends a claimed message's lock so a long-running handler
// isn't reclaimed by another worker before it finishes.
func (b *Broker) Heartbeat(ctx context.Context, msg *Message, lockDuration time.Duration) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE queue_messages SET visible_at = $1 WHERE id = $2`,
		time.Now().Add(lockDuration), msg.ID)
	return err
}

// Complete deletes a successfully processed message.
func (b *Broker) Complete(ctx context.Context, msg *Message) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = $1`, msg.ID)
	return err
}

// Abandon makes a message visible again after delay, for retry. If the
// message has already reached its max delivery count it is dead-lettered
// instead and ErrDeadLettered is returned so the caller can react (publish
// STAGE_FAILED, notify).
func (b *Broker) Abandon(ctx context.Context, msg *Message, delay time.Duration, reason string) error {
	var maxDeliveryCount int
	err := b.db.QueryRowxContext(ctx,
		`SELECT max_delivery_count FROM queue_messages WHERE id = $1`, msg.ID).Scan(&maxDeliveryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read delivery limit: %w", err)
	}

	if msg.DeliveryCount >= maxDeliveryCount {
		if dlErr := b.DeadLetter(ctx, msg, reason); dlErr != nil {
			return dlErr
		}
		return ErrDeadLettered
	}

	_, err = b.db.ExecContext(ctx, `
		UPDATE queue_messages SET visible_at = $1 WHERE id = $2`,
		time.Now().Add(delay), msg.ID)
	return err
}

// DeadLetter marks a message terminal without deleting it, so operators
// can inspect why it failed.
func (b *Broker) DeadLetter(ctx context.Context, msg *Message, reason string) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE queue_messages SET dead_letter_reason = $1 WHERE id = $2`, reason, msg.ID)
	return err
}

// CountDeadLettered returns how many messages on queue have been marked
// dead-lettered and are awaiting operator attention.
func (b *Broker) CountDeadLettered(ctx context.Context, queue string) (int, error) {
	var n int
	err := b.db.QueryRowxContext(ctx, `
		SELECT count(*) FROM queue_messages
		WHERE queue = $1 AND dead_letter_reason IS NOT NULL`, queue).Scan(&n)
	return n, err
}

// ResumeDeadLettered clears the dead-letter mark on every dead-lettered
// message belonging to (ownerID, jobID), resets its delivery count, and
// makes it immediately visible again — the re-enqueue half of
// resume_failed. It returns the stage payloads that were resumed so the
// caller can update job state accordingly.
func (b *Broker) ResumeDeadLettered(ctx context.Context, ownerID, jobID string) ([]models.StageMessage, error) {
	rows, err := b.db.QueryxContext(ctx, `
		SELECT id, queue, payload FROM queue_messages
		WHERE owner_id = $1 AND job_id = $2 AND dead_letter_reason IS NOT NULL`,
		ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("find dead-lettered messages: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id      string
		queue   string
		payload models.StageMessage
	}
	var candidates []candidate
	for rows.Next() {
		var id, queueName string
		var raw []byte
		if err := rows.Scan(&id, &queueName, &raw); err != nil {
			return nil, fmt.Errorf("scan dead-lettered message: %w", err)
		}
		var payload models.StageMessage
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode dead-lettered message: %w", err)
		}
		candidates = append(candidates, candidate{id: id, queue: queueName, payload: payload})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resumed := make([]models.StageMessage, 0, len(candidates))
	for _, c := range candidates {
		_, err := b.db.ExecContext(ctx, `
			UPDATE queue_messages
			SET dead_letter_reason = NULL, delivery_count = 0, visible_at = now()
			WHERE id = $1`, c.id)
		if err != nil {
			return nil, fmt.Errorf("resume dead-lettered message %s: %w", c.id, err)
		}
		resumed = append(resumed, c.payload)
	}
	return resumed, nil
}

// Depth returns the number of visible, non-dead-lettered messages in queue.
func (b *Broker) Depth(ctx context.Context, queue string) (int, error) {
	var n int
	err := b.db.QueryRowxContext(ctx, `
		SELECT count(*) FROM queue_messages
		WHERE queue = $1 AND dead_letter_reason IS NULL`, queue).Scan(&n)
	return n, err
}
