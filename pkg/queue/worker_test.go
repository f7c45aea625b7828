package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

type recordingStatus struct {
	phases []models.Phase
}

func (r *recordingStatus) PublishStage(_ context.Context, _, _ string, _ int, phase models.Phase, _ string) error {
	r.phases = append(r.phases, phase)
	return nil
}

type fakeHandler struct {
	next  []queue.Enqueue
	err   error
	calls int
}

func (f *fakeHandler) Handle(_ context.Context, _ models.StageMessage) ([]queue.Enqueue, error) {
	f.calls++
	return f.next, f.err
}

func TestNewWorkerStartsIdle(t *testing.T) {
	t.Parallel()
	status := &recordingStatus{}
	handler := &fakeHandler{}
	cfg := queue.DefaultConfig()

	w := queue.NewWorker("w-0", models.StageReview, nil, handler, status, cfg)
	health := w.Health()
	require.Equal(t, string(queue.WorkerStatusIdle), health.Status)
	require.Equal(t, models.StageReview, health.Queue)
	require.Zero(t, health.MessagesProcessed)
}

func TestDeadLetterSweeperStopsWithContext(t *testing.T) {
	t.Parallel()
	sweeper := queue.NewDeadLetterSweeper(nil, []string{models.StageReview}, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() { sweeper.Run(ctx); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop with context")
	}
}

func TestErrDeadLetteredIsDistinctSentinel(t *testing.T) {
	require.True(t, errors.Is(queue.ErrDeadLettered, queue.ErrDeadLettered))
	require.False(t, errors.Is(queue.ErrNoMessagesAvailable, queue.ErrDeadLettered))
}
