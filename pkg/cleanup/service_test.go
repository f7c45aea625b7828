package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/config"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
	"github.com/codeready-toolchain/docwriter/test/testutil"
)

func TestPruneTimelineEvents_RemovesOldKeepsRecent(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	job := &models.Job{ID: "job-1", OwnerID: "owner-1", Title: "Guide", State: models.StateWriting, CyclesRequested: 1}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.AppendTimelineEvent(ctx, &models.TimelineEvent{JobID: "job-1", Stage: "planner", Phase: "started", Message: "old event"}))
	require.NoError(t, store.AppendTimelineEvent(ctx, &models.TimelineEvent{JobID: "job-1", Stage: "writer", Phase: "started", Message: "recent event"}))

	_, err := db.ExecContext(ctx,
		`UPDATE timeline_events SET timestamp = now() - interval '10 days' WHERE message = 'old event'`)
	require.NoError(t, err)

	svc := NewService(&config.RetentionConfig{TimelineEventTTL: 48 * time.Hour}, store)
	svc.pruneTimelineEvents(ctx)

	events, err := store.ListTimeline(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "recent event", events[0].Message)
}

func TestPruneDocuments_ReapsOldTerminalKeepsRest(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, &models.Job{ID: "job-old-done", OwnerID: "owner-1", Title: "Stale Done", State: models.StateDone, CyclesRequested: 1}))
	require.NoError(t, store.CreateJob(ctx, &models.Job{ID: "job-old-dl", OwnerID: "owner-1", Title: "Stale Dead-Lettered", State: models.StateDeadLettered, CyclesRequested: 1}))
	require.NoError(t, store.CreateJob(ctx, &models.Job{ID: "job-recent-done", OwnerID: "owner-1", Title: "Fresh Done", State: models.StateDone, CyclesRequested: 1}))
	require.NoError(t, store.CreateJob(ctx, &models.Job{ID: "job-old-writing", OwnerID: "owner-1", Title: "Still In Progress", State: models.StateWriting, CyclesRequested: 1}))

	_, err := db.ExecContext(ctx,
		`UPDATE document_index SET updated_at = now() - interval '90 days' WHERE job_id IN ('job-old-done', 'job-old-dl', 'job-old-writing')`)
	require.NoError(t, err)

	svc := NewService(&config.RetentionConfig{DocumentRetentionDays: 30}, store)
	svc.pruneDocuments(ctx)

	docs, err := store.ListDocuments(ctx, statusstore.ListDocumentsFilter{OwnerID: "owner-1", Limit: 50})
	require.NoError(t, err)

	remaining := map[string]bool{}
	for _, d := range docs {
		remaining[d.JobID] = true
	}
	require.False(t, remaining["job-old-done"], "old completed job should be reaped")
	require.False(t, remaining["job-old-dl"], "old dead-lettered job should be reaped")
	require.True(t, remaining["job-recent-done"], "recent completed job should be preserved")
	require.True(t, remaining["job-old-writing"], "non-terminal job should be preserved regardless of age")
}

func TestRunAll_IsIdempotentOnEmptyStore(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	svc := NewService(&config.RetentionConfig{
		TimelineEventTTL:      24 * time.Hour,
		DocumentRetentionDays: 14,
		CleanupInterval:       time.Minute,
	}, store)

	svc.runAll(ctx)
	svc.runAll(ctx)
}
