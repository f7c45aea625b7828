package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/events"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
	"github.com/codeready-toolchain/docwriter/test/testutil"
)

func TestPublishStagePersistsTimelineEventAndAllowsCatchup(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	store := statusstore.New(db)
	job := &models.Job{ID: "job-1", OwnerID: "owner-1", Title: "Guide", State: models.StateAdmitted}
	require.NoError(t, store.CreateJob(ctx, job))

	rec := events.NewRecorder(db.DB)
	require.NoError(t, rec.PublishStage(ctx, "job-1", models.StagePlan, 1, models.PhaseStageDone, "plan ready"))

	got, err := rec.GetCatchupEvents(ctx, events.JobChannel("job-1"), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, models.StagePlan, got[0].Payload["stage"])
}
