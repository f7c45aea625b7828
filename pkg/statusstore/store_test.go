package statusstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
	"github.com/codeready-toolchain/docwriter/test/testutil"
)

func TestJobLifecycleAndMemoryCAS(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	job := &models.Job{ID: "job-1", OwnerID: "owner-1", Title: "Guide", State: models.StateAdmitted, CyclesRequested: 2}
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, "job-1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, models.StateAdmitted, got.State)
	require.Zero(t, got.MemoryVersion)

	newVersion, err := store.UpdateMemory(ctx, "job-1", 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), newVersion)

	_, err = store.UpdateMemory(ctx, "job-1", 0)
	require.ErrorIs(t, err, statusstore.ErrVersionConflict)

	require.NoError(t, store.SetState(ctx, "job-1", models.StatePlanning))
	got, err = store.GetJob(ctx, "job-1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, models.StatePlanning, got.State)
}

func TestSectionsReadyTracksDependencyCompletion(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	job := &models.Job{ID: "job-2", OwnerID: "owner-1", Title: "Guide", State: models.StateWriting, CyclesRequested: 1}
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, store.SaveSectionDraft(ctx, &models.SectionDraft{JobID: "job-2", SectionID: "intro", Cycle: 0, Content: "..."}))

	ready, err := store.SectionsReady(ctx, "job-2", 0, []string{"intro", "background"})
	require.NoError(t, err)
	require.True(t, ready["intro"])
	require.False(t, ready["background"])
}

func TestRecordDiagramRenderedReportsLastDiagram(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	job := &models.Job{ID: "job-3", OwnerID: "owner-1", Title: "Guide", State: models.StateDiagramming, CyclesRequested: 1}
	require.NoError(t, store.CreateJob(ctx, job))

	rendered, err := store.RecordDiagramRendered(ctx, "job-3", "d1", "diagrams/d1.png", 2)
	require.NoError(t, err)
	require.Equal(t, 1, rendered)

	rendered, err = store.RecordDiagramRendered(ctx, "job-3", "d2", "diagrams/d2.png", 2)
	require.NoError(t, err)
	require.Equal(t, 2, rendered)
}

func TestListDocumentsScopesToOwner(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, &models.Job{ID: "job-4", OwnerID: "owner-a", Title: "Alpha Guide", State: models.StateDone, CyclesRequested: 1}))
	require.NoError(t, store.CreateJob(ctx, &models.Job{ID: "job-5", OwnerID: "owner-b", Title: "Beta Guide", State: models.StateDone, CyclesRequested: 1}))

	docs, err := store.ListDocuments(ctx, statusstore.ListDocumentsFilter{OwnerID: "owner-a"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "job-4", docs[0].JobID)
}
