package kernel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/kernel"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/objectstore"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
	"github.com/codeready-toolchain/docwriter/test/testutil"
)

func newKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := statusstore.New(db)
	objects, err := objectstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	broker := queue.NewBroker(db, 10)
	return kernel.New(store, objects, broker)
}

func TestAdmitJobCreatesJobAndEnqueuesPlanIntake(t *testing.T) {
	k := newKernel(t)
	ctx := context.Background()

	jobID, err := k.AdmitJob(ctx, "owner-1", "Async Patterns", "Architects", 2)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	status, err := k.GetStatus(ctx, "owner-1", jobID)
	require.NoError(t, err)
	require.Equal(t, string(models.StateAdmitted), status.Stage)

	msg, err := k.Broker.Receive(ctx, models.StagePlanIntake, 0)
	require.NoError(t, err)
	require.Equal(t, jobID, msg.Payload.JobID)
	require.Equal(t, "Async Patterns", msg.Payload.Inputs["title"])
}

func TestGetStatusRejectsWrongOwner(t *testing.T) {
	k := newKernel(t)
	ctx := context.Background()

	jobID, err := k.AdmitJob(ctx, "owner-1", "Guide", "Engineers", 1)
	require.NoError(t, err)

	_, err = k.GetStatus(ctx, "owner-2", jobID)
	require.ErrorIs(t, err, kernel.ErrNotAuthorized)
}

func TestFetchArtifactRejectsWrongOwnerWithoutReadingBlob(t *testing.T) {
	k := newKernel(t)
	ctx := context.Background()

	jobID, err := k.AdmitJob(ctx, "owner-1", "Guide", "Engineers", 1)
	require.NoError(t, err)
	require.NoError(t, k.Objects.Put(ctx, objectstore.JobKey("owner-1", jobID, "final.md"), []byte("secret"), "text/markdown"))

	_, err = k.FetchArtifact(ctx, "owner-2", jobID, "final.md")
	require.ErrorIs(t, err, kernel.ErrNotAuthorized)
}

func TestSubmitAnswersEnqueuesIntakeResume(t *testing.T) {
	k := newKernel(t)
	ctx := context.Background()

	jobID, err := k.AdmitJob(ctx, "owner-1", "Guide", "Engineers", 1)
	require.NoError(t, err)

	require.NoError(t, k.SubmitAnswers(ctx, "owner-1", jobID, map[string]string{"a1": "yes"}))

	msg, err := k.Broker.Receive(ctx, models.StageIntakeResume, 0)
	require.NoError(t, err)
	require.Equal(t, jobID, msg.Payload.JobID)
	require.Contains(t, string(msg.Payload.Extra["answers"]), "a1")
}

func TestResumeFailedRequiresDeadLetteredMessages(t *testing.T) {
	k := newKernel(t)
	ctx := context.Background()

	jobID, err := k.AdmitJob(ctx, "owner-1", "Guide", "Engineers", 1)
	require.NoError(t, err)

	err = k.ResumeFailed(ctx, "owner-1", jobID)
	require.Error(t, err)
}
