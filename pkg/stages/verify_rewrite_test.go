package stages_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/stages"
)

func seedPlanWithOneDraft(t *testing.T, store interface {
	SavePlan(ctx context.Context, p *models.Plan) error
	SaveSectionDraft(ctx context.Context, d *models.SectionDraft) error
}, jobID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SavePlan(ctx, &models.Plan{JobID: jobID, Sections: []models.PlanSection{{ID: "S1", Title: "One"}}}))
	require.NoError(t, store.SaveSectionDraft(ctx, &models.SectionDraft{JobID: jobID, SectionID: "S1", Cycle: 1, Content: "draft one"}))
}

func TestVerifyHandlerAdvancesToDiagramPrepWhenClean(t *testing.T) {
	gw := llm.NewFakeGateway().WithResponse(llm.RoleVerifier, llm.Response{Text: `{"contradictions":[],"needs_rewrite":false}`})
	deps, store := newWriteDeps(t, gw)
	ctx := context.Background()

	job := &models.Job{ID: "job-v1", OwnerID: "owner-1", Title: "Guide", State: models.StateVerifying, CyclesRequested: 2}
	require.NoError(t, store.CreateJob(ctx, job))
	seedPlanWithOneDraft(t, store, "job-v1")

	h := stages.NewVerifyHandler(deps)
	enqueues, err := h.Handle(ctx, models.StageMessage{
		JobID: "job-v1", OwnerID: "owner-1", Stage: models.StageVerify, Cycle: 1,
		Inputs: map[string]string{"needs_rewrite": "false"},
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageDiagramPrep, enqueues[0].Queue)

	job, err = store.GetJob(ctx, "job-v1", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 1, job.CyclesCompleted)
}

func TestVerifyHandlerEnqueuesRewriteWhenFlagged(t *testing.T) {
	gw := llm.NewFakeGateway().WithResponse(llm.RoleVerifier, llm.Response{Text: `{"contradictions":[],"needs_rewrite":true}`})
	deps, store := newWriteDeps(t, gw)
	ctx := context.Background()

	job := &models.Job{ID: "job-v2", OwnerID: "owner-1", Title: "Guide", State: models.StateVerifying, CyclesRequested: 2}
	require.NoError(t, store.CreateJob(ctx, job))
	seedPlanWithOneDraft(t, store, "job-v2")

	h := stages.NewVerifyHandler(deps)
	enqueues, err := h.Handle(ctx, models.StageMessage{
		JobID: "job-v2", OwnerID: "owner-1", Stage: models.StageVerify, Cycle: 1,
		Inputs: map[string]string{"needs_rewrite": "false"},
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageRewrite, enqueues[0].Queue)

	job, err = store.GetJob(ctx, "job-v2", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 1, job.CyclesCompleted, "a verify pass that routes to rewrite must still count as a completed cycle")
}

// TestVerifyHandlerAccumulatesCyclesCompletedAcrossRewriteCycles exercises
// the full verify->rewrite->verify loop for a job that needs rewriting on
// every cycle until its budget is exhausted: CyclesCompleted must reach
// CyclesRequested, not just 1, once the budget forces termination.
func TestVerifyHandlerAccumulatesCyclesCompletedAcrossRewriteCycles(t *testing.T) {
	gw := llm.NewFakeGateway().
		WithResponse(llm.RoleVerifier, llm.Response{Text: `{"contradictions":[],"needs_rewrite":true}`}).
		WithResponse(llm.RoleVerifier, llm.Response{Text: `{"contradictions":[],"needs_rewrite":true}`})
	deps, store := newWriteDeps(t, gw)
	ctx := context.Background()

	job := &models.Job{ID: "job-v4", OwnerID: "owner-1", Title: "Guide", State: models.StateVerifying, CyclesRequested: 2}
	require.NoError(t, store.CreateJob(ctx, job))
	seedPlanWithOneDraft(t, store, "job-v4")

	h := stages.NewVerifyHandler(deps)

	enqueues, err := h.Handle(ctx, models.StageMessage{
		JobID: "job-v4", OwnerID: "owner-1", Stage: models.StageVerify, Cycle: 1,
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageRewrite, enqueues[0].Queue)

	job, err = store.GetJob(ctx, "job-v4", "owner-1")
	require.NoError(t, err)
	require.Equal(t, 1, job.CyclesCompleted)

	enqueues, err = h.Handle(ctx, models.StageMessage{
		JobID: "job-v4", OwnerID: "owner-1", Stage: models.StageVerify, Cycle: 2,
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageDiagramPrep, enqueues[0].Queue, "cycle budget exhausted must force termination despite needs_rewrite")

	job, err = store.GetJob(ctx, "job-v4", "owner-1")
	require.NoError(t, err)
	require.Equal(t, job.CyclesRequested, job.CyclesCompleted)
}

func TestVerifyHandlerBypassesRewriteWhenCycleBudgetExhausted(t *testing.T) {
	gw := llm.NewFakeGateway().WithResponse(llm.RoleVerifier, llm.Response{Text: `{"contradictions":[],"needs_rewrite":true}`})
	deps, store := newWriteDeps(t, gw)
	ctx := context.Background()

	job := &models.Job{ID: "job-v3", OwnerID: "owner-1", Title: "Guide", State: models.StateVerifying, CyclesRequested: 1}
	require.NoError(t, store.CreateJob(ctx, job))
	seedPlanWithOneDraft(t, store, "job-v3")

	h := stages.NewVerifyHandler(deps)
	enqueues, err := h.Handle(ctx, models.StageMessage{
		JobID: "job-v3", OwnerID: "owner-1", Stage: models.StageVerify, Cycle: 1,
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageDiagramPrep, enqueues[0].Queue, "cycle budget exhausted must force termination regardless of needs_rewrite")
}

func TestRewriteHandlerOverwritesDraftAndEnqueuesNextCycleReview(t *testing.T) {
	gw := llm.NewFakeGateway().WithResponse(llm.RoleRewriter, llm.Response{Text: "revised content"})
	deps, store := newWriteDeps(t, gw)
	ctx := context.Background()

	job := &models.Job{ID: "job-rw1", OwnerID: "owner-1", Title: "Guide", State: models.StateRewriting, CyclesRequested: 2}
	require.NoError(t, store.CreateJob(ctx, job))
	seedPlanWithOneDraft(t, store, "job-rw1")
	require.NoError(t, store.SaveReviewNote(ctx, &models.ReviewNote{
		JobID: "job-rw1", SectionID: "S1", Cycle: 1, Flavor: models.ReviewFlavorGeneral,
		Findings: []string{"needs a citation"}, Severity: "high",
	}))

	h := stages.NewRewriteHandler(deps)
	enqueues, err := h.Handle(ctx, models.StageMessage{
		JobID: "job-rw1", OwnerID: "owner-1", Stage: models.StageRewrite, Cycle: 1,
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageReview, enqueues[0].Queue)
	require.Equal(t, 2, enqueues[0].Message.Cycle)

	draft, err := store.GetSectionDraft(ctx, "job-rw1", "S1", 1)
	require.NoError(t, err)
	require.Equal(t, "revised content", draft.Content)
}
