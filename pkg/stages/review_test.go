package stages_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/stages"
)

func TestReviewHandlerFansOutAndConsolidatesNeedsRewrite(t *testing.T) {
	gw := llm.NewFakeGateway().
		WithResponse(llm.RoleReviewer, llm.Response{Text: `{"issues":[{"section_id":"S2","severity":"high","description":"missing citation"}],"needs_rewrite":false,"tokens_used":42}`})
	deps, store := newWriteDeps(t, gw)
	ctx := context.Background()

	job := &models.Job{ID: "job-r1", OwnerID: "owner-1", Title: "Guide", State: models.StateReviewing, CyclesRequested: 2}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.SavePlan(ctx, &models.Plan{JobID: "job-r1", Sections: []models.PlanSection{
		{ID: "S1", Title: "One"}, {ID: "S2", Title: "Two", DependsOn: []string{"S1"}},
	}}))
	require.NoError(t, store.SaveSectionDraft(ctx, &models.SectionDraft{JobID: "job-r1", SectionID: "S1", Cycle: 1, Content: "D1"}))
	require.NoError(t, store.SaveSectionDraft(ctx, &models.SectionDraft{JobID: "job-r1", SectionID: "S2", Cycle: 1, Content: "D2"}))

	h := stages.NewReviewHandler(deps, nil)
	enqueues, err := h.Handle(ctx, models.StageMessage{
		JobID: "job-r1", OwnerID: "owner-1", Stage: models.StageReview, Cycle: 1,
	})
	require.NoError(t, err)
	require.Len(t, enqueues, 1)
	require.Equal(t, models.StageVerify, enqueues[0].Queue)
	require.Equal(t, "true", enqueues[0].Message.Inputs["needs_rewrite"], "a high-severity finding forces rewrite even if the flavor itself said false")

	notes, err := store.ListReviewNotes(ctx, "job-r1", "S2", 1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "high", notes[0].Severity)
}
