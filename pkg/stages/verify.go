package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// verifyDocument is the consolidated contradiction check persisted to
// reviews/cycle-{n}/verify.json.
type verifyDocument struct {
	Contradictions []string `json:"contradictions"`
	NeedsRewrite   bool     `json:"needs_rewrite"`
}

// VerifyHandler re-checks review findings against cross-section summaries
// and decides whether the cycle proceeds to rewrite or advances straight
// to diagram-prep.
type VerifyHandler struct {
	Deps
}

func NewVerifyHandler(d Deps) *VerifyHandler { return &VerifyHandler{Deps: d} }

func (h *VerifyHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	job, err := h.Store.GetJob(ctx, msg.JobID, "")
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	plan, err := h.Store.GetPlan(ctx, msg.JobID)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var body strings.Builder
	for _, s := range plan.Sections {
		draft, err := h.Store.GetSectionDraft(ctx, msg.JobID, s.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("read draft %q: %w", s.ID, err)
		}
		notes, err := h.Store.ListReviewNotes(ctx, msg.JobID, s.ID, msg.Cycle)
		if err != nil {
			return nil, fmt.Errorf("read review notes %q: %w", s.ID, err)
		}
		fmt.Fprintf(&body, "## %s\n%s\nFindings: %v\n\n", s.ID, draft.Content, findingSummaries(notes))
	}

	resp, err := h.LLM.Generate(ctx, llm.Request{
		Role:   llm.RoleVerifier,
		System: "You check for contradictions across sections and confirm whether prior review findings were addressed. Respond with JSON {contradictions: [string], needs_rewrite: bool}.",
		Messages: []llm.Message{{Role: "user", Content: body.String()}},
	})
	if err != nil {
		return nil, fmt.Errorf("verify generate: %w", err)
	}

	var doc verifyDocument
	if err := json.Unmarshal([]byte(resp.Text), &doc); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if err := putJSON(ctx, h.Objects, reviewKey(msg.OwnerID, msg.JobID, msg.Cycle, "verify"), doc); err != nil {
		return nil, fmt.Errorf("persist verify report: %w", err)
	}
	if err := h.Store.SaveVerifyReport(ctx, &models.VerifyReport{
		JobID: msg.JobID, Cycle: msg.Cycle, Unresolved: doc.Contradictions, Pass: !doc.NeedsRewrite,
	}); err != nil {
		return nil, fmt.Errorf("save verify report: %w", err)
	}

	reviewWantsRewrite := msg.Inputs["needs_rewrite"] == "true"
	cycleBudgetRemains := msg.Cycle+1 <= job.CyclesRequested
	needsRewrite := (doc.NeedsRewrite || reviewWantsRewrite) && cycleBudgetRemains

	// Every call to Handle represents one completed review/verify pass,
	// whether it proceeds to rewrite or advances to diagram-prep, so
	// cycles_completed increments here regardless of branch.
	if _, err := h.Store.IncrementCycle(ctx, msg.JobID); err != nil {
		return nil, fmt.Errorf("record completed cycle: %w", err)
	}

	if needsRewrite {
		if err := h.Store.SetState(ctx, msg.JobID, models.StateRewriting); err != nil {
			return nil, fmt.Errorf("advance job state: %w", err)
		}
		return []queue.Enqueue{{
			Queue: models.StageRewrite,
			Message: models.StageMessage{
				JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageRewrite,
				Cycle: msg.Cycle, TraceID: msg.TraceID,
			},
		}}, nil
	}

	if err := h.Store.SetState(ctx, msg.JobID, models.StateDiagramming); err != nil {
		return nil, fmt.Errorf("advance job state: %w", err)
	}
	return []queue.Enqueue{{
		Queue: models.StageDiagramPrep,
		Message: models.StageMessage{
			JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageDiagramPrep,
			Cycle: msg.Cycle, TraceID: msg.TraceID,
		},
	}}, nil
}

func findingSummaries(notes []models.ReviewNote) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, fmt.Sprintf("[%s/%s] %s", n.Flavor, n.Severity, strings.Join(n.Findings, "; ")))
	}
	return out
}
