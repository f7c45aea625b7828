package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// PlanHandler calls the planner model to produce a section outline,
// validates it forms a DAG, and enqueues one write message per section.
type PlanHandler struct {
	Deps
}

func NewPlanHandler(d Deps) *PlanHandler { return &PlanHandler{Deps: d} }

func (h *PlanHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	var intakeCtx intakeContext
	if err := getJSON(ctx, h.Objects, intakeKey(msg.OwnerID, msg.JobID, "context"), &intakeCtx); err != nil {
		return nil, fmt.Errorf("read intake context: %w", err)
	}

	system := "You are a planner producing a section outline for a long-form technical " +
		"document. Respond with a JSON array of {id, title, depends_on} objects. " +
		"Dependencies must reference ids earlier in the array."
	if msg.Attempt > 1 {
		system += " Your previous output failed validation (duplicate ids, a cycle, or an " +
			"empty plan). Produce a corrected, strictly acyclic outline."
	}

	resp, err := h.LLM.Generate(ctx, llm.Request{
		Role:   llm.RolePlanner,
		System: system,
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Title: %s\nAudience: %s\nAnswers: %v",
				intakeCtx.Title, intakeCtx.Audience, intakeCtx.Answers),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	sections, err := parsePlanSections(resp.Text)
	if err != nil {
		if msg.Attempt > 1 {
			return nil, validationf("plan for job %s failed validation after repair attempt: %v", msg.JobID, err)
		}
		return nil, fmt.Errorf("plan for job %s failed validation, retrying with repair prompt: %w", msg.JobID, err)
	}

	plan := &models.Plan{JobID: msg.JobID, Sections: sections}
	if err := putJSON(ctx, h.Objects, planKey(msg.OwnerID, msg.JobID), plan); err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}
	if err := h.Store.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	if err := h.Store.SetState(ctx, msg.JobID, models.StateWriting); err != nil {
		return nil, fmt.Errorf("advance job state: %w", err)
	}

	enqueues := make([]queue.Enqueue, 0, len(sections))
	for _, s := range sections {
		enqueues = append(enqueues, queue.Enqueue{
			Queue: models.StageWrite,
			Message: models.StageMessage{
				JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageWrite,
				Cycle: 1, Inputs: map[string]string{"section_id": s.ID}, TraceID: msg.TraceID,
			},
		})
	}
	return enqueues, nil
}

// parsePlanSections decodes and validates the planner's section outline:
// unique ids, a DAG over depends_on, at least one section, and every
// dependency referencing an id earlier in the list.
func parsePlanSections(text string) ([]models.PlanSection, error) {
	var sections []models.PlanSection
	if err := json.Unmarshal([]byte(text), &sections); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("plan has no sections")
	}

	seen := make(map[string]bool, len(sections))
	for _, s := range sections {
		if s.ID == "" {
			return nil, fmt.Errorf("section with empty id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate section id %q", s.ID)
		}
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("section %q depends on %q, which is not an earlier section", s.ID, dep)
			}
		}
		seen[s.ID] = true
	}
	return sections, nil
}
