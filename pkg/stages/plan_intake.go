package stages

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// PlanIntakeQuestion mirrors the {id, q, sample} shape the interviewer
// prompt produces.
type PlanIntakeQuestion struct {
	ID     string `json:"id"`
	Q      string `json:"q"`
	Sample string `json:"sample,omitempty"`
}

// PlanIntakeHandler runs the plan-intake stage: it calls the LLM Gateway
// with the interviewer prompt and persists the resulting questionnaire.
// It does not enqueue a follow-up stage — the pipeline suspends here
// until SubmitAnswers drives intake-resume.
type PlanIntakeHandler struct {
	Deps
}

// NewPlanIntakeHandler constructs a PlanIntakeHandler.
func NewPlanIntakeHandler(d Deps) *PlanIntakeHandler { return &PlanIntakeHandler{Deps: d} }

func (h *PlanIntakeHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	title := msg.Inputs["title"]
	audience := msg.Inputs["audience"]
	if title == "" {
		return nil, validationf("plan-intake message for job %s missing title", msg.JobID)
	}

	resp, err := h.LLM.Generate(ctx, llm.Request{
		Role: llm.RolePlanner,
		System: "You are an interviewer preparing clarifying questions before planning a " +
			"long-form technical document. Produce 3-7 short questions as a JSON array of " +
			"{id, q, sample}.",
		Messages: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Title: %s\nAudience: %s\nCycles: %s", title, audience, msg.Inputs["cycles"]),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("generate intake questions: %w", err)
	}

	questions, err := parseQuestions(resp.Text)
	if err != nil {
		return nil, validationf("planner returned unparseable questions for job %s: %v", msg.JobID, err)
	}

	if err := putJSON(ctx, h.Objects, intakeKey(msg.OwnerID, msg.JobID, "questions"), questions); err != nil {
		return nil, fmt.Errorf("persist intake questions: %w", err)
	}

	qIDs := make([]string, len(questions))
	for i, q := range questions {
		qIDs[i] = q.ID
	}
	if err := h.Store.SaveIntake(ctx, &models.IntakeRecord{JobID: msg.JobID, Questions: qIDs}); err != nil {
		return nil, fmt.Errorf("save intake record: %w", err)
	}

	return nil, nil
}
