package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// intakeContext is the deterministic merge of title, audience, cycles and
// answers written to intake/context.json. It intentionally carries no
// timestamp, so identical answers produce a byte-identical context on
// replay.
type intakeContext struct {
	Title    string            `json:"title"`
	Audience string            `json:"audience"`
	Cycles   int               `json:"cycles"`
	Answers  map[string]string `json:"answers"`
}

// IntakeResumeHandler persists submitted answers, merges them into the
// authoritative planner context, and enqueues plan.
type IntakeResumeHandler struct {
	Deps
}

func NewIntakeResumeHandler(d Deps) *IntakeResumeHandler { return &IntakeResumeHandler{Deps: d} }

func (h *IntakeResumeHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	var answers map[string]string
	if raw, ok := msg.Extra["answers"]; ok {
		if err := json.Unmarshal(raw, &answers); err != nil {
			return nil, validationf("intake-resume message for job %s has malformed answers: %v", msg.JobID, err)
		}
	}
	if answers == nil {
		answers = map[string]string{}
	}
	for k, v := range answers {
		answers[k] = h.masker().Mask(v)
	}

	if err := putJSON(ctx, h.Objects, intakeKey(msg.OwnerID, msg.JobID, "answers"), answers); err != nil {
		return nil, fmt.Errorf("persist intake answers: %w", err)
	}

	cycles := 1
	if v := msg.Inputs["cycles"]; v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cycles); err != nil {
			cycles = 1
		}
	}

	ctxDoc := intakeContext{
		Title:    msg.Inputs["title"],
		Audience: msg.Inputs["audience"],
		Cycles:   cycles,
		Answers:  answers,
	}
	if err := putJSON(ctx, h.Objects, intakeKey(msg.OwnerID, msg.JobID, "context"), ctxDoc); err != nil {
		return nil, fmt.Errorf("persist intake context: %w", err)
	}

	if err := h.Store.SetState(ctx, msg.JobID, models.StatePlanning); err != nil {
		return nil, fmt.Errorf("advance job state: %w", err)
	}

	return []queue.Enqueue{{
		Queue: models.StagePlan,
		Message: models.StageMessage{
			JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StagePlan,
			TraceID: msg.TraceID,
		},
	}}, nil
}
