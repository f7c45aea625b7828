package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// RewriteHandler addresses flagged sections for one cycle: it invokes the
// writer with the original draft and review findings, writes a cycle-
// scoped rewrite blob, and repoints the canonical draft to it.
type RewriteHandler struct {
	Deps
}

func NewRewriteHandler(d Deps) *RewriteHandler { return &RewriteHandler{Deps: d} }

func (h *RewriteHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	plan, err := h.Store.GetPlan(ctx, msg.JobID)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	for _, s := range plan.Sections {
		notes, err := h.Store.ListReviewNotes(ctx, msg.JobID, s.ID, msg.Cycle)
		if err != nil {
			return nil, fmt.Errorf("read review notes %q: %w", s.ID, err)
		}
		if len(notes) == 0 {
			continue
		}

		draft, err := h.Store.GetSectionDraft(ctx, msg.JobID, s.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("read draft %q: %w", s.ID, err)
		}

		resp, err := h.LLM.Generate(ctx, llm.Request{
			Role:   llm.RoleRewriter,
			System: "You revise one document section to address reviewer findings while preserving what already works.",
			Messages: []llm.Message{{
				Role: "user",
				Content: fmt.Sprintf("Original:\n%s\n\nFindings:\n%s",
					draft.Content, strings.Join(findingSummaries(notes), "\n")),
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("rewrite section %q: %w", s.ID, err)
		}

		content := h.masker().Mask(resp.Text)
		if err := h.Objects.Put(ctx, rewriteKey(msg.OwnerID, msg.JobID, msg.Cycle, s.ID), []byte(content), "text/markdown"); err != nil {
			return nil, fmt.Errorf("persist rewrite %q: %w", s.ID, err)
		}
		if err := h.Store.SaveRewriteResult(ctx, &models.RewriteResult{
			JobID: msg.JobID, SectionID: s.ID, Cycle: msg.Cycle, Content: content,
		}); err != nil {
			return nil, fmt.Errorf("save rewrite result %q: %w", s.ID, err)
		}

		// Repoint the canonical draft to the rewritten blob only after the
		// rewrite blob itself is durably written, so a crash mid-rewrite
		// leaves the prior cycle's draft intact rather than a half-written one.
		if err := h.Objects.Put(ctx, draftKey(msg.OwnerID, msg.JobID, s.ID), []byte(content), "text/markdown"); err != nil {
			return nil, fmt.Errorf("repoint draft %q: %w", s.ID, err)
		}
		// The canonical draft record always lives at cycle 1 — review and
		// verify read a section's current content there regardless of how
		// many rewrite cycles have run; per-cycle history lives under
		// rewrites/cycle-{n}/ instead.
		if err := h.Store.SaveSectionDraft(ctx, &models.SectionDraft{
			JobID: msg.JobID, SectionID: s.ID, Cycle: 1, Content: content,
		}); err != nil {
			return nil, fmt.Errorf("save rewritten draft %q: %w", s.ID, err)
		}
	}

	if err := h.Store.SetState(ctx, msg.JobID, models.StateReviewing); err != nil {
		return nil, fmt.Errorf("advance job state: %w", err)
	}
	return []queue.Enqueue{{
		Queue: models.StageReview,
		Message: models.StageMessage{
			JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageReview,
			Cycle: msg.Cycle + 1, TraceID: msg.TraceID,
		},
	}}, nil
}
