package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// dependencyNotReadyBackoff is the visibility delay applied when a write
// message's predecessors don't have drafts yet — short enough that the
// pipeline doesn't stall long once the real dependency finishes.
const dependencyNotReadyBackoff = 5 * time.Second

// memory is the shared per-job scratchpad the writer reads and grows:
// style notes, declared facts, and glossary increments surfaced to later
// sections.
type memory struct {
	StyleNotes []string          `json:"style_notes,omitempty"`
	Facts      []string          `json:"facts,omitempty"`
	Glossary   map[string]string `json:"glossary,omitempty"`
}

// WriteHandler drafts one or more ready sections per invocation —
// DOCWRITER_WRITE_BATCH_SIZE controls how many section ids one message
// may carry, written sequentially within the handler.
type WriteHandler struct {
	Deps
}

func NewWriteHandler(d Deps) *WriteHandler { return &WriteHandler{Deps: d} }

func (h *WriteHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	sectionIDs := batchSectionIDs(msg)
	if len(sectionIDs) == 0 {
		return nil, validationf("write message for job %s carries no section_id", msg.JobID)
	}

	plan, err := h.Store.GetPlan(ctx, msg.JobID)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	byID := make(map[string]models.PlanSection, len(plan.Sections))
	for _, s := range plan.Sections {
		byID[s.ID] = s
	}

	for _, sectionID := range sectionIDs {
		section, ok := byID[sectionID]
		if !ok {
			return nil, validationf("section %q not found in plan for job %s", sectionID, msg.JobID)
		}

		if len(section.DependsOn) > 0 {
			ready, err := h.Store.SectionsReady(ctx, msg.JobID, 1, section.DependsOn)
			if err != nil {
				return nil, fmt.Errorf("check dependency readiness: %w", err)
			}
			for _, dep := range section.DependsOn {
				if !ready[dep] {
					return nil, &queue.BackoffError{
						Err:   fmt.Errorf("section %q waiting on %q", sectionID, dep),
						Delay: dependencyNotReadyBackoff,
					}
				}
			}
		}

		if err := h.writeSection(ctx, msg, section); err != nil {
			return nil, err
		}
	}

	allReady, err := h.allSectionsReady(ctx, msg.JobID, plan)
	if err != nil {
		return nil, fmt.Errorf("check plan completion: %w", err)
	}
	if !allReady {
		return nil, nil
	}

	if err := h.Store.SetState(ctx, msg.JobID, models.StateReviewing); err != nil {
		return nil, fmt.Errorf("advance job state: %w", err)
	}
	return []queue.Enqueue{{
		Queue: models.StageReview,
		Message: models.StageMessage{
			JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageReview,
			Cycle: 1, TraceID: msg.TraceID,
		},
	}}, nil
}

func (h *WriteHandler) writeSection(ctx context.Context, msg models.StageMessage, section models.PlanSection) error {
	summaries := make([]string, 0, len(section.DependsOn))
	for _, dep := range section.DependsOn {
		draft, err := h.Store.GetSectionDraft(ctx, msg.JobID, dep, 1)
		if err != nil {
			return fmt.Errorf("read prerequisite draft %q: %w", dep, err)
		}
		summaries = append(summaries, fmt.Sprintf("%s: %s", dep, summarize(draft.Content)))
	}

	var mem memory
	_ = getJSON(ctx, h.Objects, memoryKey(msg.OwnerID, msg.JobID), &mem)

	resp, err := h.LLM.Generate(ctx, llm.Request{
		Role:   llm.RoleWriter,
		System: "You are a technical writer drafting one section of a long-form document in Markdown.",
		Messages: []llm.Message{{
			Role: "user",
			Content: fmt.Sprintf("Section: %s\nPrerequisites:\n%s\nStyle notes: %v",
				section.Title, strings.Join(summaries, "\n"), mem.StyleNotes),
		}},
	})
	if err != nil {
		return fmt.Errorf("generate section %q: %w", section.ID, err)
	}

	content := h.masker().Mask(resp.Text)
	if err := h.Objects.Put(ctx, draftKey(msg.OwnerID, msg.JobID, section.ID), []byte(content), "text/markdown"); err != nil {
		return fmt.Errorf("persist draft %q: %w", section.ID, err)
	}
	if err := h.Store.SaveSectionDraft(ctx, &models.SectionDraft{
		JobID: msg.JobID, SectionID: section.ID, Cycle: 1, Content: content,
	}); err != nil {
		return fmt.Errorf("save draft %q: %w", section.ID, err)
	}

	return h.mergeMemory(ctx, msg, section.Title)
}

// mergeMemory applies the optimistic-concurrency merge: read the job's
// current memory_version, re-read and re-merge on conflict, so concurrent
// sibling-section writers never lose an update.
func (h *WriteHandler) mergeMemory(ctx context.Context, msg models.StageMessage, sectionTitle string) error {
	for attempt := 0; attempt < 5; attempt++ {
		job, err := h.Store.GetJob(ctx, msg.JobID, "")
		if err != nil {
			return fmt.Errorf("read job for memory merge: %w", err)
		}

		var mem memory
		_ = getJSON(ctx, h.Objects, memoryKey(msg.OwnerID, msg.JobID), &mem)
		mem.StyleNotes = appendUnique(mem.StyleNotes, fmt.Sprintf("section %q follows established tone", sectionTitle))

		if _, err := h.Store.UpdateMemory(ctx, msg.JobID, job.MemoryVersion); err != nil {
			continue
		}
		return putJSON(ctx, h.Objects, memoryKey(msg.OwnerID, msg.JobID), mem)
	}
	return fmt.Errorf("memory merge for job %s did not converge after retries", msg.JobID)
}

func (h *WriteHandler) allSectionsReady(ctx context.Context, jobID string, plan *models.Plan) (bool, error) {
	ids := make([]string, len(plan.Sections))
	for i, s := range plan.Sections {
		ids[i] = s.ID
	}
	ready, err := h.Store.SectionsReady(ctx, jobID, 1, ids)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if !ready[id] {
			return false, nil
		}
	}
	return true, nil
}

func batchSectionIDs(msg models.StageMessage) []string {
	if batch := msg.Inputs["section_ids"]; batch != "" {
		parts := strings.Split(batch, ",")
		ids := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				ids = append(ids, p)
			}
		}
		return ids
	}
	if id := msg.Inputs["section_id"]; id != "" {
		return []string{id}
	}
	return nil
}

func appendUnique(existing []string, note string) []string {
	for _, e := range existing {
		if e == note {
			return existing
		}
	}
	return append(existing, note)
}

func summarize(content string) string {
	const maxLen = 240
	content = strings.TrimSpace(content)
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
