package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// severityThreshold is the finding severity that forces a rewrite
// regardless of a flavor's own needs_rewrite verdict.
const severityThreshold = "high"

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

func severityAtOrAbove(severity, threshold string) bool {
	return severityRank[strings.ToLower(severity)] >= severityRank[threshold]
}

// reviewFinding is one issue raised against a section by a review flavor.
type reviewFinding struct {
	SectionID      string `json:"section_id"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	SuggestedPatch string `json:"suggested_patch,omitempty"`
}

// reviewDocument is the structured output of a single review flavor,
// persisted to reviews/cycle-{n}/{flavor}.json.
type reviewDocument struct {
	Issues       []reviewFinding `json:"issues"`
	NeedsRewrite bool            `json:"needs_rewrite"`
	TokensUsed   int             `json:"tokens_used"`
}

// Reviewer is the capability every review flavor implements: read the
// job's current drafts for a cycle and produce findings. Concrete variants
// (general, style, cohesion, summary) are registered in reviewerRegistry;
// general is always enabled, the rest are feature-flagged.
type Reviewer interface {
	Flavor() models.ReviewFlavor
	Review(ctx context.Context, gw llm.Gateway, sections []models.PlanSection, drafts map[string]string) (*reviewDocument, error)
}

// llmReviewer is the shared implementation behind every built-in flavor;
// only the flavor name and the system prompt's focus differ.
type llmReviewer struct {
	flavor models.ReviewFlavor
	focus  string
}

func (r llmReviewer) Flavor() models.ReviewFlavor { return r.flavor }

func (r llmReviewer) Review(ctx context.Context, gw llm.Gateway, sections []models.PlanSection, drafts map[string]string) (*reviewDocument, error) {
	var body strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&body, "## %s (%s)\n%s\n\n", s.Title, s.ID, drafts[s.ID])
	}

	resp, err := gw.Generate(ctx, llm.Request{
		Role: llm.RoleReviewer,
		System: fmt.Sprintf("You are a %s reviewer. Respond with JSON "+
			"{issues: [{section_id, severity, description, suggested_patch}], needs_rewrite, tokens_used}.", r.focus),
		Messages: []llm.Message{{Role: "user", Content: body.String()}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s review: %w", r.flavor, err)
	}

	var doc reviewDocument
	if err := json.Unmarshal([]byte(resp.Text), &doc); err != nil {
		return nil, fmt.Errorf("%s review: decode response: %w", r.flavor, err)
	}
	return &doc, nil
}

// BuiltinReviewers returns the four known flavors, general first. Callers
// filter the slice down to the feature-flagged subset before registering a
// ReviewHandler.
func BuiltinReviewers() []Reviewer {
	return []Reviewer{
		llmReviewer{flavor: models.ReviewFlavorGeneral, focus: "general technical accuracy and completeness"},
		llmReviewer{flavor: models.ReviewFlavorStyle, focus: "prose style and tone consistency"},
		llmReviewer{flavor: models.ReviewFlavorCohesion, focus: "cross-section cohesion and terminology consistency"},
		llmReviewer{flavor: models.ReviewFlavorSummary, focus: "whether the document can be accurately summarized"},
	}
}

// ReviewHandler fans out to its registered reviewers concurrently, one
// review message per cycle.
type ReviewHandler struct {
	Deps
	Reviewers []Reviewer
}

// NewReviewHandler constructs a ReviewHandler. If reviewers is empty, only
// the general flavor runs.
func NewReviewHandler(d Deps, reviewers []Reviewer) *ReviewHandler {
	if len(reviewers) == 0 {
		reviewers = []Reviewer{llmReviewer{flavor: models.ReviewFlavorGeneral, focus: "general technical accuracy and completeness"}}
	}
	return &ReviewHandler{Deps: d, Reviewers: reviewers}
}

type indexedReview struct {
	index  int
	flavor models.ReviewFlavor
	doc    *reviewDocument
	err    error
}

func (h *ReviewHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	plan, err := h.Store.GetPlan(ctx, msg.JobID)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	drafts := make(map[string]string, len(plan.Sections))
	for _, s := range plan.Sections {
		draft, err := h.Store.GetSectionDraft(ctx, msg.JobID, s.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("read draft %q: %w", s.ID, err)
		}
		drafts[s.ID] = draft.Content
	}

	results := make(chan indexedReview, len(h.Reviewers))
	var wg sync.WaitGroup
	for i, reviewer := range h.Reviewers {
		wg.Add(1)
		go func(idx int, rv Reviewer) {
			defer wg.Done()
			doc, err := rv.Review(ctx, h.LLM, plan.Sections, drafts)
			results <- indexedReview{index: idx, flavor: rv.Flavor(), doc: doc, err: err}
		}(i, reviewer)
	}
	wg.Wait()
	close(results)

	reviews := make([]indexedReview, 0, len(h.Reviewers))
	for r := range results {
		reviews = append(reviews, r)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].index < reviews[j].index })

	needsRewrite := false
	for _, r := range reviews {
		if r.err != nil {
			return nil, fmt.Errorf("review flavor %s: %w", r.flavor, r.err)
		}

		if err := putJSON(ctx, h.Objects, reviewKey(msg.OwnerID, msg.JobID, msg.Cycle, string(r.flavor)), r.doc); err != nil {
			return nil, fmt.Errorf("persist %s review: %w", r.flavor, err)
		}
		if r.doc.NeedsRewrite {
			needsRewrite = true
		}
		for _, issue := range r.doc.Issues {
			if severityAtOrAbove(issue.Severity, severityThreshold) {
				needsRewrite = true
			}
			if err := h.Store.SaveReviewNote(ctx, &models.ReviewNote{
				JobID: msg.JobID, SectionID: issue.SectionID, Cycle: msg.Cycle,
				Flavor: r.flavor, Findings: []string{issue.Description}, Severity: issue.Severity,
			}); err != nil {
				return nil, fmt.Errorf("save review note: %w", err)
			}
		}
	}

	return []queue.Enqueue{{
		Queue: models.StageVerify,
		Message: models.StageMessage{
			JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageVerify,
			Cycle: msg.Cycle, Inputs: map[string]string{"needs_rewrite": fmt.Sprintf("%t", needsRewrite)},
			TraceID: msg.TraceID,
		},
	}}, nil
}
