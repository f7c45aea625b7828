// Package stages implements the ten pipeline stage handlers — one
// queue.Handler per queue — that carry a job from admission through
// intake, planning, writing, review/verify/rewrite, diagramming, and
// finalization.
package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/objectstore"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
)

// Masker narrows a masking service down to the single operation stage
// handlers need: redact free text before it is persisted or sent to the
// LLM Gateway. Fail-closed implementations should return a redaction
// notice rather than an error.
type Masker interface {
	Mask(text string) string
}

// noopMasker is used when no masking service is configured.
type noopMasker struct{}

func (noopMasker) Mask(text string) string { return text }

// Deps bundles the collaborators every stage handler needs. It is
// constructed once in cmd/docwriter/main.go and passed to each handler
// constructor.
type Deps struct {
	Store   *statusstore.Store
	Objects objectstore.Store
	LLM     llm.Gateway
	Masker  Masker
}

func (d Deps) masker() Masker {
	if d.Masker == nil {
		return noopMasker{}
	}
	return d.Masker
}

// validationf builds a handler error the worker dead-letters immediately
// instead of retrying, for structurally unrecoverable input.
func validationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, queue.ErrValidation)...)
}

// requireOwner enforces the wire-contract rule that any message missing
// owner_id is dead-lettered immediately rather than processed.
func requireOwner(msg models.StageMessage) error {
	if msg.OwnerID == "" {
		return validationf("message for job %s missing owner_id", msg.JobID)
	}
	return nil
}

func putJSON(ctx context.Context, store objectstore.Store, key string, v interface{}) error {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return store.Put(ctx, key, body, "application/json")
}

func getJSON(ctx context.Context, store objectstore.Store, key string, v interface{}) error {
	body, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// intakeKey, planKey, and friends build the canonical object store paths
// from spec.md §6, rooted under JobKey so every read/write stays inside
// jobs/{owner}/{job}/.
func intakeKey(owner, job, name string) string {
	return objectstore.JobKey(owner, job, "intake/"+name+".json")
}

func planKey(owner, job string) string {
	return objectstore.JobKey(owner, job, "plan.json")
}

func memoryKey(owner, job string) string {
	return objectstore.JobKey(owner, job, "memory.json")
}

func draftKey(owner, job, sectionID string) string {
	return objectstore.JobKey(owner, job, fmt.Sprintf("drafts/%s.md", sectionID))
}

func reviewKey(owner, job string, cycle int, flavor string) string {
	return objectstore.JobKey(owner, job, fmt.Sprintf("reviews/cycle-%d/%s.json", cycle, flavor))
}

func rewriteKey(owner, job string, cycle int, sectionID string) string {
	return objectstore.JobKey(owner, job, fmt.Sprintf("rewrites/cycle-%d/%s.md", cycle, sectionID))
}

func diagramSourceKey(owner, job, name string) string {
	return objectstore.JobKey(owner, job, fmt.Sprintf("diagrams/%s.puml", name))
}

func diagramIndexKey(owner, job string) string {
	return objectstore.JobKey(owner, job, "diagrams/index.json")
}

func diagramAssetKey(owner, job, name, ext string) string {
	return objectstore.JobKey(owner, job, fmt.Sprintf("diagrams/%s.%s", name, ext))
}

func finalKey(owner, job, name string) string {
	return objectstore.JobKey(owner, job, name)
}

// parseQuestions decodes a planner response expected to be a JSON array of
// {id, q, sample} objects. The LLM Gateway's system prompt constrains
// output to exactly this shape; a malformed response is a validation
// failure, not a transient one, since retrying an unparseable prompt
// response without a repair step would just fail again.
func parseQuestions(text string) ([]PlanIntakeQuestion, error) {
	var qs []PlanIntakeQuestion
	if err := json.Unmarshal([]byte(text), &qs); err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("empty question set")
	}
	return qs, nil
}
