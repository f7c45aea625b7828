package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// diagramFence matches a fenced code block whose info string names a
// diagram format and id, e.g. ```puml:sequence-1 ... ``` or
// ```mermaid:flow-2 ... ```. Writers embed diagrams this way so
// diagram-prep can find them without a separate sidecar file.
var diagramFence = regexp.MustCompile("(?s)```(puml|mermaid):([a-zA-Z0-9_-]+)\\n(.*?)```")

// DiagramPrepHandler scans every section draft for embedded diagram
// sources, persists a manifest, and fans out one diagram-render message
// per diagram — or skips straight to finalize when a document has none.
type DiagramPrepHandler struct {
	Deps
}

func NewDiagramPrepHandler(d Deps) *DiagramPrepHandler { return &DiagramPrepHandler{Deps: d} }

func (h *DiagramPrepHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	plan, err := h.Store.GetPlan(ctx, msg.JobID)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var specs []models.DiagramSpec
	for _, s := range plan.Sections {
		draft, err := h.Store.GetSectionDraft(ctx, msg.JobID, s.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("read draft %q: %w", s.ID, err)
		}
		for _, m := range diagramFence.FindAllStringSubmatch(draft.Content, -1) {
			format, diagramID, source := m[1], m[2], strings.TrimSpace(m[3])
			spec := models.DiagramSpec{JobID: msg.JobID, SectionID: s.ID, DiagramID: diagramID, Source: source, Format: format}
			if err := h.Objects.Put(ctx, diagramSourceKey(msg.OwnerID, msg.JobID, diagramID), []byte(source), "text/plain"); err != nil {
				return nil, fmt.Errorf("persist diagram source %q: %w", diagramID, err)
			}
			if err := h.Store.SaveDiagramSpec(ctx, &spec); err != nil {
				return nil, fmt.Errorf("save diagram spec %q: %w", diagramID, err)
			}
			specs = append(specs, spec)
		}
	}

	if err := putJSON(ctx, h.Objects, diagramIndexKey(msg.OwnerID, msg.JobID), specs); err != nil {
		return nil, fmt.Errorf("persist diagram index: %w", err)
	}

	if len(specs) == 0 {
		if err := h.Store.SetState(ctx, msg.JobID, models.StateFinalizing); err != nil {
			return nil, fmt.Errorf("advance job state: %w", err)
		}
		return []queue.Enqueue{{
			Queue: models.StageFinalize,
			Message: models.StageMessage{
				JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageFinalize,
				Cycle: msg.Cycle, TraceID: msg.TraceID,
			},
		}}, nil
	}

	enqueues := make([]queue.Enqueue, 0, len(specs))
	for _, spec := range specs {
		enqueues = append(enqueues, queue.Enqueue{
			Queue: models.StageDiagramRender,
			Message: models.StageMessage{
				JobID: msg.JobID, OwnerID: msg.OwnerID, Stage: models.StageDiagramRender,
				Cycle: msg.Cycle, TraceID: msg.TraceID,
				Inputs: map[string]string{
					"diagram_id": spec.DiagramID, "format": spec.Format, "total": fmt.Sprintf("%d", len(specs)),
				},
			},
		})
	}
	return enqueues, nil
}
