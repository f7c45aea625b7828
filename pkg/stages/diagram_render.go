package stages

import (
	"context"
	"fmt"
	"strconv"

	"github.com/codeready-toolchain/docwriter/pkg/diagram"
	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// DiagramRenderHandler renders one diagram source to an image asset and,
// using the status store's atomic per-job counter, enqueues finalize
// exactly once — whichever render happens to be the last to complete.
type DiagramRenderHandler struct {
	Deps
	Renderer diagram.Renderer
}

func NewDiagramRenderHandler(d Deps, r diagram.Renderer) *DiagramRenderHandler {
	return &DiagramRenderHandler{Deps: d, Renderer: r}
}

// diagramAssetContentType maps a requested render format to the file
// extension and content-type the asset is stored under, so a png render
// isn't filed under a .svg key (and vice versa). Unknown formats fall
// back to svg, the renderer's default output.
func diagramAssetContentType(format string) (ext, contentType string) {
	switch format {
	case "png":
		return "png", "image/png"
	case "svg":
		return "svg", "image/svg+xml"
	default:
		return "svg", "image/svg+xml"
	}
}

func (h *DiagramRenderHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	if err := requireOwner(msg); err != nil {
		return nil, err
	}

	diagramID := msg.Inputs["diagram_id"]
	format := msg.Inputs["format"]
	if diagramID == "" || format == "" {
		return nil, validationf("diagram-render message for job %s missing diagram_id/format", msg.JobID)
	}
	total, err := strconv.Atoi(msg.Inputs["total"])
	if err != nil || total <= 0 {
		return nil, validationf("diagram-render message for job %s has invalid total %q", msg.JobID, msg.Inputs["total"])
	}

	source, err := h.Objects.Get(ctx, diagramSourceKey(msg.OwnerID, msg.JobID, diagramID))
	if err != nil {
		return nil, fmt.Errorf("read diagram source %q: %w", diagramID, err)
	}

	image, err := h.Renderer.Render(ctx, format, "", string(source))
	if err != nil {
		return nil, fmt.Errorf("render diagram %q: %w", diagramID, err)
	}

	ext, contentType := diagramAssetContentType(format)
	assetKey := diagramAssetKey(msg.OwnerID, msg.JobID, diagramID, ext)
	if err := h.Objects.Put(ctx, assetKey, image, contentType); err != nil {
		return nil, fmt.Errorf("persist diagram asset %q: %w", diagramID, err)
	}

	rendered, err := h.Store.RecordDiagramRendered(ctx, msg.JobID, diagramID, assetKey, total)
	if err != nil {
		return nil, fmt.Errorf("record diagram rendered %q: %w", diagramID, err)
	}

	if rendered < total {
		return nil, nil
	}

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
