package metrics

import (
	"context"
	"time"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

// instrumentedHandler wraps a queue.Handler, timing every Handle call
// into StageDuration without the wrapped handler knowing metrics exist.
type instrumentedHandler struct {
	stage string
	inner queue.Handler
}

// InstrumentHandler wraps h so every invocation records its duration and
// outcome under the given stage label. Outcome is "done" when Handle
// returns a nil error and "failed" otherwise; the worker, not this
// wrapper, is responsible for distinguishing dead-lettered failures.
func InstrumentHandler(stage string, h queue.Handler) queue.Handler {
	return &instrumentedHandler{stage: stage, inner: h}
}

func (h *instrumentedHandler) Handle(ctx context.Context, msg models.StageMessage) ([]queue.Enqueue, error) {
	start := time.Now()
	enqueues, err := h.inner.Handle(ctx, msg)

	outcome := "done"
	if err != nil {
		outcome = "failed"
	}
	StageDuration.WithLabelValues(h.stage, outcome).Observe(time.Since(start).Seconds())

	return enqueues, err
}
