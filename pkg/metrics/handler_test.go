package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
)

type fakeHandler struct {
	enqueues []queue.Enqueue
	err      error
}

func (f *fakeHandler) Handle(_ context.Context, _ models.StageMessage) ([]queue.Enqueue, error) {
	return f.enqueues, f.err
}

func TestInstrumentHandler_RecordsDoneOutcome(t *testing.T) {
	before := testutil.CollectAndCount(StageDuration)

	inner := &fakeHandler{enqueues: []queue.Enqueue{{Queue: "write"}}}
	h := InstrumentHandler("plan-instrumented-test", inner)

	enqueues, err := h.Handle(context.Background(), models.StageMessage{JobID: "job-1"})
	require.NoError(t, err)
	assert.Len(t, enqueues, 1)

	after := testutil.CollectAndCount(StageDuration)
	assert.Greater(t, after, before)
}

func TestInstrumentHandler_RecordsFailedOutcome(t *testing.T) {
	inner := &fakeHandler{err: errors.New("boom")}
	h := InstrumentHandler("write-instrumented-test", inner)

	_, err := h.Handle(context.Background(), models.StageMessage{JobID: "job-2"})
	require.Error(t, err)

	after := testutil.CollectAndCount(StageDuration)
	assert.Greater(t, after, 0)
}
