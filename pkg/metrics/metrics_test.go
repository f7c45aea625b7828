package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveQueueDepth(t *testing.T) {
	ObserveQueueDepth("plan-intake", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(QueueDepth.WithLabelValues("plan-intake")))

	ObserveQueueDepth("plan-intake", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(QueueDepth.WithLabelValues("plan-intake")))
}

func TestObserveDeadLetterCount(t *testing.T) {
	ObserveDeadLetterCount("verify", 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(DeadLetterCount.WithLabelValues("verify")))
}

func TestRecordCyclesUsed(t *testing.T) {
	jobsBefore := testutil.ToFloat64(JobsTotal.WithLabelValues("done"))

	RecordCyclesUsed("done", 3)

	jobsAfter := testutil.ToFloat64(JobsTotal.WithLabelValues("done"))
	assert.Equal(t, jobsBefore+1, jobsAfter)
}
