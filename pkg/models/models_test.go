package models_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/models"
)

func TestNextStateStageFailedAlwaysFails(t *testing.T) {
	require.Equal(t, models.StateFailed, models.NextState(models.StateWriting, models.StageWrite, models.PhaseStageFailed))
	require.Equal(t, models.StateFailed, models.NextState(models.StateReviewing, models.StageReview, models.PhaseStageFailed))
}

func TestNextStateStartTransitions(t *testing.T) {
	require.Equal(t, models.StatePlanning, models.NextState(models.StateAwaitingAnswers, models.StagePlan, models.PhaseStageStart))
	require.Equal(t, models.StateWriting, models.NextState(models.StatePlanning, models.StageWrite, models.PhaseStageStart))
	require.Equal(t, models.StateDiagramming, models.NextState(models.StateRewriting, models.StageDiagramPrep, models.PhaseStageStart))
}

func TestNextStateFinalizeDoneReachesDone(t *testing.T) {
	require.Equal(t, models.StateDone, models.NextState(models.StateFinalizing, models.StageFinalize, models.PhaseStageDone))
}
