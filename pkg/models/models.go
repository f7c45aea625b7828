// Package models holds the data types shared across the orchestration
// kernel: jobs, intake records, plans, drafts, reviews, and the state
// machine that governs how a job moves between stages.
package models

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a Job, as tracked in the status store.
type State string

const (
	StateAdmitted        State = "ADMITTED"
	StateAwaitingAnswers State = "AWAITING_ANSWERS"
	StatePlanning        State = "PLANNING"
	StateWriting         State = "WRITING"
	StateReviewing        State = "REVIEWING"
	StateVerifying        State = "VERIFYING"
	StateRewriting        State = "REWRITING"
	StateDiagramming      State = "DIAGRAMMING"
	StateFinalizing       State = "FINALIZING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
	StateDeadLettered     State = "DEAD_LETTERED"
)

// Phase is a stage lifecycle event published on the Status Topic.
type Phase string

const (
	PhaseStageStart  Phase = "STAGE_START"
	PhaseStageDone   Phase = "STAGE_DONE"
	PhaseStageFailed Phase = "STAGE_FAILED"
)

// Stage names, one per queue.
const (
	StagePlanIntake    = "plan-intake"
	StageIntakeResume  = "intake-resume"
	StagePlan          = "plan"
	StageWrite         = "write"
	StageReview        = "review"
	StageVerify        = "verify"
	StageRewrite       = "rewrite"
	StageDiagramPrep   = "diagram-prep"
	StageDiagramRender = "diagram-render"
	StageFinalize      = "finalize"
)

// NextState computes the successor state for a given current state and
// observed stage phase. It is a pure function so the state machine
// invariants in the kernel's testable properties can be asserted directly
// against the transition table, independent of the queue/worker plumbing.
func NextState(current State, stage string, phase Phase) State {
	if phase == PhaseStageFailed {
		return StateFailed
	}
	if phase == PhaseStageStart {
		switch stage {
		case StagePlanIntake, StageIntakeResume:
			return StateAwaitingAnswers
		case StagePlan:
			return StatePlanning
		case StageWrite:
			return StateWriting
		case StageReview:
			return StateReviewing
		case StageVerify:
			return StateVerifying
		case StageRewrite:
			return StateRewriting
		case StageDiagramPrep, StageDiagramRender:
			return StateDiagramming
		case StageFinalize:
			return StateFinalizing
		}
		return current
	}
	// PhaseStageDone
	switch stage {
	case StageFinalize:
		return StateDone
	}
	return current
}

// Job is the root aggregate for a document-writing request.
type Job struct {
	ID             string
	OwnerID        string
	Title          string
	State          State
	MemoryVersion  int64
	CyclesRequested int
	CyclesCompleted int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FailureReason  string
}

// IntakeRecord captures the clarifying Q&A gathered before planning.
type IntakeRecord struct {
	JobID     string
	Questions []string
	Answers   map[string]string
	Complete  bool
}

// Plan is the section outline produced by the plan stage.
type Plan struct {
	JobID    string
	Sections []PlanSection
}

// PlanSection describes one section of the outline and its dependencies.
type PlanSection struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// SectionDraft is the writer's output for one section in one cycle.
type SectionDraft struct {
	JobID     string
	SectionID string
	Cycle     int
	Content   string
}

// ReviewFlavor names a reviewer persona.
type ReviewFlavor string

const (
	ReviewFlavorGeneral  ReviewFlavor = "general"
	ReviewFlavorStyle    ReviewFlavor = "style"
	ReviewFlavorCohesion ReviewFlavor = "cohesion"
	ReviewFlavorSummary  ReviewFlavor = "summary"
)

// ReviewNote is one reviewer's findings for a section in a cycle.
type ReviewNote struct {
	JobID     string
	SectionID string
	Cycle     int
	Flavor    ReviewFlavor
	Findings  []string
	Severity  string
}

// VerifyReport is the verifier's judgment of whether review findings were
// addressed after a rewrite.
type VerifyReport struct {
	JobID     string
	SectionID string
	Cycle     int
	Resolved  []string
	Unresolved []string
	Pass      bool
}

// RewriteResult is the rewriter's output addressing review findings.
type RewriteResult struct {
	JobID     string
	SectionID string
	Cycle     int
	Content   string
}

// DiagramSpec is a diagram request produced during diagram-prep.
type DiagramSpec struct {
	JobID      string
	SectionID  string
	DiagramID  string
	Source     string // PlantUML/Mermaid source text
	Format     string
}

// DiagramAsset is the rendered output of a DiagramSpec.
type DiagramAsset struct {
	JobID     string
	DiagramID string
	ImagePath string
	Rendered  int
	Total     int
}

// FinalArtifactSet is the set of pointers to the finished document.
type FinalArtifactSet struct {
	JobID        string
	ArtifactPath string
	DiagramArchivePath string
}

// TimelineEvent is one append-only status event recorded by the recorder.
type TimelineEvent struct {
	ID        int64
	JobID     string
	Stage     string
	Phase     Phase
	Cycle     int
	Message   string
	Timestamp time.Time
}

// DocumentIndexRow is a denormalized listing entry for a job's documents.
type DocumentIndexRow struct {
	JobID     string
	OwnerID   string
	Title     string
	State     State
	UpdatedAt time.Time
}

// StageMessage is the payload carried by every queue message. Extra
// preserves unrecognized fields so older/newer producers can forward
// messages without losing data, matching the forward-compatibility
// requirement on the wire contract.
type StageMessage struct {
	JobID   string                     `json:"job_id"`
	OwnerID string                     `json:"owner_id"`
	Stage   string                     `json:"stage"`
	Cycle   int                        `json:"cycle"`
	Inputs  map[string]string          `json:"inputs,omitempty"`
	Attempt int                        `json:"attempt"`
	TraceID string                     `json:"trace_id"`
	Extra   map[string]json.RawMessage `json:"extra,omitempty"`
}
