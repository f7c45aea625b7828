// Package kernel exposes the orchestration kernel's external operations
// as plain Go methods — the surface an HTTP front-end (out of scope here)
// would call into. Every operation enforces owner match before touching
// job state or blobs.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/docwriter/pkg/models"
	"github.com/codeready-toolchain/docwriter/pkg/objectstore"
	"github.com/codeready-toolchain/docwriter/pkg/queue"
	"github.com/codeready-toolchain/docwriter/pkg/statusstore"
)

// ErrNotAuthorized is returned whenever a caller's owner_id doesn't match
// the job's, or the job doesn't exist for that owner — the kernel never
// distinguishes "wrong owner" from "no such job" to avoid leaking
// existence of other owners' jobs.
var ErrNotAuthorized = errors.New("not authorized")

// Status is the projection returned by GetStatus.
type Status struct {
	Stage        string
	Cycle        int
	Message      string
	Artifact     string
	HasError     bool
	LastError    string
}

// Kernel wires the Status Store, Object Store, and Queue Broker into the
// eight external operations.
type Kernel struct {
	Store   *statusstore.Store
	Objects objectstore.Store
	Broker  *queue.Broker
}

func New(store *statusstore.Store, objects objectstore.Store, broker *queue.Broker) *Kernel {
	return &Kernel{Store: store, Objects: objects, Broker: broker}
}

// AdmitJob creates a job, its document-index row, and enqueues
// plan-intake. Returns the newly assigned job id.
func (k *Kernel) AdmitJob(ctx context.Context, ownerID, title, audience string, cycles int) (string, error) {
	if ownerID == "" || title == "" {
		return "", fmt.Errorf("admit job: owner_id and title are required")
	}
	if cycles < 1 || cycles > 5 {
		cycles = 1
	}

	jobID := uuid.NewString()
	job := &models.Job{ID: jobID, OwnerID: ownerID, Title: title, State: models.StateAdmitted, CyclesRequested: cycles}
	if err := k.Store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("admit job: %w", err)
	}

	if err := k.Broker.Enqueue(ctx, models.StagePlanIntake, models.StageMessage{
		JobID: jobID, OwnerID: ownerID, Stage: models.StagePlanIntake,
		Inputs: map[string]string{"title": title, "audience": audience, "cycles": fmt.Sprintf("%d", cycles)},
		TraceID: jobID,
	}); err != nil {
		return "", fmt.Errorf("admit job: enqueue plan-intake: %w", err)
	}
	return jobID, nil
}

// SubmitAnswers enqueues intake-resume with the caller's answers to the
// suspended intake questionnaire. Idempotent: re-submitting the same
// answers after a retry simply re-enqueues intake-resume, which is itself
// idempotent (it always overwrites intake/answers.json and intake/context.json).
func (k *Kernel) SubmitAnswers(ctx context.Context, ownerID, jobID string, answers map[string]string) error {
	job, err := k.requireOwnedJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("submit answers: marshal: %w", err)
	}

	return k.Broker.Enqueue(ctx, models.StageIntakeResume, models.StageMessage{
		JobID: jobID, OwnerID: ownerID, Stage: models.StageIntakeResume,
		Inputs:  map[string]string{"title": job.Title, "cycles": fmt.Sprintf("%d", job.CyclesRequested)},
		TraceID: jobID,
		Extra:   map[string]json.RawMessage{"answers": raw},
	})
}

// GetStatus returns a caller-facing projection of a job's current state.
func (k *Kernel) GetStatus(ctx context.Context, ownerID, jobID string) (*Status, error) {
	job, err := k.requireOwnedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Stage: string(job.State), Cycle: job.CyclesCompleted,
		HasError: job.FailureReason != "", LastError: job.FailureReason,
	}, nil
}

// GetTimeline returns every recorded stage lifecycle event for a job.
func (k *Kernel) GetTimeline(ctx context.Context, ownerID, jobID string) ([]models.TimelineEvent, error) {
	if _, err := k.requireOwnedJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	events, err := k.Store.ListTimeline(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	return events, nil
}

// ListDocuments returns the document index for one owner, optionally
// filtered by a full-text title search.
func (k *Kernel) ListDocuments(ctx context.Context, ownerID, search string, limit, offset int) ([]models.DocumentIndexRow, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("list documents: owner_id is required")
	}
	rows, err := k.Store.ListDocuments(ctx, statusstore.ListDocumentsFilter{
		OwnerID: ownerID, Search: search, Limit: limit, Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return rows, nil
}

// FetchArtifact reads one blob from strictly within jobs/{owner_id}/{job_id}/.
func (k *Kernel) FetchArtifact(ctx context.Context, ownerID, jobID, relativePath string) ([]byte, error) {
	if _, err := k.requireOwnedJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	body, err := k.Objects.Get(ctx, objectstore.JobKey(ownerID, jobID, relativePath))
	if err != nil {
		return nil, fmt.Errorf("fetch artifact: %w", err)
	}
	return body, nil
}

// FetchDiagramArchive reads the finished diagrams.zip bundle.
func (k *Kernel) FetchDiagramArchive(ctx context.Context, ownerID, jobID string) ([]byte, error) {
	if _, err := k.requireOwnedJob(ctx, ownerID, jobID); err != nil {
		return nil, err
	}
	artifacts, err := k.Store.GetFinalArtifacts(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch diagram archive: %w", err)
	}
	if artifacts.DiagramArchivePath == "" {
		return nil, fmt.Errorf("fetch diagram archive: job %s has no diagrams", jobID)
	}
	body, err := k.Objects.Get(ctx, artifacts.DiagramArchivePath)
	if err != nil {
		return nil, fmt.Errorf("fetch diagram archive: %w", err)
	}
	return body, nil
}

// ResumeFailed re-enqueues every dead-lettered message for a job and
// advances its state out of FAILED/DEAD_LETTERED back toward whichever
// stage is about to run again.
func (k *Kernel) ResumeFailed(ctx context.Context, ownerID, jobID string) error {
	job, err := k.requireOwnedJob(ctx, ownerID, jobID)
	if err != nil {
		return err
	}

	resumed, err := k.Broker.ResumeDeadLettered(ctx, ownerID, jobID)
	if err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}
	if len(resumed) == 0 {
		return fmt.Errorf("resume failed: job %s has no dead-lettered messages", jobID)
	}

	state := job.State
	for _, msg := range resumed {
		state = models.NextState(state, msg.Stage, models.PhaseStageStart)
	}
	return k.Store.SetState(ctx, jobID, state)
}

func (k *Kernel) requireOwnedJob(ctx context.Context, ownerID, jobID string) (*models.Job, error) {
	if ownerID == "" {
		return nil, ErrNotAuthorized
	}
	job, err := k.Store.GetJob(ctx, jobID, ownerID)
	if errors.Is(err, statusstore.ErrNotFound) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}
