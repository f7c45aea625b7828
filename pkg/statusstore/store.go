// Package statusstore is the Status Store: the durable record of every
// Job's lifecycle state, intake answers, plan, drafts, reviews, verify
// reports, diagrams, and final artifacts. It is the sqlx-based
// replacement for the ent-generated client the model repo's services
// package uses — the claim-with-compare-and-swap pattern below is
// grounded directly in that package's session claim and update logic.
package statusstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/docwriter/pkg/models"
)

// ErrNotFound is returned when a lookup by ID finds no row.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by UpdateMemory when the supplied
// memory_version no longer matches the stored row — another writer has
// already applied a change since the caller last read the job.
var ErrVersionConflict = errors.New("memory version conflict")

// Store wraps a *sqlx.DB with the Status Store's query surface.
type Store struct {
	db *sqlx.DB
}

// New wires a Store to an already-migrated connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job row in ADMITTED state.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, title, state, memory_version, cycles_requested, cycles_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, 0, now(), now())`,
		job.ID, job.OwnerID, job.Title, job.State, job.CyclesRequested)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_index (job_id, owner_id, title, state, updated_at)
		VALUES ($1, $2, $3, $4, now())`, job.ID, job.OwnerID, job.Title, job.State)
	if err != nil {
		return fmt.Errorf("index job: %w", err)
	}
	return nil
}

type jobRow struct {
	ID              string    `db:"id"`
	OwnerID         string    `db:"owner_id"`
	Title           string    `db:"title"`
	State           string    `db:"state"`
	MemoryVersion   int64     `db:"memory_version"`
	CyclesRequested int       `db:"cycles_requested"`
	CyclesCompleted int       `db:"cycles_completed"`
	FailureReason   sql.NullString `db:"failure_reason"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r jobRow) toModel() *models.Job {
	return &models.Job{
		ID: r.ID, OwnerID: r.OwnerID, Title: r.Title, State: models.State(r.State),
		MemoryVersion: r.MemoryVersion, CyclesRequested: r.CyclesRequested,
		CyclesCompleted: r.CyclesCompleted, FailureReason: r.FailureReason.String,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// GetJob fetches a job by ID, scoped to ownerID unless ownerID is empty
// (empty is used by internal stage workers, which act on behalf of the
// system rather than a specific caller).
func (s *Store) GetJob(ctx context.Context, jobID, ownerID string) (*models.Job, error) {
	var row jobRow
	query := `SELECT * FROM jobs WHERE id = $1`
	args := []any{jobID}
	if ownerID != "" {
		query += ` AND owner_id = $2`
		args = append(args, ownerID)
	}
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.toModel(), nil
}

// SetState transitions a job's state, independent of the memory CAS path.
func (s *Store) SetState(ctx context.Context, jobID string, state models.State) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = $1, updated_at = now() WHERE id = $2`, state, jobID)
	if err != nil {
		return fmt.Errorf("set job state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE document_index SET state = $1, updated_at = now() WHERE job_id = $2`, state, jobID)
	return err
}

// Fail marks a job FAILED with a reason, used by the terminal error path.
func (s *Store) Fail(ctx context.Context, jobID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = $1, failure_reason = $2, updated_at = now() WHERE id = $3`,
		models.StateFailed, reason, jobID)
	if err != nil {
		return err
	}
	return s.SetState(ctx, jobID, models.StateFailed)
}

// UpdateMemory applies mutate to the job's persisted memory under
// optimistic concurrency control: the update only commits if
// memory_version still equals expectedVersion, matching the concurrent
// memory-file write rule in the concurrency model. Returns the new
// version on success.
func (s *Store) UpdateMemory(ctx context.Context, jobID string, expectedVersion int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET memory_version = memory_version + 1, updated_at = now()
		WHERE id = $1 AND memory_version = $2`, jobID, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("update memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// IncrementCycle records that one review/verify/rewrite cycle finished.
func (s *Store) IncrementCycle(ctx context.Context, jobID string) (int, error) {
	var completed int
	err := s.db.QueryRowxContext(ctx, `
		UPDATE jobs SET cycles_completed = cycles_completed + 1, updated_at = now()
		WHERE id = $1
		RETURNING cycles_completed`, jobID).Scan(&completed)
	return completed, err
}

// SaveIntake upserts the intake record for a job.
func (s *Store) SaveIntake(ctx context.Context, rec *models.IntakeRecord) error {
	questions, err := json.Marshal(rec.Questions)
	if err != nil {
		return err
	}
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intake_records (job_id, questions, answers, complete)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET questions = $2, answers = $3, complete = $4`,
		rec.JobID, questions, answers, rec.Complete)
	return err
}

// GetIntake fetches the intake record for a job.
func (s *Store) GetIntake(ctx context.Context, jobID string) (*models.IntakeRecord, error) {
	var row struct {
		Questions []byte `db:"questions"`
		Answers   []byte `db:"answers"`
		Complete  bool   `db:"complete"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT questions, answers, complete FROM intake_records WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &models.IntakeRecord{JobID: jobID, Complete: row.Complete, Answers: map[string]string{}}
	if err := json.Unmarshal(row.Questions, &rec.Questions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(row.Answers, &rec.Answers); err != nil {
		return nil, err
	}
	return rec, nil
}

// SavePlan upserts the section outline for a job.
func (s *Store) SavePlan(ctx context.Context, plan *models.Plan) error {
	sections, err := json.Marshal(plan.Sections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (job_id, sections) VALUES ($1, $2)
		ON CONFLICT (job_id) DO UPDATE SET sections = $2`, plan.JobID, sections)
	return err
}

// GetPlan fetches the section outline for a job.
func (s *Store) GetPlan(ctx context.Context, jobID string) (*models.Plan, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT sections FROM plans WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	plan := &models.Plan{JobID: jobID}
	if err := json.Unmarshal(raw, &plan.Sections); err != nil {
		return nil, err
	}
	return plan, nil
}

// SaveSectionDraft upserts a section's draft content for a cycle.
func (s *Store) SaveSectionDraft(ctx context.Context, d *models.SectionDraft) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO section_drafts (job_id, section_id, cycle, content, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (job_id, section_id, cycle) DO UPDATE SET content = $4`,
		d.JobID, d.SectionID, d.Cycle, d.Content)
	return err
}

// GetSectionDraft fetches one section's draft for a cycle.
func (s *Store) GetSectionDraft(ctx context.Context, jobID, sectionID string, cycle int) (*models.SectionDraft, error) {
	var content string
	err := s.db.GetContext(ctx, &content, `
		SELECT content FROM section_drafts WHERE job_id = $1 AND section_id = $2 AND cycle = $3`,
		jobID, sectionID, cycle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.SectionDraft{JobID: jobID, SectionID: sectionID, Cycle: cycle, Content: content}, nil
}

// SectionsReady reports which of the given section IDs have a draft
// recorded for cycle, used by the write stage's dependency-ready check.
func (s *Store) SectionsReady(ctx context.Context, jobID string, cycle int, sectionIDs []string) (map[string]bool, error) {
	ready := make(map[string]bool, len(sectionIDs))
	if len(sectionIDs) == 0 {
		return ready, nil
	}
	query, args, err := sqlx.In(`
		SELECT section_id FROM section_drafts
		WHERE job_id = ? AND cycle = ? AND section_id IN (?)`, jobID, cycle, sectionIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)
	var found []string
	if err := s.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, err
	}
	for _, id := range found {
		ready[id] = true
	}
	return ready, nil
}

// SaveReviewNote stores one reviewer flavor's findings for a section/cycle.
func (s *Store) SaveReviewNote(ctx context.Context, n *models.ReviewNote) error {
	findings, err := json.Marshal(n.Findings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_notes (job_id, section_id, cycle, flavor, findings, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (job_id, section_id, cycle, flavor) DO UPDATE SET findings = $5, severity = $6`,
		n.JobID, n.SectionID, n.Cycle, n.Flavor, findings, n.Severity)
	return err
}

// ListReviewNotes returns every flavor's findings for a section/cycle.
func (s *Store) ListReviewNotes(ctx context.Context, jobID, sectionID string, cycle int) ([]models.ReviewNote, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT flavor, findings, severity FROM review_notes
		WHERE job_id = $1 AND section_id = $2 AND cycle = $3`, jobID, sectionID, cycle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.ReviewNote
	for rows.Next() {
		var flavor, severity string
		var raw []byte
		if err := rows.Scan(&flavor, &raw, &severity); err != nil {
			return nil, err
		}
		note := models.ReviewNote{JobID: jobID, SectionID: sectionID, Cycle: cycle,
			Flavor: models.ReviewFlavor(flavor), Severity: severity}
		if err := json.Unmarshal(raw, &note.Findings); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// SaveVerifyReport stores the verifier's judgment for a section/cycle.
func (s *Store) SaveVerifyReport(ctx context.Context, r *models.VerifyReport) error {
	resolved, err := json.Marshal(r.Resolved)
	if err != nil {
		return err
	}
	unresolved, err := json.Marshal(r.Unresolved)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verify_reports (job_id, section_id, cycle, resolved, unresolved, pass)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id, section_id, cycle) DO UPDATE SET resolved = $4, unresolved = $5, pass = $6`,
		r.JobID, r.SectionID, r.Cycle, resolved, unresolved, r.Pass)
	return err
}

// SaveRewriteResult stores the rewriter's output for a section/cycle.
func (s *Store) SaveRewriteResult(ctx context.Context, r *models.RewriteResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewrite_results (job_id, section_id, cycle, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, section_id, cycle) DO UPDATE SET content = $4`,
		r.JobID, r.SectionID, r.Cycle, r.Content)
	return err
}

// SaveDiagramSpec stores a diagram request produced by diagram-prep.
func (s *Store) SaveDiagramSpec(ctx context.Context, d *models.DiagramSpec) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagram_specs (job_id, section_id, diagram_id, source, format)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, diagram_id) DO UPDATE SET source = $4, format = $5`,
		d.JobID, d.SectionID, d.DiagramID, d.Source, d.Format)
	return err
}

// CountDiagrams returns the total number of diagram specs recorded for a job.
func (s *Store) CountDiagrams(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM diagram_specs WHERE job_id = $1`, jobID)
	return n, err
}

// RecordDiagramRendered atomically increments the rendered counter for a
// job's diagrams and returns (rendered, total) so the caller can tell
// whether this was the last diagram — the race named in the concurrency
// model, resolved with a single atomic RETURNING update rather than any
// in-process lock.
func (s *Store) RecordDiagramRendered(ctx context.Context, jobID, diagramID, imagePath string, total int) (rendered int, err error) {
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO diagram_assets (job_id, diagram_id, image_path, rendered, total)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (job_id, diagram_id) DO UPDATE SET image_path = $3, rendered = 1`,
		jobID, diagramID, imagePath, total)
	if err != nil {
		return 0, err
	}
	err = s.db.GetContext(ctx, &rendered, `
		SELECT count(*) FROM diagram_assets WHERE job_id = $1 AND rendered = 1`, jobID)
	return rendered, err
}

// SaveFinalArtifacts records the finished document's object store pointers.
func (s *Store) SaveFinalArtifacts(ctx context.Context, a *models.FinalArtifactSet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO final_artifacts (job_id, artifact_path, diagram_archive_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET artifact_path = $2, diagram_archive_path = $3`,
		a.JobID, a.ArtifactPath, a.DiagramArchivePath)
	return err
}

// GetFinalArtifacts fetches a finished job's artifact pointers.
func (s *Store) GetFinalArtifacts(ctx context.Context, jobID string) (*models.FinalArtifactSet, error) {
	var a models.FinalArtifactSet
	err := s.db.GetContext(ctx, &a, `
		SELECT job_id, artifact_path, diagram_archive_path FROM final_artifacts WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

// AppendTimelineEvent records one stage lifecycle event for the timeline.
func (s *Store) AppendTimelineEvent(ctx context.Context, e *models.TimelineEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timeline_events (job_id, stage, phase, cycle, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, now())`,
		e.JobID, e.Stage, e.Phase, e.Cycle, e.Message)
	return err
}

// ListTimeline returns every event recorded for a job, oldest first.
func (s *Store) ListTimeline(ctx context.Context, jobID string) ([]models.TimelineEvent, error) {
	var rows []models.TimelineEvent
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, job_id, stage, phase, cycle, message, timestamp
		FROM timeline_events WHERE job_id = $1 ORDER BY id ASC`, jobID)
	return rows, err
}

// ListDocumentsFilter narrows ListDocuments to one owner and/or a
// full-text title search.
type ListDocumentsFilter struct {
	OwnerID string
	Search  string
	Limit   int
	Offset  int
}

// ListDocuments returns the denormalized document index, optionally
// filtered by owner and full-text search over the title.
func (s *Store) ListDocuments(ctx context.Context, f ListDocumentsFilter) ([]models.DocumentIndexRow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT job_id, owner_id, title, state, updated_at FROM document_index WHERE owner_id = $1`
	args := []any{f.OwnerID}
	if f.Search != "" {
		query += ` AND to_tsvector('english', title) @@ plainto_tsquery('english', $2)`
		args = append(args, f.Search)
		query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, f.Offset)
	} else {
		query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, f.Offset)
	}

	var rows []models.DocumentIndexRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}

// PruneTimelineEvents deletes timeline events older than ttl, returning
// the number of rows removed. Used by the retention/cleanup loop.
func (s *Store) PruneTimelineEvents(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM timeline_events WHERE timestamp < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(ttl.Seconds())))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneDocuments reaps document_index rows for terminal jobs (DONE or
// DEAD_LETTERED) last updated more than retentionDays ago, returning the
// number of rows removed. The underlying job row is never deleted — only
// the denormalized index entry used for ListDocuments.
func (s *Store) PruneDocuments(ctx context.Context, retentionDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM document_index
		WHERE updated_at < now() - ($1 || ' days')::interval
		AND state IN ($2, $3)`,
		retentionDays, string(models.StateDone), string(models.StateDeadLettered))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
