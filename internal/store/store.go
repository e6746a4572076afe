// Package store persists jobs, report artifacts and progress events.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"scout/internal/research"
)

// ErrNotFound is returned when a job or report does not exist.
var ErrNotFound = errors.New("not found")

// Store is the Postgres-backed job store.
type Store struct {
	DB     *sql.DB
	Logger *log.Logger
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	db.SetMaxOpenConns(10)
	return &Store{DB: db, Logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags)}, nil
}

// UpsertJob writes the full job row atomically. Rows that already reached
// a terminal status are left untouched: a terminal record is immutable.
func (s *Store) UpsertJob(ctx context.Context, job research.Job) error {
	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("marshalling job errors: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO jobs (id, query, mode, status, step_count, max_steps, progress, errors, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
    mode = EXCLUDED.mode,
    status = EXCLUDED.status,
    step_count = EXCLUDED.step_count,
    max_steps = EXCLUDED.max_steps,
    progress = EXCLUDED.progress,
    errors = EXCLUDED.errors,
    updated_at = EXCLUDED.updated_at,
    completed_at = EXCLUDED.completed_at
WHERE jobs.status NOT IN ('completed','failed')`,
		job.ID, job.Query, string(job.Mode), string(job.Status), job.StepCount, job.MaxSteps,
		job.Progress, errsJSON, job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (research.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, query, mode, status, step_count, max_steps, progress, errors, created_at, updated_at, completed_at
FROM jobs WHERE id = $1`, id)

	var job research.Job
	var mode, status string
	var errsJSON []byte
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Query, &mode, &status, &job.StepCount, &job.MaxSteps,
		&job.Progress, &errsJSON, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return research.Job{}, ErrNotFound
	}
	if err != nil {
		return research.Job{}, fmt.Errorf("loading job %s: %w", id, err)
	}
	job.Mode = research.Mode(mode)
	job.Status = research.Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &job.Errors); err != nil {
			return research.Job{}, fmt.Errorf("decoding job errors: %w", err)
		}
	}
	return job, nil
}

// SaveReport stores the report artifact for a job. Reports are written
// once; a second write for the same job is a no-op.
func (s *Store) SaveReport(ctx context.Context, art research.ReportArtifact) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO reports (job_id, mode, status, markdown, data, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (job_id) DO NOTHING`,
		art.JobID, string(art.Mode), string(art.Status), art.Markdown, []byte(art.Data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving report for job %s: %w", art.JobID, err)
	}
	return nil
}

// GetReport loads the report artifact for a job.
func (s *Store) GetReport(ctx context.Context, jobID string) (research.ReportArtifact, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT job_id, mode, status, markdown, data FROM reports WHERE job_id = $1`, jobID)

	var art research.ReportArtifact
	var mode, status string
	var data []byte
	err := row.Scan(&art.JobID, &mode, &status, &art.Markdown, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return research.ReportArtifact{}, ErrNotFound
	}
	if err != nil {
		return research.ReportArtifact{}, fmt.Errorf("loading report for job %s: %w", jobID, err)
	}
	art.Mode = research.Mode(mode)
	art.Status = research.Status(status)
	art.Data = json.RawMessage(data)
	return art, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.DB.Close() }
