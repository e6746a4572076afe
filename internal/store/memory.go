package store

import (
	"context"
	"sync"

	"scout/internal/research"
)

// Memory is an in-process job store for tests and one-shot CLI runs.
// It enforces the same invariants as the Postgres store: terminal job
// rows are immutable and reports are written once.
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]research.Job
	reports map[string]research.ReportArtifact
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]research.Job),
		reports: make(map[string]research.ReportArtifact),
	}
}

func (m *Memory) UpsertJob(_ context.Context, job research.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.jobs[job.ID]; ok && existing.Status.Terminal() {
		return nil
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (research.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return research.Job{}, ErrNotFound
	}
	return job, nil
}

func (m *Memory) SaveReport(_ context.Context, art research.ReportArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[art.JobID]; ok {
		return nil
	}
	m.reports[art.JobID] = art
	return nil
}

func (m *Memory) GetReport(_ context.Context, jobID string) (research.ReportArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	art, ok := m.reports[jobID]
	if !ok {
		return research.ReportArtifact{}, ErrNotFound
	}
	return art, nil
}
