package research_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"scout/internal/research"
)

// genFunc adapts closures to the generation port.
type genFunc struct {
	structured func(ctx context.Context, system, prompt string, out interface{}) error
	generate   func(ctx context.Context, system, prompt string) (string, error)
}

func (g genFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.generate == nil {
		return "", errors.New("generate not scripted")
	}
	return g.generate(ctx, system, prompt)
}

func (g genFunc) GenerateStructured(ctx context.Context, system, prompt string, out interface{}) error {
	if g.structured == nil {
		return errors.New("structured generation not scripted")
	}
	return g.structured(ctx, system, prompt, out)
}

// into round-trips a value into the caller's out pointer, the way a real
// provider unmarshals the model's JSON.
func into(out interface{}, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type searchFunc func(ctx context.Context, query string, k int) ([]research.SearchHit, error)

func (f searchFunc) Search(ctx context.Context, query string, k int) ([]research.SearchHit, error) {
	return f(ctx, query, k)
}

type fetchFunc func(ctx context.Context, url string) (research.Page, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (research.Page, error) {
	return f(ctx, url)
}

// memStore is a minimal job store for engine tests.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]research.Job
	reports map[string]research.ReportArtifact
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]research.Job{}, reports: map[string]research.ReportArtifact{}}
}

func (s *memStore) UpsertJob(_ context.Context, job research.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.ID]; ok && existing.Status.Terminal() {
		return nil
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memStore) GetJob(_ context.Context, id string) (research.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return research.Job{}, errors.New("not found")
	}
	return job, nil
}

func (s *memStore) SaveReport(_ context.Context, art research.ReportArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[art.JobID]; !ok {
		s.reports[art.JobID] = art
	}
	return nil
}

func (s *memStore) report(id string) (research.ReportArtifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	art, ok := s.reports[id]
	return art, ok
}

// memEvents collects progress events in order.
type memEvents struct {
	mu     sync.Mutex
	events map[string][]research.JobEvent
}

func newMemEvents() *memEvents {
	return &memEvents{events: map[string][]research.JobEvent{}}
}

func (m *memEvents) Append(_ context.Context, jobID string, ev research.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[jobID] = append(m.events[jobID], ev)
	return nil
}

func (m *memEvents) List(_ context.Context, jobID string) ([]research.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]research.JobEvent(nil), m.events[jobID]...), nil
}
