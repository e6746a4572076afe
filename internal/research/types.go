package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Mode is the research strategy a query is routed to.
type Mode string

const (
	// ModeComparison produces a structured head-to-head comparison table.
	ModeComparison Mode = "comparison"
	// ModeLandscape surveys a space and degrades gracefully on thin data.
	ModeLandscape Mode = "landscape"
	// ModeJudgment answers feasibility/viability questions; missing data is a finding.
	ModeJudgment Mode = "judgment"
)

// Status is the job lifecycle state. Transitions are monotonic:
// pending -> running -> completed|failed. Terminal records never change.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobError is one recoverable or fatal error recorded on a job.
// The error list is append-only and ordered by occurrence.
type JobError struct {
	Node    string `json:"node,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the unit of work: one query, one mode, one report.
type Job struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	Mode        Mode       `json:"mode,omitempty"`
	Status      Status     `json:"status"`
	StepCount   int        `json:"step_count"`
	MaxSteps    int        `json:"max_steps"`
	Progress    string     `json:"progress,omitempty"`
	Errors      []JobError `json:"errors,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job for a query.
func NewJob(id, query string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        id,
		Query:     query,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the job to a new status, enforcing monotonicity.
func (j *Job) Transition(to Status) error {
	if j.Status.Terminal() {
		return fmt.Errorf("job %s is terminal (%s), cannot transition to %s", j.ID, j.Status, to)
	}
	switch {
	case j.Status == StatusPending && to == StatusRunning:
	case j.Status == StatusRunning && to.Terminal():
	default:
		return fmt.Errorf("illegal transition %s -> %s", j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	if to.Terminal() {
		t := j.UpdatedAt
		j.CompletedAt = &t
	}
	return nil
}

// Record appends errors to the job. Existing entries are never rewritten.
func (j *Job) Record(errs ...JobError) {
	j.Errors = append(j.Errors, errs...)
}

// NodeKind identifies a pipeline node.
type NodeKind string

const (
	NodePlan    NodeKind = "plan"
	NodeSearch  NodeKind = "search"
	NodeFilter  NodeKind = "filter"
	NodeCrawl   NodeKind = "crawl"
	NodeExtract NodeKind = "extract"
	NodeCompare NodeKind = "compare"
	NodeReport  NodeKind = "report"
)

// NodeStatus is the outcome of a single node execution.
type NodeStatus string

const (
	NodeOk       NodeStatus = "ok"
	NodeDegraded NodeStatus = "degraded"
	NodeFailed   NodeStatus = "failed"
)

// NodeResult is owned by the executor for the duration of the node window
// and folded into the job afterwards.
type NodeResult struct {
	Node   NodeKind
	Status NodeStatus
	Errors []JobError
}

// SearchHit is one ranked web search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Page is the extracted text of a crawled URL.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Generator is the generation port. Both calls may fail arbitrarily;
// callers own retry and degradation policy.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	GenerateStructured(ctx context.Context, system, prompt string, out interface{}) error
}

// Searcher is the search half of the retrieval port.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]SearchHit, error)
}

// Fetcher is the crawl half of the retrieval port.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// JobStore persists jobs and their report artifacts. UpsertJob must be
// atomic per job id; the executor serializes upserts for a given job.
type JobStore interface {
	UpsertJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	SaveReport(ctx context.Context, art ReportArtifact) error
}

// JobEvent is one entry of a job's append-only progress log.
type JobEvent struct {
	Seq     int       `json:"seq"`
	Step    int       `json:"step"`
	Node    string    `json:"node,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// EventSink records progress events for pollers.
type EventSink interface {
	Append(ctx context.Context, jobID string, ev JobEvent) error
	List(ctx context.Context, jobID string) ([]JobEvent, error)
}

// ReportArtifact is the final output of a job: markdown plus a structured
// JSON document. Created once when the job reaches a terminal status and
// never mutated afterwards.
type ReportArtifact struct {
	JobID    string          `json:"job_id"`
	Mode     Mode            `json:"mode"`
	Status   Status          `json:"status"`
	Markdown string          `json:"markdown"`
	Data     json.RawMessage `json:"data"`
}

// Plan is the research plan produced by the plan node.
type Plan struct {
	EntityType string   `json:"entity_type"`
	Entities   []string `json:"entities"`
	Keywords   []string `json:"search_keywords"`
	Criteria   []string `json:"criteria"`
}

// EntityProfile is what the extract node distills from one page,
// locked to the plan's canonical entity names.
type EntityProfile struct {
	Name   string            `json:"name"`
	Source string            `json:"source_url"`
	Facts  map[string]string `json:"facts"`
}
