package research

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds optional observation hooks. Nil funcs are skipped.
type Metrics struct {
	JobFinished     func(mode Mode, status Status)
	NodeDuration    func(node NodeKind, seconds float64)
	GenerationRetry func(phase string)
}

// Engine executes research jobs: one goroutine per job, nodes strictly
// sequential, guardrails checked at every node boundary. The only fan-out
// is the crawl, bounded by the concurrency cap.
type Engine struct {
	Gen     Generator
	Search  Searcher
	Fetch   Fetcher
	Store   JobStore
	Events  EventSink
	Rails   Guardrails
	Logger  *log.Logger
	Metrics Metrics

	Classifier *Classifier
	Phases     ThreePhase
	tracer     trace.Tracer
}

// NewEngine wires an engine over the given ports.
func NewEngine(gen Generator, search Searcher, fetch Fetcher, store JobStore, events EventSink, rails Guardrails, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	e := &Engine{
		Gen:    gen,
		Search: search,
		Fetch:  fetch,
		Store:  store,
		Events: events,
		Rails:  rails,
		Logger: logger,
		tracer: otel.Tracer("scout/research"),
	}
	e.Classifier = &Classifier{Gen: gen, Logger: logger}
	e.Phases = ThreePhase{Gen: gen, Rails: rails, Logger: logger, OnRetry: e.genRetry}
	return e
}

func (e *Engine) genRetry(phase string) {
	if e.Metrics.GenerationRetry != nil {
		e.Metrics.GenerationRetry(phase)
	}
}

// nodeSequence is the ordered node set for a mode. Judgment skips the
// comparison-table path entirely.
func nodeSequence(mode Mode) []NodeKind {
	if mode == ModeJudgment {
		return []NodeKind{NodePlan, NodeSearch, NodeFilter, NodeCrawl, NodeExtract, NodeReport}
	}
	return []NodeKind{NodePlan, NodeSearch, NodeFilter, NodeCrawl, NodeExtract, NodeCompare, NodeReport}
}

// Execute runs one job to a terminal status. The returned job reflects the
// final persisted state; the error reports executor malfunction, not
// research failure (a failed job with a saved failure artifact is a
// successful execution).
func (e *Engine) Execute(ctx context.Context, job Job) (Job, error) {
	if e.Rails.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Rails.JobTimeout)
		defer cancel()
	}
	// Persistence must survive the job deadline so terminal state lands.
	pctx := context.WithoutCancel(ctx)

	ctx, span := e.tracer.Start(ctx, "research.job",
		trace.WithAttributes(attribute.String("job.id", job.ID)))
	defer span.End()

	seq := 0
	emit := func(node, msg string) {
		if e.Events == nil {
			return
		}
		seq++
		ev := JobEvent{Seq: seq, Step: job.StepCount, Node: node, Message: msg, At: time.Now().UTC()}
		if err := e.Events.Append(pctx, job.ID, ev); err != nil {
			e.Logger.Printf("event append failed for job %s: %v", job.ID, err)
		}
	}

	job.MaxSteps = e.Rails.MaxSteps
	if err := job.Transition(StatusRunning); err != nil {
		return job, err
	}
	job.Progress = "classifying"
	e.persist(pctx, &job)
	emit("", "job started")

	cl, warn := e.classify(ctx, job.Query)
	if warn != nil {
		job.Record(*warn)
	}
	job.Mode = cl.Mode
	span.SetAttributes(attribute.String("job.mode", string(cl.Mode)))
	emit("", fmt.Sprintf("mode %s (confidence %.2f)", cl.Mode, cl.Confidence))
	e.persist(pctx, &job)

	st := &pipelineState{query: job.Query, mode: job.Mode}

	var abort *JobError
	for _, node := range nodeSequence(job.Mode) {
		if ctx.Err() != nil {
			t := nodeErr(node, KindTimeout, "job timed out before %s", node)
			job.Record(t)
			abort = &t
			break
		}
		if err := e.Rails.CheckStep(job.StepCount); err != nil {
			g := JobError{Kind: KindGuardrailExceeded, Message: err.Error()}
			job.Record(g)
			emit(string(node), "guardrail exceeded: "+err.Error())
			if job.Mode == ModeComparison {
				abort = &g
			}
			// Landscape and judgment fall through to degraded assembly
			// from whatever state exists; no further nodes run.
			break
		}

		job.Progress = string(node)
		e.persist(pctx, &job)
		emit(string(node), "node started")

		res := e.runNode(ctx, node, st)
		job.StepCount++
		job.Record(res.Errors...)
		e.persist(pctx, &job)
		emit(string(node), "node "+string(res.Status))

		if res.Status == NodeFailed && job.Mode == ModeComparison {
			f := nodeErr(node, KindGenerationFailed, "node failed")
			if len(res.Errors) > 0 {
				f = res.Errors[0]
			}
			abort = &f
			break
		}
	}
	if abort == nil && ctx.Err() != nil {
		t := JobError{Kind: KindTimeout, Message: "job timed out"}
		job.Record(t)
		abort = &t
	}

	if abort != nil {
		art := AssembleFailure(assemblyInput(&job, st), abort.Message)
		e.saveReport(pctx, art)
		_ = job.Transition(StatusFailed)
		job.Progress = "failed"
		e.persist(pctx, &job)
		emit("", "job failed: "+abort.Message)
		span.SetStatus(codes.Error, abort.Message)
		e.finish(job)
		return job, nil
	}

	art, err := AssembleReport(assemblyInput(&job, st))
	if err != nil {
		job.Record(JobError{Kind: KindGenerationFailed, Message: "report assembly failed: " + err.Error()})
		art = AssembleFailure(assemblyInput(&job, st), err.Error())
		e.saveReport(pctx, art)
		_ = job.Transition(StatusFailed)
		job.Progress = "failed"
		e.persist(pctx, &job)
		emit("", "job failed: report assembly")
		span.SetStatus(codes.Error, err.Error())
		e.finish(job)
		return job, nil
	}
	e.saveReport(pctx, art)
	_ = job.Transition(StatusCompleted)
	job.Progress = "completed"
	e.persist(pctx, &job)
	emit("", "job completed")
	span.SetStatus(codes.Ok, "")
	e.finish(job)
	return job, nil
}

func (e *Engine) classify(ctx context.Context, query string) (Classification, *JobError) {
	cctx := ctx
	if e.Rails.NodeTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, e.Rails.NodeTimeout)
		defer cancel()
	}
	cctx, span := e.tracer.Start(cctx, "research.classify")
	defer span.End()
	cl, warn := e.Classifier.Classify(cctx, query)
	span.SetAttributes(attribute.String("mode", string(cl.Mode)))
	return cl, warn
}

func (e *Engine) runNode(ctx context.Context, node NodeKind, st *pipelineState) NodeResult {
	nctx := ctx
	if e.Rails.NodeTimeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(ctx, e.Rails.NodeTimeout)
		defer cancel()
	}
	nctx, span := e.tracer.Start(nctx, "research.node."+string(node))
	defer span.End()
	start := time.Now()

	var res NodeResult
	switch node {
	case NodePlan:
		res = e.runPlan(nctx, st)
	case NodeSearch:
		res = e.runSearch(nctx, st)
	case NodeFilter:
		res = e.runFilter(nctx, st)
	case NodeCrawl:
		res = e.runCrawl(nctx, st)
	case NodeExtract:
		res = e.runExtract(nctx, st)
	case NodeCompare:
		res = e.runCompare(nctx, st)
	case NodeReport:
		res = e.runReport(nctx, st)
	default:
		res = NodeResult{Node: node, Status: NodeFailed, Errors: []JobError{
			nodeErr(node, KindGenerationFailed, "unknown node"),
		}}
	}

	if e.Metrics.NodeDuration != nil {
		e.Metrics.NodeDuration(node, time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	if res.Status == NodeFailed {
		span.SetStatus(codes.Error, string(node)+" failed")
	}
	return res
}

func (e *Engine) persist(ctx context.Context, job *Job) {
	job.UpdatedAt = time.Now().UTC()
	if err := e.Store.UpsertJob(ctx, *job); err != nil {
		e.Logger.Printf("persist job %s: %v", job.ID, err)
	}
}

func (e *Engine) saveReport(ctx context.Context, art ReportArtifact) {
	if err := e.Store.SaveReport(ctx, art); err != nil {
		e.Logger.Printf("save report for job %s: %v", art.JobID, err)
	}
}

func (e *Engine) finish(job Job) {
	if e.Metrics.JobFinished != nil {
		e.Metrics.JobFinished(job.Mode, job.Status)
	}
	e.Logger.Printf("job %s %s (mode=%s steps=%d/%d errors=%d)",
		job.ID, job.Status, job.Mode, job.StepCount, job.MaxSteps, len(job.Errors))
}

func assemblyInput(job *Job, st *pipelineState) AssemblyInput {
	return AssemblyInput{
		JobID:    job.ID,
		Query:    job.Query,
		Mode:     job.Mode,
		Plan:     st.plan,
		Matrix:   st.matrix,
		Summary:  st.summary,
		Findings: st.findings,
		Profiles: st.profiles,
		Errors:   job.Errors,
	}
}
