package research

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"scout/internal/helpers"
)

// pipelineState is the scratch state threaded through one job's nodes.
// It never outlives the job goroutine.
type pipelineState struct {
	query    string
	mode     Mode
	plan     Plan
	hits     []SearchHit
	urls     []string
	pages    []Page
	profiles []EntityProfile
	matrix   *Matrix
	summary  string
	findings string
}

const maxSearchKeywords = 3

const planSystem = `You plan a research run. Given a query, decide:
- entity_type: what kind of thing is being researched (product, library, company, ...)
- entities: canonical names of the concrete things involved, when the query names or implies them
- search_keywords: 2-4 short web search queries that together cover the topic
- criteria: what a good answer must address
Respond ONLY with a JSON object: {"entity_type": "...", "entities": [...], "search_keywords": [...], "criteria": [...]}.`

func (e *Engine) runPlan(ctx context.Context, st *pipelineState) NodeResult {
	var plan Plan
	err := e.Gen.GenerateStructured(ctx, planSystem, "Query: "+st.query, &plan)
	if err != nil {
		// Downstream nodes still need keywords when the mode tolerates
		// a failed plan, so fall back to the raw query.
		st.plan = Plan{Keywords: []string{st.query}}
		return NodeResult{Node: NodePlan, Status: NodeFailed, Errors: []JobError{
			nodeErr(NodePlan, generationKind(err), "plan generation failed: %v", err),
		}}
	}
	plan.Entities = dedupeNames(plan.Entities, 10)
	plan.Keywords = dedupeNames(plan.Keywords, maxSearchKeywords)
	if len(plan.Keywords) == 0 {
		plan.Keywords = []string{st.query}
	}
	st.plan = plan
	return NodeResult{Node: NodePlan, Status: NodeOk}
}

func (e *Engine) runSearch(ctx context.Context, st *pipelineState) NodeResult {
	keywords := st.plan.Keywords
	if len(keywords) > maxSearchKeywords {
		keywords = keywords[:maxSearchKeywords]
	}
	var errs []JobError
	failures := 0
	seen := make(map[string]struct{})
	for _, kw := range keywords {
		hits, err := e.Search.Search(ctx, kw, e.Rails.MaxURLs)
		if err != nil {
			failures++
			errs = append(errs, nodeErr(NodeSearch, retrievalKind(err), "search %q: %v", kw, err))
			continue
		}
		for _, h := range hits {
			if _, ok := seen[h.URL]; ok || h.URL == "" {
				continue
			}
			seen[h.URL] = struct{}{}
			st.hits = append(st.hits, h)
		}
	}
	switch {
	case len(keywords) > 0 && failures == len(keywords):
		return NodeResult{Node: NodeSearch, Status: NodeFailed, Errors: errs}
	case len(st.hits) == 0:
		errs = append(errs, nodeErr(NodeSearch, KindRetrievalFailed, "search produced no results"))
		return NodeResult{Node: NodeSearch, Status: NodeDegraded, Errors: errs}
	case failures > 0:
		return NodeResult{Node: NodeSearch, Status: NodeDegraded, Errors: errs}
	}
	return NodeResult{Node: NodeSearch, Status: NodeOk}
}

func (e *Engine) runFilter(_ context.Context, st *pipelineState) NodeResult {
	raw := make([]string, 0, len(st.hits))
	for _, h := range st.hits {
		raw = append(raw, h.URL)
	}
	st.urls = e.Rails.CapURLs(helpers.FilterURLs(raw))
	return NodeResult{Node: NodeFilter, Status: NodeOk}
}

func (e *Engine) runCrawl(ctx context.Context, st *pipelineState) NodeResult {
	if len(st.urls) == 0 {
		return NodeResult{Node: NodeCrawl, Status: NodeDegraded, Errors: []JobError{
			nodeErr(NodeCrawl, KindRetrievalFailed, "no urls to crawl"),
		}}
	}
	pages := make([]Page, len(st.urls))
	fetchErrs := make([]error, len(st.urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Rails.MaxCrawlConcurrency)
	for i, u := range st.urls {
		i, u := i, u
		g.Go(func() error {
			p, err := e.Fetch.Fetch(gctx, u)
			if err != nil {
				fetchErrs[i] = err
				return nil
			}
			pages[i] = p
			return nil
		})
	}
	_ = g.Wait()

	var errs []JobError
	for i, u := range st.urls {
		if fetchErrs[i] != nil {
			errs = append(errs, nodeErr(NodeCrawl, retrievalKind(fetchErrs[i]), "fetch %s: %v", u, fetchErrs[i]))
			continue
		}
		if strings.TrimSpace(pages[i].Text) != "" {
			st.pages = append(st.pages, pages[i])
		}
	}
	switch {
	case len(errs) > 0 && st.mode == ModeComparison:
		// Comparison runs are all-or-nothing on retrieval.
		return NodeResult{Node: NodeCrawl, Status: NodeFailed, Errors: errs}
	case len(errs) > 0 || len(st.pages) == 0:
		if len(st.pages) == 0 && len(errs) == 0 {
			errs = append(errs, nodeErr(NodeCrawl, KindRetrievalFailed, "no readable pages"))
		}
		return NodeResult{Node: NodeCrawl, Status: NodeDegraded, Errors: errs}
	}
	return NodeResult{Node: NodeCrawl, Status: NodeOk}
}

func (e *Engine) runExtract(ctx context.Context, st *pipelineState) NodeResult {
	if len(st.pages) == 0 {
		return NodeResult{Node: NodeExtract, Status: NodeOk}
	}
	system := `You extract structured facts about one entity from a web page.
Respond ONLY with a JSON object: {"name": "...", "facts": {"aspect": "short fact", ...}}.`
	if len(st.plan.Entities) > 0 {
		system += fmt.Sprintf("\nThe name MUST be one of: %s. Use an empty name when the page covers none of them.",
			strings.Join(st.plan.Entities, ", "))
	}
	lock := make(map[string]string, len(st.plan.Entities))
	for _, en := range st.plan.Entities {
		lock[strings.ToLower(en)] = en
	}

	var errs []JobError
	failures := 0
	for _, page := range st.pages {
		var profile EntityProfile
		prompt := fmt.Sprintf("Query: %s\nPage URL: %s\nPage title: %s\n\n%s", st.query, page.URL, page.Title, page.Text)
		if err := e.Gen.GenerateStructured(ctx, system, prompt, &profile); err != nil {
			failures++
			errs = append(errs, nodeErr(NodeExtract, generationKind(err), "extract %s: %v", page.URL, err))
			continue
		}
		profile.Name = strings.TrimSpace(profile.Name)
		if profile.Name == "" {
			continue
		}
		if len(lock) > 0 {
			canonical, ok := lock[strings.ToLower(profile.Name)]
			if !ok {
				continue // entity lock: off-plan pages are dropped
			}
			profile.Name = canonical
		}
		profile.Source = page.URL
		st.profiles = append(st.profiles, profile)
	}
	switch {
	case failures == len(st.pages):
		return NodeResult{Node: NodeExtract, Status: NodeFailed, Errors: errs}
	case failures > 0:
		return NodeResult{Node: NodeExtract, Status: NodeDegraded, Errors: errs}
	}
	return NodeResult{Node: NodeExtract, Status: NodeOk}
}

func (e *Engine) runCompare(ctx context.Context, st *pipelineState) NodeResult {
	switch st.mode {
	case ModeComparison:
		sk, err := e.Phases.BuildSkeleton(ctx, st.query)
		if err != nil {
			return NodeResult{Node: NodeCompare, Status: NodeFailed, Errors: []JobError{
				nodeErr(NodeCompare, KindStructureValidation, "%v", err),
			}}
		}
		matrix, errs := e.Phases.FillMatrix(ctx, st.query, sk, evidenceDigest(st))
		st.matrix = matrix
		if len(errs) > 0 {
			return NodeResult{Node: NodeCompare, Status: NodeDegraded, Errors: errs}
		}
		return NodeResult{Node: NodeCompare, Status: NodeOk}
	case ModeLandscape:
		if len(st.profiles) < 2 {
			return NodeResult{Node: NodeCompare, Status: NodeOk} // nothing to tabulate
		}
		st.matrix = landscapeMatrix(st.profiles, e.Rails.CellMaxRunes)
		return NodeResult{Node: NodeCompare, Status: NodeOk}
	default:
		return NodeResult{Node: NodeCompare, Status: NodeOk}
	}
}

func (e *Engine) runReport(ctx context.Context, st *pipelineState) NodeResult {
	switch st.mode {
	case ModeComparison:
		summary, err := e.Phases.Summarize(ctx, st.query, st.matrix)
		if err != nil {
			return NodeResult{Node: NodeReport, Status: NodeFailed, Errors: []JobError{
				nodeErr(NodeReport, generationKind(err), "summary generation failed: %v", err),
			}}
		}
		st.summary = summary
		return NodeResult{Node: NodeReport, Status: NodeOk}
	case ModeJudgment:
		system := `You deliver a judgment on the question asked: is the thing viable, mature,
worth adopting? Base your verdict strictly on the evidence given. When evidence is missing,
say so and treat the absence itself as part of the verdict. Cover: the verdict, the reasons,
what would have to change for the verdict to flip, and what the reader should do now.`
		out, err := e.Gen.Generate(ctx, system, judgmentPrompt(st))
		if err != nil {
			// The deterministic composition in the assembler still states
			// the verdict cannot be reached; generation loss degrades only.
			return NodeResult{Node: NodeReport, Status: NodeDegraded, Errors: []JobError{
				nodeErr(NodeReport, generationKind(err), "judgment generation failed: %v", err),
			}}
		}
		st.findings = strings.TrimSpace(out)
		return NodeResult{Node: NodeReport, Status: NodeOk}
	default:
		system := `You summarise the findings of a research run over the evidence given.
Plain prose, a handful of sentences, no headings.`
		out, err := e.Gen.Generate(ctx, system, "Query: "+st.query+"\n\n"+evidenceDigest(st))
		if err != nil {
			return NodeResult{Node: NodeReport, Status: NodeDegraded, Errors: []JobError{
				nodeErr(NodeReport, generationKind(err), "findings generation failed: %v", err),
			}}
		}
		st.findings = strings.TrimSpace(out)
		return NodeResult{Node: NodeReport, Status: NodeOk}
	}
}

func judgmentPrompt(st *pipelineState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", st.query)
	if len(st.profiles) == 0 {
		b.WriteString("\nNo usable evidence was retrieved.\n")
	} else {
		b.WriteString("\nEvidence:\n")
		for _, p := range st.profiles {
			fmt.Fprintf(&b, "- %s (%s)\n", p.Name, p.Source)
			for _, k := range sortedKeys(p.Facts) {
				fmt.Fprintf(&b, "  %s: %s\n", k, p.Facts[k])
			}
		}
	}
	return b.String()
}

// evidenceDigest folds crawled material into a bounded prompt fragment.
func evidenceDigest(st *pipelineState) string {
	const perPage = 300
	const total = 2400
	var b strings.Builder
	for _, p := range st.pages {
		if b.Len() >= total {
			break
		}
		text := p.Text
		if len(text) > perPage {
			text = TruncateCell(text, perPage)
		}
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", p.URL, p.Title, text)
	}
	return strings.TrimSpace(b.String())
}

// landscapeMatrix folds extracted profiles into a dimension x entity table.
func landscapeMatrix(profiles []EntityProfile, cellRunes int) *Matrix {
	var entities []string
	facts := make(map[string]map[string]string) // entity -> aspect -> fact
	for _, p := range profiles {
		if _, ok := facts[p.Name]; !ok {
			if len(entities) == 5 {
				continue
			}
			entities = append(entities, p.Name)
			facts[p.Name] = make(map[string]string)
		}
		for k, v := range p.Facts {
			k = strings.TrimSpace(strings.ToLower(k))
			if k == "" || facts[p.Name][k] != "" {
				continue
			}
			facts[p.Name][k] = v
		}
	}
	counts := make(map[string]int)
	for _, byAspect := range facts {
		for aspect := range byAspect {
			counts[aspect]++
		}
	}
	aspects := make([]string, 0, len(counts))
	for a := range counts {
		aspects = append(aspects, a)
	}
	// Most widely covered aspects first, name as tiebreak, capped at five.
	sort.Slice(aspects, func(i, j int) bool {
		if counts[aspects[i]] != counts[aspects[j]] {
			return counts[aspects[i]] > counts[aspects[j]]
		}
		return aspects[i] < aspects[j]
	})
	if len(aspects) > 5 {
		aspects = aspects[:5]
	}
	m := NewMatrix(aspects, entities)
	for _, entity := range entities {
		for _, aspect := range aspects {
			if v := facts[entity][aspect]; v != "" {
				_ = m.Set(aspect, entity, TruncateCell(v, cellRunes))
			}
		}
	}
	return m
}

func generationKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindGenerationFailed
}

func retrievalKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindRetrievalFailed
}
