package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// Skeleton is the frozen key surface of a comparison matrix: which
// entities and which dimensions exist. Decided before any cell content.
type Skeleton struct {
	Entities   []string `json:"entities"`
	Dimensions []string `json:"dimensions"`
}

// ThreePhase generates a comparison in three strictly ordered phases:
// skeleton, cell fill, summary. The skeleton freezes the key surface;
// cell fill may only write inside it; the summary reads the result.
type ThreePhase struct {
	Gen     Generator
	Rails   Guardrails
	Logger  *log.Logger
	OnRetry func(phase string)
}

const maxNameRunes = 60

const skeletonSystem = `You design the structure of a product comparison table. Given a query,
decide which entities to compare and along which dimensions.
Aim for exactly 5 entities and exactly 5 dimensions. Fewer entities are acceptable only
when the space genuinely has fewer credible competitors. Names must be short and distinct.
Respond ONLY with a JSON object: {"entities": ["..."], "dimensions": ["..."]}.`

// BuildSkeleton runs phase one. It retries with validation feedback and
// returns ErrStructureInvalid once retries are exhausted.
func (t *ThreePhase) BuildSkeleton(ctx context.Context, query string) (Skeleton, error) {
	attempts := t.Rails.SkeletonRetries
	if attempts <= 0 {
		attempts = 1
	}
	var problems []string
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t.retry("skeleton")
		}
		prompt := fmt.Sprintf("Query: %s", query)
		if len(problems) > 0 {
			prompt += fmt.Sprintf("\n\nYour previous structure was rejected: %s. Fix these problems.", strings.Join(problems, "; "))
		}
		var sk Skeleton
		if err := t.Gen.GenerateStructured(ctx, skeletonSystem, prompt, &sk); err != nil {
			problems = []string{err.Error()}
			continue
		}
		sk = normalizeSkeleton(sk)
		problems = validateSkeleton(sk)
		if len(problems) == 0 {
			if t.Logger != nil {
				t.Logger.Printf("skeleton frozen: %d entities x %d dimensions", len(sk.Entities), len(sk.Dimensions))
			}
			return sk, nil
		}
	}
	return Skeleton{}, ErrStructureInvalid{Problems: problems}
}

func normalizeSkeleton(sk Skeleton) Skeleton {
	return Skeleton{
		Entities:   dedupeNames(sk.Entities, 5),
		Dimensions: dedupeNames(sk.Dimensions, 5),
	}
}

func dedupeNames(names []string, max int) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
		if len(out) == max {
			break
		}
	}
	return out
}

func validateSkeleton(sk Skeleton) []string {
	var problems []string
	if len(sk.Entities) < 2 {
		problems = append(problems, "need at least 2 distinct entities")
	}
	if len(sk.Dimensions) < 2 {
		problems = append(problems, "need at least 2 distinct dimensions")
	}
	for _, n := range append(append([]string(nil), sk.Entities...), sk.Dimensions...) {
		if utf8.RuneCountInString(n) > maxNameRunes {
			problems = append(problems, fmt.Sprintf("name too long: %q", n))
		}
	}
	return problems
}

// FillMatrix runs phase two: one batched call per dimension row. Responses
// that reference keys outside the frozen surface are rejected and retried;
// a row that exhausts its retries keeps null cells and reports a degraded
// fill. Null cells are valid data. The returned matrix always spans the
// full skeleton.
func (t *ThreePhase) FillMatrix(ctx context.Context, query string, sk Skeleton, evidence string) (*Matrix, []JobError) {
	m := NewMatrix(sk.Dimensions, sk.Entities)
	canonical := make(map[string]string, len(sk.Entities))
	for _, e := range sk.Entities {
		canonical[strings.ToLower(e)] = e
	}

	system := fmt.Sprintf(`You fill one row of a comparison table whose structure is already fixed.
Respond ONLY with a JSON object whose keys are EXACTLY the given entity names.
Each value is a string of at most %d characters, or null when you genuinely do not know.
Never add, remove or rename keys.`, t.Rails.CellMaxRunes)

	var errs []JobError
	attempts := t.Rails.CellRetries
	if attempts <= 0 {
		attempts = 1
	}
	for _, dim := range sk.Dimensions {
		var lastProblem string
		filled := false
		for i := 0; i < attempts; i++ {
			if i > 0 {
				t.retry("cell_fill")
			}
			prompt := fmt.Sprintf("Query: %s\nDimension: %s\nEntities: %s", query, dim, strings.Join(sk.Entities, ", "))
			if evidence != "" {
				prompt += "\n\nEvidence gathered so far:\n" + evidence
			}
			if lastProblem != "" {
				prompt += "\n\nYour previous answer was rejected: " + lastProblem
			}
			row := map[string]*string{}
			if err := t.Gen.GenerateStructured(ctx, system, prompt, &row); err != nil {
				lastProblem = err.Error()
				continue
			}
			if unknown := unknownKeys(row, canonical); len(unknown) > 0 {
				lastProblem = fmt.Sprintf("unknown keys %v; use exactly the given entity names", unknown)
				continue
			}
			for key, val := range row {
				if val == nil {
					continue
				}
				entity := canonical[strings.ToLower(strings.TrimSpace(key))]
				_ = m.Set(dim, entity, TruncateCell(*val, t.Rails.CellMaxRunes))
			}
			filled = true
			break
		}
		if !filled {
			if t.Logger != nil {
				t.Logger.Printf("cell fill degraded for dimension %q: %s", dim, lastProblem)
			}
			errs = append(errs, JobError{
				Node:    string(NodeCompare),
				Kind:    KindCellFillDegraded,
				Message: fmt.Sprintf("dimension %q left null after retries: %s", dim, lastProblem),
			})
		}
	}
	return m, errs
}

func unknownKeys(row map[string]*string, canonical map[string]string) []string {
	var unknown []string
	for key := range row {
		if _, ok := canonical[strings.ToLower(strings.TrimSpace(key))]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// Summarize runs phase three over the finished matrix.
func (t *ThreePhase) Summarize(ctx context.Context, query string, m *Matrix) (string, error) {
	system := `You write the closing summary of a comparison report. Cover the key differences
between the entities and which kind of user or use case each one suits or does not suit.
Plain prose, no headings, no tables.`
	prompt := fmt.Sprintf("Query: %s\n\nComparison table:\n%s", query, m.Markdown())
	out, err := t.Gen.Generate(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty summary")
	}
	return out, nil
}

func (t *ThreePhase) retry(phase string) {
	if t.OnRetry != nil {
		t.OnRetry(phase)
	}
}
