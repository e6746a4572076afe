package research_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scout/internal/research"
)

func rails() research.Guardrails {
	g := research.DefaultGuardrails()
	g.SkeletonRetries = 3
	g.CellRetries = 2
	g.CellMaxRunes = 20
	return g
}

func TestBuildSkeletonRetriesWithFeedback(t *testing.T) {
	attempts := 0
	retries := 0
	tp := &research.ThreePhase{
		Rails:   rails(),
		OnRetry: func(string) { retries++ },
		Gen: genFunc{structured: func(_ context.Context, _, prompt string, out interface{}) error {
			attempts++
			if attempts == 1 {
				// Too few entities; must be rejected with feedback.
				return into(out, map[string]interface{}{"entities": []string{"Solo"}, "dimensions": []string{"price", "speed"}})
			}
			if !strings.Contains(prompt, "rejected") {
				t.Fatalf("second attempt must carry validation feedback, prompt:\n%s", prompt)
			}
			return into(out, map[string]interface{}{
				"entities":   []string{"Alpha", "Beta", "beta", " "},
				"dimensions": []string{"price", "speed"},
			})
		}},
	}
	sk, err := tp.BuildSkeleton(context.Background(), "alpha vs beta")
	if err != nil {
		t.Fatalf("BuildSkeleton: %v", err)
	}
	if attempts != 2 || retries != 1 {
		t.Fatalf("attempts = %d retries = %d", attempts, retries)
	}
	// Case-insensitive dedup and blank trimming.
	if len(sk.Entities) != 2 || sk.Entities[0] != "Alpha" || sk.Entities[1] != "Beta" {
		t.Fatalf("entities = %v", sk.Entities)
	}
}

func TestBuildSkeletonExhaustionFails(t *testing.T) {
	tp := &research.ThreePhase{
		Rails: rails(),
		Gen: genFunc{structured: func(_ context.Context, _, _ string, out interface{}) error {
			return into(out, map[string]interface{}{"entities": []string{"Solo"}, "dimensions": []string{}})
		}},
	}
	_, err := tp.BuildSkeleton(context.Background(), "q")
	if err == nil {
		t.Fatalf("exhausted retries must fail")
	}
	var invalid research.ErrStructureInvalid
	if !errors.As(err, &invalid) {
		t.Fatalf("want ErrStructureInvalid, got %T: %v", err, err)
	}
	if len(invalid.Problems) == 0 {
		t.Fatalf("problems must be reported")
	}
}

func TestBuildSkeletonClampsToFive(t *testing.T) {
	tp := &research.ThreePhase{
		Rails: rails(),
		Gen: genFunc{structured: func(_ context.Context, _, _ string, out interface{}) error {
			return into(out, map[string]interface{}{
				"entities":   []string{"A", "B", "C", "D", "E", "F", "G"},
				"dimensions": []string{"d1", "d2", "d3", "d4", "d5", "d6"},
			})
		}},
	}
	sk, err := tp.BuildSkeleton(context.Background(), "q")
	if err != nil {
		t.Fatalf("BuildSkeleton: %v", err)
	}
	if len(sk.Entities) != 5 || len(sk.Dimensions) != 5 {
		t.Fatalf("surface = %dx%d, want 5x5", len(sk.Dimensions), len(sk.Entities))
	}
}

func TestFillMatrixRejectsOutOfKeyThenRecovers(t *testing.T) {
	sk := research.Skeleton{Entities: []string{"Alpha", "Beta"}, Dimensions: []string{"price"}}
	attempt := 0
	tp := &research.ThreePhase{
		Rails: rails(),
		Gen: genFunc{structured: func(_ context.Context, _, prompt string, out interface{}) error {
			attempt++
			if attempt == 1 {
				return into(out, map[string]interface{}{"Gamma": "oops"})
			}
			if !strings.Contains(prompt, "rejected") {
				t.Fatalf("retry prompt must mention the rejection")
			}
			return into(out, map[string]interface{}{"alpha": "cheap", "Beta": nil})
		}},
	}
	m, errs := tp.FillMatrix(context.Background(), "q", sk, "")
	if len(errs) != 0 {
		t.Fatalf("unexpected degradations: %+v", errs)
	}
	// Keys matched case-insensitively against the frozen surface.
	if v, ok := m.Cell("price", "Alpha"); !ok || v != "cheap" {
		t.Fatalf("Alpha cell = %q %v", v, ok)
	}
	// Explicit null from the model is a valid cell.
	if _, ok := m.Cell("price", "Beta"); ok {
		t.Fatalf("Beta cell should be null")
	}
}

func TestFillMatrixExhaustionLeavesNullRow(t *testing.T) {
	sk := research.Skeleton{Entities: []string{"Alpha", "Beta"}, Dimensions: []string{"price", "speed"}}
	tp := &research.ThreePhase{
		Rails: rails(),
		Gen: genFunc{structured: func(_ context.Context, _, prompt string, out interface{}) error {
			if strings.Contains(prompt, "Dimension: price") {
				return into(out, map[string]interface{}{"Gamma": "wrong"}) // never learns
			}
			return into(out, map[string]interface{}{"Alpha": "fast", "Beta": "faster"})
		}},
	}
	m, errs := tp.FillMatrix(context.Background(), "q", sk, "")
	if len(errs) != 1 || errs[0].Kind != research.KindCellFillDegraded {
		t.Fatalf("want one cell_fill_degraded, got %+v", errs)
	}
	if !m.Rectangular() {
		t.Fatalf("degraded matrix must stay rectangular")
	}
	if m.NullCells() != 2 {
		t.Fatalf("null cells = %d, want the whole price row", m.NullCells())
	}
	if v, ok := m.Cell("speed", "Beta"); !ok || v != "faster" {
		t.Fatalf("speed row must survive, got %q %v", v, ok)
	}
}

func TestFillMatrixTruncatesCells(t *testing.T) {
	sk := research.Skeleton{Entities: []string{"Alpha"}, Dimensions: []string{"price"}}
	g := rails()
	g.CellMaxRunes = 5
	tp := &research.ThreePhase{
		Rails: g,
		Gen: genFunc{structured: func(_ context.Context, _, _ string, out interface{}) error {
			return into(out, map[string]interface{}{"Alpha": "a very long cell value"})
		}},
	}
	m, _ := tp.FillMatrix(context.Background(), "q", sk, "")
	if v, _ := m.Cell("price", "Alpha"); v != "a ver" {
		t.Fatalf("cell = %q, want truncated to 5 runes", v)
	}
}

func TestSummarizeRequiresContent(t *testing.T) {
	sk := research.Skeleton{Entities: []string{"A", "B"}, Dimensions: []string{"d"}}
	m := research.NewMatrix(sk.Dimensions, sk.Entities)
	tp := &research.ThreePhase{
		Rails: rails(),
		Gen:   genFunc{generate: func(_ context.Context, _, _ string) (string, error) { return "   ", nil }},
	}
	if _, err := tp.Summarize(context.Background(), "q", m); err == nil {
		t.Fatalf("blank summary must be an error")
	}
}
