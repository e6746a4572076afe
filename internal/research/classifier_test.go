package research_test

import (
	"context"
	"errors"
	"testing"

	"scout/internal/research"
)

func TestClassifierRoutesModes(t *testing.T) {
	cases := []struct {
		raw  string
		want research.Mode
	}{
		{"comparison", research.ModeComparison},
		{"Landscape", research.ModeLandscape},
		{" judgment ", research.ModeJudgment},
	}
	for _, tc := range cases {
		c := &research.Classifier{Gen: genFunc{
			structured: func(_ context.Context, _, _ string, out interface{}) error {
				return into(out, map[string]interface{}{"mode": tc.raw, "confidence": 0.9, "rationale": "r"})
			},
		}}
		cl, warn := c.Classify(context.Background(), "q")
		if warn != nil {
			t.Fatalf("mode %q: unexpected warning %+v", tc.raw, warn)
		}
		if cl.Mode != tc.want {
			t.Fatalf("mode = %s, want %s", cl.Mode, tc.want)
		}
	}
}

func TestClassifierFallsBackToLandscape(t *testing.T) {
	c := &research.Classifier{Gen: genFunc{
		structured: func(_ context.Context, _, _ string, _ interface{}) error {
			return errors.New("provider down")
		},
	}}
	cl, warn := c.Classify(context.Background(), "q")
	if cl.Mode != research.ModeLandscape {
		t.Fatalf("fallback mode = %s, want landscape", cl.Mode)
	}
	if warn == nil || warn.Kind != research.KindClassificationDegraded {
		t.Fatalf("want classification_degraded warning, got %+v", warn)
	}
}

func TestClassifierRejectsUnknownMode(t *testing.T) {
	c := &research.Classifier{Gen: genFunc{
		structured: func(_ context.Context, _, _ string, out interface{}) error {
			return into(out, map[string]interface{}{"mode": "solutions", "confidence": 0.8})
		},
	}}
	cl, warn := c.Classify(context.Background(), "q")
	if cl.Mode != research.ModeLandscape || warn == nil {
		t.Fatalf("unknown mode must degrade to landscape with warning, got %s %+v", cl.Mode, warn)
	}
}
