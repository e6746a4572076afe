package research

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Classification is the routing decision for a query.
type Classification struct {
	Mode       Mode    `json:"mode"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Classifier routes a query to one of the three research modes with a
// single structured generation call. It never fails the job: when the
// call or its output is unusable, it falls back to landscape mode and
// reports a warning for the job's error list.
type Classifier struct {
	Gen    Generator
	Logger *log.Logger
}

const classifierSystem = `You route research queries to a strategy. Strategies:
- "comparison": the query asks how named or implied products/tools/options stack up against each other, or asks for alternatives to one thing.
- "landscape": the query surveys a space: who the players are, what exists, what the state of an area is.
- "judgment": the query asks whether something is viable, mature, worth adopting, or likely to happen.
Respond ONLY with a JSON object: {"mode": "comparison|landscape|judgment", "confidence": 0.0-1.0, "rationale": "one sentence"}.`

// Classify returns the decided mode plus an optional warning to record.
func (c *Classifier) Classify(ctx context.Context, query string) (Classification, *JobError) {
	var out struct {
		Mode       string  `json:"mode"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	err := c.Gen.GenerateStructured(ctx, classifierSystem, fmt.Sprintf("Query: %s", query), &out)
	if err == nil {
		if mode, ok := parseMode(out.Mode); ok {
			return Classification{Mode: mode, Confidence: out.Confidence, Rationale: strings.TrimSpace(out.Rationale)}, nil
		}
		err = fmt.Errorf("unrecognised mode %q", out.Mode)
	}
	if c.Logger != nil {
		c.Logger.Printf("classification degraded for query %q: %v", query, err)
	}
	warn := JobError{Kind: KindClassificationDegraded, Message: fmt.Sprintf("classifier unavailable, defaulting to landscape: %v", err)}
	return Classification{Mode: ModeLandscape, Confidence: 0, Rationale: "fallback"}, &warn
}

func parseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeComparison:
		return ModeComparison, true
	case ModeLandscape:
		return ModeLandscape, true
	case ModeJudgment:
		return ModeJudgment, true
	}
	return "", false
}
