package research_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scout/internal/research"
)

func comparisonInput() research.AssemblyInput {
	m := research.NewMatrix([]string{"price", "speed"}, []string{"Alpha", "Beta"})
	_ = m.Set("price", "Alpha", "cheap")
	_ = m.Set("speed", "Alpha", "fast")
	_ = m.Set("speed", "Beta", "faster")
	return research.AssemblyInput{
		JobID:   "job-1",
		Query:   "alpha vs beta",
		Mode:    research.ModeComparison,
		Matrix:  m,
		Summary: "Alpha is cheaper, Beta is faster.",
		Errors: []research.JobError{
			{Node: "compare", Kind: research.KindCellFillDegraded, Message: "price left null for Beta"},
		},
	}
}

func TestAssembleReportIsIdempotent(t *testing.T) {
	first, err := research.AssembleReport(comparisonInput())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	second, err := research.AssembleReport(comparisonInput())
	if err != nil {
		t.Fatalf("assemble again: %v", err)
	}
	if first.Markdown != second.Markdown {
		t.Fatalf("markdown differs between runs:\n%s", cmp.Diff(first.Markdown, second.Markdown))
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("json differs between runs:\n%s", cmp.Diff(string(first.Data), string(second.Data)))
	}
}

func TestAssembleReportEmbedsComparisonTable(t *testing.T) {
	art, err := research.AssembleReport(comparisonInput())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if art.Status != research.StatusCompleted {
		t.Fatalf("status = %s", art.Status)
	}
	var doc struct {
		ComparisonTable map[string]map[string]*string `json:"comparison_table"`
		Summary         string                        `json:"summary"`
	}
	if err := json.Unmarshal(art.Data, &doc); err != nil {
		t.Fatalf("decoding report json: %v", err)
	}
	if doc.ComparisonTable == nil {
		t.Fatalf("comparison_table missing")
	}
	if doc.ComparisonTable["price"]["Beta"] != nil {
		t.Fatalf("null cell must survive serialization as null")
	}
	if v := doc.ComparisonTable["speed"]["Beta"]; v == nil || *v != "faster" {
		t.Fatalf("cell = %v", v)
	}
	if doc.Summary == "" {
		t.Fatalf("summary missing")
	}
	if !strings.Contains(art.Markdown, "## Limitations") {
		t.Fatalf("recorded errors must surface in markdown:\n%s", art.Markdown)
	}
}

func TestAssembleLandscapeWithoutSourcesIsNonEmpty(t *testing.T) {
	art, err := research.AssembleReport(research.AssemblyInput{
		JobID: "job-2",
		Query: "state of the widget market",
		Mode:  research.ModeLandscape,
		Errors: []research.JobError{
			{Node: "search", Kind: research.KindRetrievalFailed, Message: "search produced no results"},
		},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if strings.TrimSpace(art.Markdown) == "" {
		t.Fatalf("landscape report must never be empty")
	}
	if !strings.Contains(art.Markdown, "No usable sources") {
		t.Fatalf("limitation must be stated:\n%s", art.Markdown)
	}
}

func TestAssembleJudgmentTreatsAbsenceAsFinding(t *testing.T) {
	art, err := research.AssembleReport(research.AssemblyInput{
		JobID: "job-3",
		Query: "is quantum-resistant tooling mature",
		Mode:  research.ModeJudgment,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(art.Markdown, "absence is itself a finding") {
		t.Fatalf("judgment report must treat missing evidence as the conclusion:\n%s", art.Markdown)
	}
}

func TestAssembleFailureIsExplicit(t *testing.T) {
	art := research.AssembleFailure(research.AssemblyInput{
		JobID: "job-4",
		Query: "alpha vs beta",
		Mode:  research.ModeComparison,
		Errors: []research.JobError{
			{Node: "compare", Kind: research.KindStructureValidation, Message: "invalid table structure"},
		},
	}, "invalid table structure")
	if art.Status != research.StatusFailed {
		t.Fatalf("status = %s", art.Status)
	}
	if strings.TrimSpace(art.Markdown) == "" {
		t.Fatalf("failure artifact must never be an empty string")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(art.Data, &doc); err != nil {
		t.Fatalf("decoding failure json: %v", err)
	}
	if doc["failed"] != true {
		t.Fatalf("failure flag missing: %v", doc)
	}
	if doc["comparison_table"] != nil {
		t.Fatalf("aborted run must not commit a partial table")
	}
}
