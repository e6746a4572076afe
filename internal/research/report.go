package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AssemblyInput is everything the report assembler reads. Assembly is a
// pure function of this value: identical input yields byte-identical
// artifacts, so re-running assembly for the same terminal state is safe.
type AssemblyInput struct {
	JobID    string
	Query    string
	Mode     Mode
	Plan     Plan
	Matrix   *Matrix
	Summary  string
	Findings string
	Profiles []EntityProfile
	Errors   []JobError
}

// AssembleReport builds the completed-job artifact. The JSON document
// always carries a top-level comparison_table key; it is null when no
// matrix was produced, otherwise the matrix cells verbatim.
func AssembleReport(in AssemblyInput) (ReportArtifact, error) {
	doc := map[string]interface{}{
		"query":            in.Query,
		"mode":             in.Mode,
		"comparison_table": nil,
		"summary":          strings.TrimSpace(in.Summary + "\n" + in.Findings),
		"entities":         entityNames(in),
		"errors":           errorDocs(in.Errors),
	}
	if in.Matrix != nil {
		doc["comparison_table"] = in.Matrix.Table()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return ReportArtifact{}, fmt.Errorf("marshalling report: %w", err)
	}

	var md string
	switch in.Mode {
	case ModeComparison:
		md = comparisonMarkdown(in)
	case ModeJudgment:
		md = judgmentMarkdown(in)
	default:
		md = landscapeMarkdown(in)
	}
	return ReportArtifact{
		JobID:    in.JobID,
		Mode:     in.Mode,
		Status:   StatusCompleted,
		Markdown: md,
		Data:     data,
	}, nil
}

// AssembleFailure builds the explicit failure artifact. It is never an
// empty string and carries no comparison table: partial structure from an
// aborted run is not committed as output.
func AssembleFailure(in AssemblyInput, reason string) ReportArtifact {
	doc := map[string]interface{}{
		"query":            in.Query,
		"mode":             in.Mode,
		"failed":           true,
		"reason":           reason,
		"comparison_table": nil,
		"errors":           errorDocs(in.Errors),
	}
	data, _ := json.Marshal(doc)

	var b strings.Builder
	fmt.Fprintf(&b, "# Research failed\n\n**Query:** %s\n\n", in.Query)
	fmt.Fprintf(&b, "The run could not produce a result: %s\n", reason)
	writeLimitations(&b, in.Errors)
	return ReportArtifact{
		JobID:    in.JobID,
		Mode:     in.Mode,
		Status:   StatusFailed,
		Markdown: b.String(),
		Data:     data,
	}
}

func comparisonMarkdown(in AssemblyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Comparison: %s\n\n", in.Query)
	if in.Matrix != nil {
		b.WriteString(in.Matrix.Markdown())
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(in.Summary); s != "" {
		b.WriteString("## Summary\n\n" + s + "\n")
	}
	writeLimitations(&b, in.Errors)
	return b.String()
}

func landscapeMarkdown(in AssemblyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research: %s\n\n", in.Query)
	if len(in.Profiles) == 0 {
		b.WriteString("No usable sources could be retrieved for this query. " +
			"The findings below rest on the search strategy alone and should be treated as provisional.\n\n")
	} else {
		b.WriteString("## Sources\n\n")
		for _, p := range in.Profiles {
			fmt.Fprintf(&b, "- **%s** — %s\n", p.Name, p.Source)
		}
		b.WriteString("\n")
	}
	if in.Matrix != nil {
		b.WriteString("## Overview\n\n" + in.Matrix.Markdown() + "\n")
	}
	if f := strings.TrimSpace(in.Findings); f != "" {
		b.WriteString("## Findings\n\n" + f + "\n")
	} else {
		b.WriteString("## Findings\n\nNo synthesized findings are available for this run.\n")
	}
	writeLimitations(&b, in.Errors)
	return b.String()
}

func judgmentMarkdown(in AssemblyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Assessment: %s\n\n", in.Query)
	if f := strings.TrimSpace(in.Findings); f != "" {
		b.WriteString(f + "\n\n")
	} else {
		b.WriteString("A synthesized verdict could not be generated for this run. ")
	}
	b.WriteString("## Evidence\n\n")
	if len(in.Profiles) == 0 {
		b.WriteString("No supporting evidence was found. For a question of maturity or viability, " +
			"that absence is itself a finding: the space is too thin to assess positively today.\n")
	} else {
		for _, p := range in.Profiles {
			fmt.Fprintf(&b, "- **%s** — %s\n", p.Name, p.Source)
			for _, k := range sortedKeys(p.Facts) {
				fmt.Fprintf(&b, "  - %s: %s\n", k, p.Facts[k])
			}
		}
	}
	writeLimitations(&b, in.Errors)
	return b.String()
}

func writeLimitations(b *strings.Builder, errs []JobError) {
	if len(errs) == 0 {
		return
	}
	b.WriteString("\n## Limitations\n\n")
	for _, je := range errs {
		if je.Node != "" {
			fmt.Fprintf(b, "- [%s/%s] %s\n", je.Node, je.Kind, je.Message)
		} else {
			fmt.Fprintf(b, "- [%s] %s\n", je.Kind, je.Message)
		}
	}
}

func entityNames(in AssemblyInput) []string {
	if in.Matrix != nil {
		return in.Matrix.Entities()
	}
	var names []string
	seen := make(map[string]struct{})
	for _, p := range in.Profiles {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	return names
}

func errorDocs(errs []JobError) []map[string]string {
	out := make([]map[string]string, 0, len(errs))
	for _, je := range errs {
		doc := map[string]string{"kind": je.Kind, "message": je.Message}
		if je.Node != "" {
			doc["node"] = je.Node
		}
		out = append(out, doc)
	}
	return out
}
