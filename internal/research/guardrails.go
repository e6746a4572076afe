package research

import "time"

// Guardrails is the per-job resource policy. The executor checks it at
// node boundaries; ports are never trusted to stop on their own.
type Guardrails struct {
	MaxSteps            int
	MaxURLs             int
	MaxCrawlConcurrency int
	NodeTimeout         time.Duration
	JobTimeout          time.Duration
	SkeletonRetries     int
	CellRetries         int
	CellMaxRunes        int
}

// DefaultGuardrails returns the stock policy.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		MaxSteps:            20,
		MaxURLs:             10,
		MaxCrawlConcurrency: 3,
		NodeTimeout:         60 * time.Second,
		JobTimeout:          10 * time.Minute,
		SkeletonRetries:     3,
		CellRetries:         2,
		CellMaxRunes:        20,
	}
}

// CheckStep reports whether another node may run given the steps used so far.
func (g Guardrails) CheckStep(used int) error {
	if g.MaxSteps > 0 && used >= g.MaxSteps {
		return ErrExceeded{Kind: "steps", Used: used, Limit: g.MaxSteps}
	}
	return nil
}

// CapURLs trims a URL list to the crawl budget.
func (g Guardrails) CapURLs(urls []string) []string {
	if g.MaxURLs > 0 && len(urls) > g.MaxURLs {
		return urls[:g.MaxURLs]
	}
	return urls
}
