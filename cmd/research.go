package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scout/config"
	"scout/internal/llm"
	"scout/internal/research"
	"scout/internal/retrieval"
	"scout/internal/store"
)

// researchCMD runs one query end to end against an in-memory store and
// prints the report. Useful without Postgres or Redis around.
func researchCMD() *cobra.Command {
	var cfgPath string
	var showJSON bool
	var researchCmd = &cobra.Command{
		Use:   "research \"query\"",
		Short: "Run a single research query and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(args[0])
			if query == "" {
				return fmt.Errorf("query is empty")
			}
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.LLM.Validate(); err != nil {
				return err
			}

			gen := llm.NewOpenAI(cfg.LLM)
			searcher, err := retrieval.NewSearcher(cfg.Search)
			if err != nil {
				return err
			}
			fetcher := retrieval.NewFetcher(cfg.Fetch)
			st := store.NewMemory()
			events := store.NewMemoryEvents()
			rails := research.Guardrails{
				MaxSteps:            cfg.Guardrails.MaxSteps,
				MaxURLs:             cfg.Guardrails.MaxURLs,
				MaxCrawlConcurrency: cfg.Guardrails.MaxCrawlConcurrency,
				NodeTimeout:         cfg.Guardrails.NodeTimeout,
				JobTimeout:          cfg.Guardrails.JobTimeout,
				SkeletonRetries:     cfg.Guardrails.SkeletonRetries,
				CellRetries:         cfg.Guardrails.CellRetries,
				CellMaxRunes:        cfg.Guardrails.CellMaxRunes,
			}
			logger := log.New(cmd.ErrOrStderr(), "[ENGINE] ", log.LstdFlags)
			engine := research.NewEngine(gen, searcher, fetcher, st, events, rails, logger)

			job, err := engine.Execute(context.Background(), research.NewJob(uuid.NewString(), query))
			if err != nil {
				return err
			}
			art, err := st.GetReport(context.Background(), job.ID)
			if err != nil {
				return fmt.Errorf("no report produced: %w", err)
			}
			if showJSON {
				var pretty map[string]interface{}
				if err := json.Unmarshal(art.Data, &pretty); err == nil {
					out, _ := json.MarshalIndent(pretty, "", "  ")
					fmt.Fprintln(cmd.OutOrStdout(), string(out))
					return nil
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), art.Markdown)
			return nil
		},
	}
	researchCmd.Flags().BoolVar(&showJSON, "json", false, "print the structured JSON document instead of markdown")
	researchCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return researchCmd
}
