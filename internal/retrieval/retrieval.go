// Package retrieval supplies the search and crawl implementations behind
// the engine's retrieval port.
package retrieval

import (
	"errors"

	"scout/config"
	"scout/internal/research"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewSearcher builds a web searcher for the configured provider.
func NewSearcher(cfg config.SearchConfig) (research.Searcher, error) {
	switch cfg.Provider {
	case "serper":
		return &SerperSearch{APIKey: cfg.SerperAPIKey, Timeout: cfg.Timeout}, nil
	case "brave", "":
		return &BraveSearch{APIKey: cfg.BraveAPIKey, Timeout: cfg.Timeout}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// NewFetcher builds the headless-browser page fetcher.
func NewFetcher(cfg config.FetchConfig) research.Fetcher {
	return &BrowserFetch{Timeout: cfg.Timeout, MaxChars: cfg.MaxChars}
}
