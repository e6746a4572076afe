package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"scout/internal/research"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveSearch queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
type BraveSearch struct {
	APIKey   string
	Timeout  time.Duration
	Endpoint string // overridable in tests
}

func (s *BraveSearch) Search(ctx context.Context, query string, k int) ([]research.SearchHit, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = braveEndpoint
	}
	u := fmt.Sprintf("%s?q=%s&count=%d", endpoint, url.QueryEscape(query), k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)

	resp, err := httpClient(s.Timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search returned status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []research.SearchHit
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, research.SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return http.DefaultClient
	}
	return &http.Client{Timeout: timeout}
}
