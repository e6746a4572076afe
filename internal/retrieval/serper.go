package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"scout/internal/research"
)

const serperEndpoint = "https://google.serper.dev/search"

// SerperSearch queries the serper.dev Google search API.
type SerperSearch struct {
	APIKey   string
	Timeout  time.Duration
	Endpoint string // overridable in tests
}

func (s *SerperSearch) Search(ctx context.Context, query string, k int) ([]research.SearchHit, error) {
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	body, err := json.Marshal(map[string]interface{}{"q": query, "num": k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(s.Timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper search returned status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []research.SearchHit
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, research.SearchHit{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}
