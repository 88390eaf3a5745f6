package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const braveSearchEndpoint = "https://api.search.brave.com/res/v1/web/search"

var searchClient = &http.Client{
	Timeout: 30 * time.Second,
}

// WebSearchTool queries the Brave Search API
type WebSearchTool struct {
	apiKey     string
	maxResults int
}

// NewWebSearchTool creates a web_search tool. defaultMaxResults is used
// when the model omits max_results; zero means 10.
func NewWebSearchTool(apiKey string, defaultMaxResults int) *WebSearchTool {
	if defaultMaxResults <= 0 {
		defaultMaxResults = 10
	}
	return &WebSearchTool{apiKey: apiKey, maxResults: defaultMaxResults}
}

func (t *WebSearchTool) ToolName() string {
	return "web_search"
}

func (t *WebSearchTool) ToolDescription() string {
	return "Search the web for current information. Returns a list of results with title, URL, and description."
}

func (t *WebSearchTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"query": {
				Type:        TypeString,
				Description: "The search query",
			},
			"max_results": {
				Type:        TypeInteger,
				Description: "Maximum number of results to return (default 10)",
			},
		},
		Required: []string{"query"},
	}
}

type webSearchParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// SearchResult is one pruned web search hit
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Age         string `json:"age,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (t *WebSearchTool) Call(ctx context.Context, params string) (string, error) {
	var p webSearchParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	if p.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if p.MaxResults <= 0 {
		p.MaxResults = t.maxResults
	}

	results, err := t.search(ctx, p.Query, p.MaxResults)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	return string(out), nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("brave search api key is not configured")
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	q.Set("country", "us")
	q.Set("search_lang", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := searchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
				ContentType string `json:"content_type"`
				Profile     struct {
					Name string `json:"name"`
				} `json:"profile"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	// Prune to the fields a subagent actually needs.
	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, SearchResult{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			Source:      r.Profile.Name,
			Age:         r.Age,
			ContentType: r.ContentType,
		})
	}
	return results, nil
}
