package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

// WikipediaSearchTool queries the MediaWiki search API. Useful for
// encyclopedic facts when general web search is noisy.
type WikipediaSearchTool struct{}

func NewWikipediaSearchTool() *WikipediaSearchTool {
	return &WikipediaSearchTool{}
}

func (t *WikipediaSearchTool) ToolName() string {
	return "wikipedia_search"
}

func (t *WikipediaSearchTool) ToolDescription() string {
	return "Search Wikipedia articles. Returns matching article titles, snippets, and URLs."
}

func (t *WikipediaSearchTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"query": {
				Type:        TypeString,
				Description: "The search query",
			},
			"max_results": {
				Type:        TypeInteger,
				Description: "Maximum number of articles to return (default 5)",
			},
		},
		Required: []string{"query"},
	}
}

type wikipediaParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

var wikiMarkupRe = regexp.MustCompile(`<[^>]+>`)

func (t *WikipediaSearchTool) Call(ctx context.Context, params string) (string, error) {
	var p wikipediaParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if p.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 5
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "search")
	q.Set("srsearch", p.Query)
	q.Set("srlimit", fmt.Sprintf("%d", p.MaxResults))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wikipediaEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := searchClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("wikipedia returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode wikipedia response: %w", err)
	}

	type article struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		URL     string `json:"url"`
	}
	articles := make([]article, 0, len(payload.Query.Search))
	for _, s := range payload.Query.Search {
		articles = append(articles, article{
			Title:   s.Title,
			Snippet: wikiMarkupRe.ReplaceAllString(s.Snippet, ""),
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(s.Title, " ", "_")),
		})
	}

	out, err := json.Marshal(articles)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	return string(out), nil
}
