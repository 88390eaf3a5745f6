package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// maxFetchBytes bounds raw page content before HTML stripping
const maxFetchBytes = 64 * 1024

const fetchUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var fetchClient = &http.Client{
	Timeout: 15 * time.Second,
}

// WebFetchTool retrieves a page and reduces it to plain text
type WebFetchTool struct{}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{}
}

func (t *WebFetchTool) ToolName() string {
	return "web_fetch"
}

func (t *WebFetchTool) ToolDescription() string {
	return "Fetch the full text content of a web page by URL. Use after web_search to read a promising result in depth."
}

func (t *WebFetchTool) ToolPayloadSchema() Schema {
	return Schema{
		Type: TypeObject,
		Properties: PropertyMap{
			"url": {
				Type:        TypeString,
				Description: "The URL of the page to fetch",
			},
		},
		Required: []string{"url"},
	}
}

type webFetchParams struct {
	URL string `json:"url"`
}

func (t *WebFetchTool) Call(ctx context.Context, params string) (string, error) {
	var p webFetchParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	target := strings.TrimSpace(p.URL)
	if target == "" {
		return "", fmt.Errorf("url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := fetchClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch returned status %d for %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return stripHTML(string(body)), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// stripHTML reduces an HTML document to readable plain text.
func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
