package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// BrowserFetchTool renders a page in headless Chromium before extracting
// its text. Use for JavaScript-heavy pages where plain web_fetch returns
// an empty shell. The browser is launched lazily on first use and reused
// across calls.
type BrowserFetchTool struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewBrowserFetchTool() *BrowserFetchTool {
	return &BrowserFetchTool{}
}

func (t *BrowserFetchTool) ToolName() string {
	return "browser_fetch"
}

func (t *BrowserFetchTool) ToolDescription() string {
	return "Fetch a web page using a headless browser, executing its JavaScript first. Slower than web_fetch; use only when web_fetch returns empty or script-only content."
}

func (t *BrowserFetchTool) ToolPayloadSchema() Schema {
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

type browserFetchParams struct {
	URL string `json:"url"`
}

func (t *BrowserFetchTool) Call(ctx context.Context, params string) (string, error) {
	var p browserFetchParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if p.URL == "" {
		return "", fmt.Errorf("url is required")
	}

	browser, err := t.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(p.URL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return "", fmt.Errorf("failed to load %s: %w", p.URL, err)
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	if len(content) > maxFetchBytes {
		content = content[:maxFetchBytes]
	}

	return stripHTML(content), nil
}

func (t *BrowserFetchTool) ensureBrowser() (playwright.Browser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.browser != nil && t.browser.IsConnected() {
		return t.browser, nil
	}

	if t.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		t.pw = pw
	}

	browser, err := t.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	t.browser = browser
	return browser, nil
}

// Close shuts down the browser and playwright driver.
func (t *BrowserFetchTool) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		t.browser.Close()
		t.browser = nil
	}
	if t.pw != nil {
		t.pw.Stop()
		t.pw = nil
	}
}
