package config

// SearchConfig holds settings for the web search tools
type SearchConfig struct {
	BraveAPIKey     string `hcl:"brave_api_key,optional"`
	EnableWikipedia bool   `hcl:"enable_wikipedia,optional"`
	EnableBrowser   bool   `hcl:"enable_browser,optional"`
	EnableFetch     bool   `hcl:"enable_fetch,optional"`
}

// With no search block, wikipedia and plain fetch are enabled and Brave
// search is off. An explicit search block lists exactly what is enabled.

func (s *SearchConfig) WikipediaEnabled() bool {
	if s == nil {
		return true
	}
	return s.EnableWikipedia
}

func (s *SearchConfig) FetchEnabled() bool {
	if s == nil {
		return true
	}
	return s.EnableFetch
}

func (s *SearchConfig) BrowserEnabled() bool {
	return s != nil && s.EnableBrowser
}

func (s *SearchConfig) BraveKey() string {
	if s == nil {
		return ""
	}
	return s.BraveAPIKey
}
