package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chris/taskbot/internal/domain"
)

const (
	maxSearchBodySize  = 512 * 1024
	searchResultLimit  = 5
	duckDuckGoEndpoint = "https://api.duckduckgo.com/"
)

// SearchBackend abstracts a web search engine.
type SearchBackend interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
	Name() string
}

type SearchResult struct {
	Title   string
	URL     string
	Content string
}

var searchLeadIn = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:search(?:\s+the\s+web)?(?:\s+for)?|look\s+up|google|find\s+online)\s*:?\s*`)

// SearchTool answers general questions with a web search.
type SearchTool struct {
	backend SearchBackend
	logger  *slog.Logger
}

func NewSearchTool(backend SearchBackend, logger *slog.Logger) *SearchTool {
	return &SearchTool{backend: backend, logger: logger}
}

func (t *SearchTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		Name:        WebSearch,
		Description: "Search the web for information the team's own data cannot answer",
		Handler:     t.Search,
	}
}

// Search runs the question (minus any "search for" prefix) through the backend.
func (t *SearchTool) Search(ctx context.Context, text string, _ int64) (string, error) {
	query := strings.TrimSpace(searchLeadIn.ReplaceAllString(text, ""))
	if query == "" {
		return "What should I search for?", nil
	}

	results, err := t.backend.Search(ctx, query, searchResultLimit)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t.logger.Warn("web search failed", "backend", t.backend.Name(), "error", err)
		return "", domain.NewError("tools.search", domain.ErrToolExecution, "Web search is unavailable right now.")
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	lines := make([]string, len(results))
	for i, r := range results {
		line := fmt.Sprintf("%s - %s", r.Title, r.URL)
		if r.Content != "" {
			line += "\n  " + r.Content
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n"), nil
}

// --- DuckDuckGo ---

type duckDuckGoResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

// DuckDuckGoBackend uses the DuckDuckGo Instant Answer API. It needs no key.
type DuckDuckGoBackend struct {
	client   *http.Client
	endpoint string
}

func NewDuckDuckGoBackend() *DuckDuckGoBackend {
	return &DuckDuckGoBackend{
		client:   &http.Client{Timeout: 15 * time.Second},
		endpoint: duckDuckGoEndpoint,
	}
}

func (b *DuckDuckGoBackend) Name() string { return "duckduckgo" }

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	var resp duckDuckGoResponse
	if err := getJSON(ctx, b.client, b.endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	var results []SearchResult
	if resp.AbstractText != "" {
		results = append(results, SearchResult{Title: resp.Heading, URL: resp.AbstractURL, Content: resp.AbstractText})
	}
	var walk func(topics []ddgTopic)
	walk = func(topics []ddgTopic) {
		for _, tp := range topics {
			if len(results) >= count {
				return
			}
			if tp.FirstURL != "" && tp.Text != "" {
				title, _, _ := strings.Cut(tp.Text, " - ")
				results = append(results, SearchResult{Title: title, URL: tp.FirstURL, Content: tp.Text})
			}
			walk(tp.Topics)
		}
	}
	walk(resp.RelatedTopics)
	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

// --- SearXNG ---

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearXNGBackend searches the web via a SearXNG instance.
type SearXNGBackend struct {
	client      *http.Client
	instanceURL string
}

func NewSearXNGBackend(instanceURL string) *SearXNGBackend {
	return &SearXNGBackend{
		client:      &http.Client{Timeout: 15 * time.Second},
		instanceURL: strings.TrimRight(instanceURL, "/"),
	}
}

func (b *SearXNGBackend) Name() string { return "searxng" }

func (b *SearXNGBackend) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("pageno", "1")

	var resp searxngResponse
	if err := getJSON(ctx, b.client, b.instanceURL+"/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return results, nil
}

func getJSON(ctx context.Context, client *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "taskbot/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search failed (HTTP %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
