// Package search provides the web search tool offered to the solver.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mathviz/internal/httpclient"
	"mathviz/internal/llm"
)

const (
	defaultEndpoint   = "https://api.tavily.com/search"
	defaultMaxResults = 5
	maxSnippetRunes   = 600
	maxResponseBytes  = 1 << 20
)

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Response is the decoded search payload.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Tavily is a web_search tool backed by the Tavily REST API.
type Tavily struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

var _ llm.Tool = (*Tavily)(nil)

// Option customizes Tavily.
type Option func(*Tavily)

// WithEndpoint points the tool at another URL.
func WithEndpoint(endpoint string) Option {
	return func(t *Tavily) { t.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Tavily) { t.httpClient = client }
}

// NewTavily returns a search tool, or nil when apiKey is empty.
func NewTavily(apiKey string, maxResults int, opts ...Option) *Tavily {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	t := &Tavily{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		maxResults: maxResults,
		httpClient: httpclient.New(30 * time.Second),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tavily) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for definitions, theorems or worked examples relevant to the problem.",
		Parameters: llm.ParameterSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query":       {Type: "string", Description: "Search query"},
				"max_results": {Type: "integer", Description: "Number of results (1-10)"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *Tavily) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := llm.StringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	n := llm.IntArg(args, "max_results", t.maxResults)
	if n < 1 || n > 10 {
		n = t.maxResults
	}

	resp, err := t.Search(ctx, query, n)
	if err != nil {
		return "", err
	}
	return Format(query, resp.Answer, resp.Results), nil
}

// Search performs one query.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := httpclient.ReadBody(resp, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

// Format renders results as compact text for the model.
func Format(query, answer string, results []Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)
	if answer != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", answer)
	}
	if len(results) == 0 {
		sb.WriteString("No results.\n")
		return sb.String()
	}
	for i, r := range results {
		content := []rune(strings.TrimSpace(r.Content))
		if len(content) > maxSnippetRunes {
			content = append(content[:maxSnippetRunes], '…')
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n   %s\n", i+1, r.Title, r.URL, string(content))
	}
	return sb.String()
}
