// Package search provides the web search collaborator and the gate that
// decides whether a search is worth running.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Grounding renders results as a system instruction for the final response.
func Grounding(results []Result) string {
	var b strings.Builder
	b.WriteString("Fresh web search results. Use them to answer and do not read URLs aloud:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s: %s (%s)\n", i+1, r.Title, r.Snippet, r.Source)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Client talks to a Tavily-compatible search endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	limiter    *rate.Limiter
	http       *http.Client
}

func NewClient(apiKey, baseURL string, rps float64, maxResults int) *Client {
	if rps <= 0 {
		rps = 1
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		maxResults: maxResults,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limit: %w", err)
	}
	start := time.Now()
	body, _ := json.Marshal(searchRequest{APIKey: c.apiKey, Query: query, MaxResults: c.maxResults, SearchDepth: "basic"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		metricRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metricRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		metricRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		out = append(out, Result{Title: r.Title, Snippet: r.Content, Source: r.URL})
	}
	metricRequests.WithLabelValues("ok").Inc()
	metricLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// Static returns canned results. It stands in for a search provider when no
// API key is configured.
type Static struct {
	Delay time.Duration
}

func (s Static) Search(ctx context.Context, query string) ([]Result, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	metricRequests.WithLabelValues("static").Inc()
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "pune") && strings.Contains(q, "weather"):
		return []Result{
			{Title: "Pune Weather - AccuWeather", Snippet: "Mostly sunny and pleasant. High 31C. Winds light and variable.", Source: "https://accuweather.com"},
			{Title: "Current Weather in Pune", Snippet: "24°C, Humidity: 45%. Clear skies expected for the rest of the day.", Source: "https://weather.com"},
		}, nil
	case strings.Contains(q, "openai"):
		return []Result{
			{Title: "OpenAI Blog - News", Snippet: "OpenAI announces new model capabilities and safety features.", Source: "https://openai.com/blog"},
			{Title: "TechCrunch - OpenAI Updates", Snippet: "Reports suggest OpenAI is expanding its infrastructure.", Source: "https://techcrunch.com"},
		}, nil
	}
	return []Result{
		{Title: "Search results for " + query, Snippet: "General information about the topic found on various educational and news sites.", Source: "https://example.com"},
	}, nil
}
