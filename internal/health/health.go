package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"voicedesk/agent/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// Pinger is satisfied by the conversation archive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes the upstream providers with cheap authenticated calls.
type Checker struct {
	cfg     config.Config
	archive Pinger
	client  *http.Client
}

// NewChecker builds a checker. archive may be nil.
func NewChecker(cfg config.Config, archive Pinger) *Checker {
	return &Checker{cfg: cfg, archive: archive, client: &http.Client{Timeout: 5 * time.Second}}
}

// CheckAll runs all health checks concurrently and returns combined status
func (c *Checker) CheckAll(ctx context.Context) HealthStatus {
	probes := []func(context.Context) CheckResult{c.checkDeepgram, c.checkLLM, c.checkArchive}
	checks := make([]CheckResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p func(context.Context) CheckResult) {
			defer wg.Done()
			checks[i] = p(ctx)
		}(i, p)
	}
	wg.Wait()

	allOK := true
	for _, r := range checks {
		if !r.OK {
			allOK = false
		}
	}
	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func (c *Checker) checkDeepgram(ctx context.Context) CheckResult {
	result := CheckResult{Name: "deepgram"}
	if c.cfg.Deepgram.APIKey == "" {
		result.Error = "DEEPGRAM_API_KEY not set"
		return result
	}
	// List projects (lightweight call) on the host serving speech synthesis
	u, err := url.Parse(c.cfg.Deepgram.SpeakURL)
	if err != nil || u.Host == "" {
		result.Error = fmt.Sprintf("bad speak url %q", c.cfg.Deepgram.SpeakURL)
		return result
	}
	u.Path = "/v1/projects"
	u.RawQuery = ""
	return c.probe(ctx, result, u.String(), map[string]string{"Authorization": "Token " + c.cfg.Deepgram.APIKey})
}

func (c *Checker) checkLLM(ctx context.Context) CheckResult {
	result := CheckResult{Name: "llm"}
	llm := c.cfg.LLM
	if llm.APIKey == "" {
		result.Error = "OPENAI_API_KEY not set"
		return result
	}
	if llm.AzureEndpoint != "" {
		target := strings.TrimSuffix(llm.AzureEndpoint, "/") + "/openai/models?api-version=" + url.QueryEscape(llm.AzureAPIVersion)
		return c.probe(ctx, result, target, map[string]string{"api-key": llm.APIKey})
	}
	base := llm.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return c.probe(ctx, result, strings.TrimSuffix(base, "/")+"/models", map[string]string{"Authorization": "Bearer " + llm.APIKey})
}

func (c *Checker) checkArchive(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "archive"}
	if c.archive == nil {
		result.Error = "archive not configured"
		return result
	}
	if err := c.archive.Ping(ctx); err != nil {
		result.Error = fmt.Sprintf("ping failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	result.Latency = time.Since(start)
	result.OK = true
	return result
}

func (c *Checker) probe(ctx context.Context, result CheckResult, target string, headers map[string]string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode == 401 {
		result.Error = "invalid API key (401)"
		return result
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}
	io.Copy(io.Discard, resp.Body)

	result.OK = true
	return result
}
