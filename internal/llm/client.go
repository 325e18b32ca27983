// Package llm wraps an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"voicedesk/agent/internal/session"
)

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	DecisionModel   string
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string
}

type Request struct {
	Messages []session.Message
	// JSON asks for a single JSON object and routes to the decision model.
	JSON      bool
	MaxTokens int
}

type Completion struct {
	Text       string
	Started    time.Time
	FirstToken time.Time
	Finished   time.Time
}

type Client struct {
	api           *openai.Client
	model         string
	decisionModel string
	log           *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	var oc openai.ClientConfig
	model := cfg.Model
	if cfg.AzureEndpoint != "" {
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		if cfg.AzureAPIVersion != "" {
			oc.APIVersion = cfg.AzureAPIVersion
		}
		if cfg.AzureDeployment != "" {
			deployment := cfg.AzureDeployment
			oc.AzureModelMapperFunc = func(string) string { return deployment }
		}
	} else {
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	decision := cfg.DecisionModel
	if decision == "" {
		decision = model
	}
	return &Client{
		api:           openai.NewClientWithConfig(oc),
		model:         model,
		decisionModel: decision,
		log:           log.Named("llm"),
	}
}

// Generate streams a chat completion and returns the full text with
// first-token and finish timestamps.
func (c *Client) Generate(ctx context.Context, req Request) (Completion, error) {
	kind := "reply"
	model := c.model
	if req.JSON {
		kind = "decision"
		model = c.decisionModel
	}
	creq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAI(req.Messages),
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		creq.Temperature = 0
	}

	out := Completion{Started: time.Now()}
	stream, err := c.api.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		metricRequests.WithLabelValues(kind, "error").Inc()
		return out, fmt.Errorf("%s request: %w", kind, err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metricRequests.WithLabelValues(kind, "error").Inc()
			return out, fmt.Errorf("%s stream: %w", kind, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if out.FirstToken.IsZero() {
			out.FirstToken = time.Now()
			metricTTFTMS.WithLabelValues(kind).Observe(float64(out.FirstToken.Sub(out.Started).Milliseconds()))
		}
		b.WriteString(delta)
	}
	out.Finished = time.Now()
	out.Text = strings.TrimSpace(b.String())
	metricRequests.WithLabelValues(kind, "ok").Inc()
	metricTotalMS.WithLabelValues(kind).Observe(float64(out.Finished.Sub(out.Started).Milliseconds()))
	c.log.Debug("completion", zap.String("kind", kind), zap.Int("chars", len(out.Text)), zap.Duration("took", out.Finished.Sub(out.Started)))
	return out, nil
}

func toOpenAI(in []session.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case session.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case session.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
