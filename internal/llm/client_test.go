package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voicedesk/agent/internal/session"
)

func sseServer(t *testing.T, check func(body map[string]any), chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			b, _ := json.Marshal(map[string]any{
				"id":      "x",
				"object":  "chat.completion.chunk",
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": c}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestGenerateStreamsText(t *testing.T) {
	srv := sseServer(t, func(body map[string]any) {
		assert.Equal(t, "gpt-4o-mini", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	}, "It is ", "sunny in Pune.")
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4o-mini"}, zaptest.NewLogger(t))
	out, err := c.Generate(context.Background(), Request{Messages: []session.Message{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "weather in pune today"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Pune.", out.Text)
	assert.False(t, out.FirstToken.IsZero())
	assert.False(t, out.Finished.Before(out.FirstToken))
}

func TestGenerateDecisionUsesJSONMode(t *testing.T) {
	srv := sseServer(t, func(body map[string]any) {
		assert.Equal(t, "small", body["model"])
		rf := body["response_format"].(map[string]any)
		assert.Equal(t, "json_object", rf["type"])
	}, `{"search":true,`, `"query":"pune weather today"}`)
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "big", DecisionModel: "small"}, zaptest.NewLogger(t))
	out, err := c.Generate(context.Background(), Request{JSON: true, Messages: []session.Message{{Role: session.RoleUser, Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, `{"search":true,"query":"pune weather today"}`, out.Text)
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := c.Generate(context.Background(), Request{Messages: []session.Message{{Role: session.RoleUser, Content: "x"}}})
	assert.Error(t, err)
}
