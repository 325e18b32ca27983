package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicedesk/agent/internal/config"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func upstream(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/projects" && r.Header.Get("Authorization") == "Token dg-key":
			w.Write([]byte(`{"projects":[]}`))
		case r.URL.Path == "/v1/models" && r.Header.Get("Authorization") == "Bearer sk-good":
			w.Write([]byte(`{"data":[]}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckAllHealthy(t *testing.T) {
	srv := upstream(t)
	var cfg config.Config
	cfg.Deepgram.APIKey = "dg-key"
	cfg.Deepgram.SpeakURL = srv.URL + "/v1/speak?model=aura"
	cfg.LLM.APIKey = "sk-good"
	cfg.LLM.BaseURL = srv.URL + "/v1"

	st := NewChecker(cfg, pinger{}).CheckAll(context.Background())
	require.Len(t, st.Checks, 3)
	assert.True(t, st.OK, st.String())
	assert.Equal(t, []string{"deepgram", "llm", "archive"}, []string{st.Checks[0].Name, st.Checks[1].Name, st.Checks[2].Name})
}

func TestCheckAllReportsFailures(t *testing.T) {
	srv := upstream(t)
	var cfg config.Config
	cfg.Deepgram.SpeakURL = srv.URL + "/v1/speak"
	cfg.LLM.APIKey = "sk-bad"
	cfg.LLM.BaseURL = srv.URL + "/v1"

	st := NewChecker(cfg, pinger{err: errors.New("connection refused")}).CheckAll(context.Background())
	assert.False(t, st.OK)
	assert.Equal(t, "DEEPGRAM_API_KEY not set", st.Checks[0].Error)
	assert.Equal(t, "invalid API key (401)", st.Checks[1].Error)
	assert.Contains(t, st.Checks[2].Error, "connection refused")
	assert.True(t, strings.HasPrefix(st.String(), "Health: FAIL"))
}

func TestArchiveOptional(t *testing.T) {
	st := NewChecker(config.Config{}, nil).CheckAll(context.Background())
	assert.Equal(t, "archive not configured", st.Checks[2].Error)
}
