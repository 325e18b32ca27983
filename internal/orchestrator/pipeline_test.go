package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"voicedesk/agent/internal/floor"
	"voicedesk/agent/internal/session"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want decision
	}{
		{"plain", `{"search": true, "query": "weather in pune today"}`, decision{Search: true, Query: "weather in pune today"}},
		{"wrapped in prose", "Here you go:\n{\"search\": true, \"query\": \"  latest openai news \"}\nThanks", decision{Search: true, Query: "latest openai news"}},
		{"no search", `{"search": false, "query": ""}`, decision{}},
		{"no braces", "search: yes", decision{}},
		{"broken json", `{"search": tru`, decision{}},
		{"reversed braces", `} nope {`, decision{}},
		{"wrong types", `{"search": "yes", "query": 3}`, decision{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDecision(tt.in))
		})
	}
}

func TestComposeOrder(t *testing.T) {
	reg := session.NewRegistry(4)
	sess := reg.Create()
	sess.ReplaceContext("Caller is on the premium plan")
	sess.AppendHistory(session.Message{Role: session.RoleUser, Content: "hi"})
	sess.AppendHistory(session.Message{Role: session.RoleAssistant, Content: "hello"})

	msgs := compose("prompt", sess, "grounding")
	require.Len(t, msgs, 5)
	assert.Equal(t, session.Message{Role: session.RoleSystem, Content: "prompt"}, msgs[0])
	assert.Equal(t, session.Message{Role: session.RoleSystem, Content: "Caller is on the premium plan"}, msgs[1])
	assert.Equal(t, "hi", msgs[2].Content)
	assert.Equal(t, "hello", msgs[3].Content)
	assert.Equal(t, session.Message{Role: session.RoleSystem, Content: "grounding"}, msgs[4])

	// grounding is never persisted
	assert.Len(t, sess.History(), 2)

	bare := compose("prompt", reg.Create(), "")
	assert.Len(t, bare, 1)
}

func TestRecorderSummarize(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

	data := NewRecorder().Summarize(session.TurnMetrics{
		TurnStart:      at(0),
		TranscriptDone: at(300),
		ReplyStart:     at(700),
		FirstToken:     at(900),
		GenerationDone: at(1500),
		FirstAudio:     at(1800),
		BargeIn:        true,
	})
	require.NotNil(t, data.STTLatencyMs)
	assert.EqualValues(t, 300, *data.STTLatencyMs)
	assert.EqualValues(t, 200, *data.LLMTTFTMs)
	assert.EqualValues(t, 1200, *data.LLMTotalMs)
	assert.EqualValues(t, 300, *data.TTSLatencyMs)
	assert.EqualValues(t, 1800, *data.E2ELatencyMs)
	assert.True(t, data.BargeIn)
}

func TestRecorderMissingStages(t *testing.T) {
	now := time.Now()
	msg := NewRecorder().Record(3, session.TurnMetrics{TurnStart: now, TranscriptDone: now.Add(time.Second)})

	require.NotNil(t, msg.Data)
	assert.Equal(t, uint64(3), msg.TurnID)
	assert.EqualValues(t, 1000, *msg.Data.STTLatencyMs)
	assert.Nil(t, msg.Data.LLMTTFTMs)
	assert.Nil(t, msg.Data.TTSLatencyMs)
	assert.Nil(t, msg.Data.E2ELatencyMs)
}

func TestSweeperOnlyTouchesSilentListeners(t *testing.T) {
	reg := session.NewRegistry(4)
	now := time.Now()

	silent := reg.Create()
	silent.SetState(floor.Listening)
	silent.Touch(now)

	fresh := reg.Create()
	fresh.SetState(floor.Listening)
	fresh.Touch(now.Add(time.Second))

	idle := reg.Create()
	idle.Touch(now)

	sw := NewSweeper(reg, time.Second, 500*time.Millisecond, zaptest.NewLogger(t))
	assert.Equal(t, 1, sw.Sweep(now.Add(time.Second)))

	select {
	case ev := <-silent.Mailbox():
		assert.IsType(t, heartbeatTimeout{}, ev)
	default:
		t.Fatal("silent session was not notified")
	}
	assert.Empty(t, fresh.Mailbox())
	assert.Empty(t, idle.Mailbox())
}
