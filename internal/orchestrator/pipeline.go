package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"voicedesk/agent/internal/llm"
	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/search"
	"voicedesk/agent/internal/session"
	"voicedesk/agent/internal/tts"
)

// errStale stops a pipeline whose generation was superseded. It is never
// reported to the client.
var errStale = errors.New("stale generation")

// turn is everything one pipeline run needs from its session.
type turn struct {
	sess  *session.Session
	out   Emitter
	log   *zap.Logger
	gen   uint64
	seq   uint64
	text  string
	speak func(ctx context.Context) bool
}

func (t turn) current() bool { return t.sess.TTS.IsCurrent(t.gen) }

// Pipeline turns a finalized utterance into a spoken reply: decision, optional
// search, reply generation, then chunked synthesis.
type Pipeline struct {
	gen        Generator
	search     Searcher
	tts        Synthesizer
	rec        *Recorder
	chunkChars int
}

type decision struct {
	Search bool   `json:"search"`
	Query  string `json:"query"`
}

// parseDecision reads the first JSON object in s. Anything unparseable means
// no search.
func parseDecision(s string) decision {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return decision{}
	}
	var d decision
	if err := json.Unmarshal([]byte(s[start:end+1]), &d); err != nil {
		return decision{}
	}
	d.Query = strings.TrimSpace(d.Query)
	return d
}

// Run executes one turn. It reports whether the metrics event was already
// emitted. Every externally visible step is guarded by the turn generation.
func (p *Pipeline) Run(ctx context.Context, t turn) (bool, error) {
	if !t.current() {
		return false, errStale
	}
	t.sess.AppendHistory(session.Message{Role: session.RoleUser, Content: t.text})
	t.out.Emit(protocol.UserTranscript(t.text, false))

	// Decision
	dres, err := p.gen.Generate(ctx, llm.Request{
		Messages:  compose(decisionPrompt, t.sess, ""),
		JSON:      true,
		MaxTokens: 100,
	})
	if err != nil {
		return false, fmt.Errorf("decision: %w", err)
	}
	if !t.current() {
		return false, errStale
	}
	d := parseDecision(dres.Text)
	if d.Query == "" {
		d.Query = t.text
	}

	// Search
	grounding := ""
	if d.Search && p.search != nil {
		if search.ShouldSearch(d.Query) {
			t.log.Info("searching", zap.String("query", d.Query))
			results, err := p.search.Search(ctx, d.Query)
			if err != nil {
				return false, fmt.Errorf("search: %w", err)
			}
			if !t.current() {
				return false, errStale
			}
			if len(results) > 0 {
				grounding = search.Grounding(results)
			}
			metricSearches.WithLabelValues("ran").Inc()
		} else {
			metricSearches.WithLabelValues("gated").Inc()
		}
	}

	// Final response
	replyStart := time.Now()
	t.sess.UpdateMetrics(func(m *session.TurnMetrics) { m.ReplyStart = replyStart })
	rres, err := p.gen.Generate(ctx, llm.Request{Messages: compose(mainPrompt, t.sess, grounding)})
	if err != nil {
		return false, fmt.Errorf("reply: %w", err)
	}
	if !t.current() {
		return false, errStale
	}
	t.sess.UpdateMetrics(func(m *session.TurnMetrics) {
		m.FirstToken = rres.FirstToken
		m.GenerationDone = rres.Finished
	})
	reply := strings.TrimSpace(rres.Text)
	if reply == "" {
		return false, errors.New("reply: empty completion")
	}
	t.sess.AppendHistory(session.Message{Role: session.RoleAssistant, Content: reply})
	t.out.Emit(protocol.AssistantTranscript(reply))

	// Synthesis
	chunks := tts.SplitSentences(tts.CleanForSpeech(reply), p.chunkChars)
	metricsSent := false
	for i, chunk := range chunks {
		if !t.current() {
			return metricsSent, errStale
		}
		wav, err := p.tts.Synthesize(ctx, chunk)
		if err != nil {
			return metricsSent, fmt.Errorf("synthesize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if !t.current() {
			return metricsSent, errStale
		}
		if i == 0 {
			if !t.speak(ctx) {
				return false, errStale
			}
			now := time.Now()
			t.sess.UpdateMetrics(func(m *session.TurnMetrics) { m.FirstAudio = now })
		}
		t.out.Emit(protocol.Audio(t.gen, i, len(chunks), wav))
		if i == 0 {
			t.out.Emit(p.rec.Record(t.seq, t.sess.Metrics()))
			metricsSent = true
		}
	}
	if !t.current() {
		return metricsSent, errStale
	}
	if len(chunks) > 0 {
		t.out.Emit(protocol.TTSComplete(t.gen))
	}
	return metricsSent, nil
}

// compose builds the request: system prompt, dynamic context, history and
// optional ephemeral grounding.
func compose(prompt string, sess *session.Session, grounding string) []session.Message {
	msgs := []session.Message{{Role: session.RoleSystem, Content: prompt}}
	if lines, _ := sess.Context(); len(lines) > 0 {
		msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: strings.Join(lines, "\n")})
	}
	msgs = append(msgs, sess.History()...)
	if grounding != "" {
		msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: grounding})
	}
	return msgs
}
