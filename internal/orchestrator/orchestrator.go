// Package orchestrator runs the per-session turn-taking loop and the reply
// pipeline behind it.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voicedesk/agent/internal/llm"
	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/search"
	"voicedesk/agent/internal/stt"
	"voicedesk/agent/internal/tts"
	"voicedesk/agent/internal/vad"
)

// Collaborators.

type Transcriber interface {
	Open(ctx context.Context) (stt.Stream, error)
}

type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Completion, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Emitter queues an outbound message for the client. It must be safe for
// concurrent use.
type Emitter interface {
	Emit(m protocol.Message)
}

type backoffer interface {
	Backoff() time.Duration
}

type Deps struct {
	Transcriber Transcriber
	Generator   Generator
	Searcher    Searcher
	Synthesizer Synthesizer
	Log         *zap.Logger
}

type Options struct {
	EnergyThreshold float64
	SilenceFrames   int
	Grace           time.Duration
	ChunkChars      int
}

func (o Options) withDefaults() Options {
	if o.EnergyThreshold <= 0 {
		o.EnergyThreshold = vad.DefaultThreshold
	}
	if o.SilenceFrames <= 0 {
		o.SilenceFrames = vad.DefaultSilenceFrames
	}
	if o.Grace <= 0 {
		o.Grace = 300 * time.Millisecond
	}
	if o.ChunkChars <= 0 {
		o.ChunkChars = tts.DefaultChunkChars
	}
	return o
}

// Orchestrator holds the shared collaborators and builds one Controller per
// session.
type Orchestrator struct {
	deps     Deps
	opts     Options
	pipeline *Pipeline
	recorder *Recorder
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	opts = opts.withDefaults()
	rec := NewRecorder()
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		recorder: rec,
		pipeline: &Pipeline{
			gen:        deps.Generator,
			search:     deps.Searcher,
			tts:        deps.Synthesizer,
			rec:        rec,
			chunkChars: opts.ChunkChars,
		},
	}
}
