package orchestrator

import (
	"time"

	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/session"
)

// Recorder converts per-turn timestamps into the client metrics event and the
// matching Prometheus histograms.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

// Summarize computes latencies in milliseconds. A latency is nil when either
// end of its span was not reached.
func (r *Recorder) Summarize(m session.TurnMetrics) protocol.MetricsData {
	return protocol.MetricsData{
		STTLatencyMs: span(m.TurnStart, m.TranscriptDone),
		LLMTTFTMs:    span(m.ReplyStart, m.FirstToken),
		LLMTotalMs:   span(m.TranscriptDone, m.GenerationDone),
		TTSLatencyMs: span(m.GenerationDone, m.FirstAudio),
		E2ELatencyMs: span(m.TurnStart, m.FirstAudio),
		BargeIn:      m.BargeIn,
	}
}

// Record summarizes m, observes the histograms and returns the metrics event
// for turn seq.
func (r *Recorder) Record(seq uint64, m session.TurnMetrics) protocol.Message {
	data := r.Summarize(m)
	observe(metricTurnSTTMS, data.STTLatencyMs)
	observe(metricTurnTTFTMS, data.LLMTTFTMs)
	observe(metricTurnLLMMS, data.LLMTotalMs)
	observe(metricTurnTTSMS, data.TTSLatencyMs)
	observe(metricTurnE2EMS, data.E2ELatencyMs)
	return protocol.Metrics(seq, data)
}

func span(from, to time.Time) *int64 {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	ms := to.Sub(from).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ms
}

type observer interface{ Observe(float64) }

func observe(h observer, v *int64) {
	if v != nil {
		h.Observe(float64(*v))
	}
}
