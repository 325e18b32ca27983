// Package protocol defines the JSON messages exchanged with voice clients.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Outbound types.
const (
	TypeSessionStarted      = "session_started"
	TypeState               = "state"
	TypeTranscriptUser      = "transcript_user"
	TypeTranscriptAssistant = "transcript_assistant"
	TypeBargeIn             = "barge_in"
	TypeTTSAudio            = "tts_audio_full"
	TypeTTSComplete         = "tts_complete"
	TypeMetrics             = "metrics"
	TypeError               = "error"
)

// Inbound types.
const (
	TypeContextUpdate    = "context_update"
	TypeDebugInput       = "debug_input"
	TypePlaybackComplete = "playback_complete"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is an outbound event. Generation is never serialized; the writer
// uses it to drop audio from a superseded synthesis request.
type Message struct {
	Type       string       `json:"type"`
	SessionID  string       `json:"sessionId,omitempty"`
	Value      string       `json:"value,omitempty"`
	Text       string       `json:"text,omitempty"`
	IsInterim  bool         `json:"isInterim,omitempty"`
	RequestID  uint64       `json:"requestId,omitempty"`
	TurnID     uint64       `json:"turnId,omitempty"`
	Payload    *AudioChunk  `json:"payload,omitempty"`
	Data       *MetricsData `json:"data,omitempty"`
	Generation uint64       `json:"-"`
}

// GenerationBound reports whether m carries audio that must be checked against the
// current synthesis generation before it is written.
func (m Message) GenerationBound() bool {
	return m.Type == TypeTTSAudio || m.Type == TypeTTSComplete
}

type AudioChunk struct {
	Audio     string `json:"audio"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	RequestID uint64 `json:"requestId"`
}

// MetricsData carries per-turn latencies in milliseconds. A nil field means
// the stage did not run.
type MetricsData struct {
	STTLatencyMs *int64 `json:"sttLatencyMs"`
	LLMTTFTMs    *int64 `json:"llmTtftMs"`
	LLMTotalMs   *int64 `json:"llmTotalMs"`
	TTSLatencyMs *int64 `json:"ttsLatencyMs"`
	E2ELatencyMs *int64 `json:"e2eLatencyMs"`
	BargeIn      bool   `json:"bargeIn"`
}

func SessionStarted(id string) Message {
	return Message{Type: TypeSessionStarted, SessionID: id}
}

func State(value string) Message { return Message{Type: TypeState, Value: value} }

func UserTranscript(text string, interim bool) Message {
	return Message{Type: TypeTranscriptUser, Text: text, IsInterim: interim}
}

func AssistantTranscript(text string) Message {
	return Message{Type: TypeTranscriptAssistant, Text: text}
}

func BargeIn() Message { return Message{Type: TypeBargeIn} }

// Audio wraps one synthesized WAV chunk of generation gen.
func Audio(gen uint64, index, total int, wav []byte) Message {
	return Message{
		Type: TypeTTSAudio,
		Payload: &AudioChunk{
			Audio:     base64.StdEncoding.EncodeToString(wav),
			Index:     index,
			Total:     total,
			RequestID: gen,
		},
		Generation: gen,
	}
}

func TTSComplete(gen uint64) Message {
	return Message{Type: TypeTTSComplete, RequestID: gen, Generation: gen}
}

func Metrics(turn uint64, data MetricsData) Message {
	return Message{Type: TypeMetrics, TurnID: turn, Data: &data}
}

func Error(text string) Message { return Message{Type: TypeError, Text: text} }

// Inbound control messages.

type ContextUpdate struct{ Content string }

type DebugInput struct{ Text string }

type PlaybackComplete struct{}

type inbound struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Content string `json:"content"`
	Payload struct {
		Content string `json:"content"`
		Text    string `json:"text"`
	} `json:"payload"`
}

// ParseControl decodes a client text frame into ContextUpdate, DebugInput or
// PlaybackComplete.
func ParseControl(b []byte) (any, error) {
	var in inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch in.Type {
	case TypeContextUpdate:
		content := in.Payload.Content
		if content == "" {
			content = in.Content
		}
		return ContextUpdate{Content: content}, nil
	case TypeDebugInput:
		text := in.Text
		if text == "" {
			text = in.Payload.Text
		}
		return DebugInput{Text: text}, nil
	case TypePlaybackComplete:
		return PlaybackComplete{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
}
