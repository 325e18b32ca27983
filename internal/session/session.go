// Package session holds per-connection conversation state and the registry of
// live sessions.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voicedesk/agent/internal/cancel"
	"voicedesk/agent/internal/floor"
)

const (
	DefaultHistoryCap = 12
	mailboxSize       = 64
)

var ErrClosed = errors.New("session closed")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnMetrics are the timestamps of the turn in flight. Zero values mean the
// stage has not happened.
type TurnMetrics struct {
	TurnStart      time.Time
	TranscriptDone time.Time
	ReplyStart     time.Time
	FirstToken     time.Time
	GenerationDone time.Time
	FirstAudio     time.Time
	BargeIn        bool
}

type Session struct {
	ID        string
	CreatedAt time.Time

	// STT is advanced whenever the upstream transcription stream is replaced.
	STT cancel.Token
	// TTS is advanced on every speech start; audio from older generations is dropped.
	TTS cancel.Token

	state     atomic.Int32
	lastAudio atomic.Int64 // offset from CreatedAt, keeps the monotonic clock

	mu             sync.Mutex
	finals         []string
	interim        string
	history        []Message
	historyCap     int
	context        []string
	contextVersion uint64
	turnSeq        uint64
	metrics        TurnMetrics
	pendingBargeIn bool

	mailbox   chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, historyCap int, now time.Time) *Session {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Session{
		ID:         id,
		CreatedAt:  now,
		historyCap: historyCap,
		mailbox:    make(chan any, mailboxSize),
		done:       make(chan struct{}),
	}
}

func (s *Session) State() floor.State { return floor.State(s.state.Load()) }

// SetState stores st and returns the previous state.
func (s *Session) SetState(st floor.State) floor.State {
	return floor.State(s.state.Swap(int32(st)))
}

// Touch records inbound audio at now.
func (s *Session) Touch(now time.Time) {
	s.lastAudio.Store(int64(now.Sub(s.CreatedAt)))
}

func (s *Session) LastAudio() time.Time {
	return s.CreatedAt.Add(time.Duration(s.lastAudio.Load()))
}

func (s *Session) SilentFor(now time.Time) time.Duration {
	return now.Sub(s.LastAudio())
}

// Transcript buffers

func (s *Session) AppendFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	s.finals = append(s.finals, text)
	s.interim = ""
	s.mu.Unlock()
}

func (s *Session) SetInterim(text string) {
	s.mu.Lock()
	s.interim = strings.TrimSpace(text)
	s.mu.Unlock()
}

// Transcript returns the accumulated final transcript, or the interim text
// when nothing was finalized.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

func (s *Session) transcriptLocked() string {
	if len(s.finals) > 0 {
		return strings.Join(s.finals, " ")
	}
	return s.interim
}

// TakeTranscript returns the transcript and clears both buffers in one step.
func (s *Session) TakeTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.transcriptLocked()
	s.finals = nil
	s.interim = ""
	return t
}

func (s *Session) ClearTranscripts() {
	s.mu.Lock()
	s.finals = nil
	s.interim = ""
	s.mu.Unlock()
}

// History

// AppendHistory adds m, evicting the oldest entries past the cap.
func (s *Session) AppendHistory(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, m)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = append([]Message(nil), s.history[over:]...)
	}
}

func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Dynamic context

// ReplaceContext swaps the whole instruction set for the non-empty lines of
// content and returns the new version.
func (s *Session) ReplaceContext(content string) uint64 {
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = lines
	s.contextVersion++
	return s.contextVersion
}

func (s *Session) Context() ([]string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.context))
	copy(out, s.context)
	return out, s.contextVersion
}

// Turn bookkeeping

// MarkBargeIn flags the next turn as having interrupted the previous one.
func (s *Session) MarkBargeIn() {
	s.mu.Lock()
	s.pendingBargeIn = true
	s.mu.Unlock()
}

// BeginTurn starts a new turn at now and returns its sequence number.
func (s *Session) BeginTurn(now time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnSeq++
	s.metrics = TurnMetrics{TurnStart: now, BargeIn: s.pendingBargeIn}
	s.pendingBargeIn = false
	return s.turnSeq
}

func (s *Session) TurnSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnSeq
}

func (s *Session) UpdateMetrics(fn func(*TurnMetrics)) {
	s.mu.Lock()
	fn(&s.metrics)
	s.mu.Unlock()
}

func (s *Session) Metrics() TurnMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Mailbox

func (s *Session) Mailbox() <-chan any { return s.mailbox }

func (s *Session) Done() <-chan struct{} { return s.done }

// Post delivers ev to the session loop, blocking until it is queued, the
// session closes, or ctx ends.
func (s *Session) Post(ctx context.Context, ev any) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.mailbox <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost queues ev without blocking and reports whether it was accepted.
func (s *Session) TryPost(ev any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Close marks the session done and voids all outstanding generations.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.STT.Advance()
		s.TTS.Advance()
		close(s.done)
	})
}

// Snapshot is a read-only view used by the admin API and the archive.
type Snapshot struct {
	ID             string    `json:"sessionId"`
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAudio      time.Time `json:"lastAudio"`
	Turns          uint64    `json:"turns"`
	ContextVersion uint64    `json:"contextVersion"`
	History        []Message `json:"history"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	hist := make([]Message, len(s.history))
	copy(hist, s.history)
	snap := Snapshot{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt.UTC(),
		Turns:          s.turnSeq,
		ContextVersion: s.contextVersion,
		History:        hist,
	}
	s.mu.Unlock()
	snap.State = s.State().String()
	snap.LastAudio = s.LastAudio().UTC()
	return snap
}
