package orchestrator

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voicedesk/agent/internal/llm"
	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/search"
	"voicedesk/agent/internal/session"
	"voicedesk/agent/internal/stt"
)

type outbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (o *outbox) Emit(m protocol.Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, m)
	o.mu.Unlock()
}

func (o *outbox) all() []protocol.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]protocol.Message(nil), o.msgs...)
}

func (o *outbox) types() []string {
	var out []string
	for _, m := range o.all() {
		out = append(out, m.Type)
	}
	return out
}

func (o *outbox) count(typ string) int {
	n := 0
	for _, m := range o.all() {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (o *outbox) states() []string {
	var out []string
	for _, m := range o.all() {
		if m.Type == protocol.TypeState {
			out = append(out, m.Value)
		}
	}
	return out
}

func (o *outbox) countState(v string) int {
	n := 0
	for _, s := range o.states() {
		if s == v {
			n++
		}
	}
	return n
}

func (o *outbox) lastState() string {
	s := o.states()
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

type fakeStream struct {
	events chan stt.Event
	sent   atomic.Int64
	once   sync.Once
}

func newFakeStream() *fakeStream { return &fakeStream{events: make(chan stt.Event, 16)} }

func (s *fakeStream) Send([]byte) bool {
	s.sent.Add(1)
	return true
}

func (s *fakeStream) Events() <-chan stt.Event { return s.events }

func (s *fakeStream) Close() { s.once.Do(func() { close(s.events) }) }

type fakeTranscriber struct {
	mu      sync.Mutex
	streams []*fakeStream
	opened  chan *fakeStream
}

func newFakeTranscriber() *fakeTranscriber {
	return &fakeTranscriber{opened: make(chan *fakeStream, 8)}
}

func (f *fakeTranscriber) Open(ctx context.Context) (stt.Stream, error) {
	s := newFakeStream()
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	f.opened <- s
	return s, nil
}

func (f *fakeTranscriber) Backoff() time.Duration { return 5 * time.Millisecond }

func (f *fakeTranscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

type fakeGenerator struct {
	mu        sync.Mutex
	decide    func(req llm.Request) (string, error)
	reply     func(req llm.Request) (string, error)
	decisions int
	replies   int
	lastReply llm.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	f.mu.Lock()
	var fn func(llm.Request) (string, error)
	if req.JSON {
		f.decisions++
		fn = f.decide
	} else {
		f.replies++
		f.lastReply = req
		fn = f.reply
	}
	f.mu.Unlock()
	start := time.Now()
	text, err := fn(req)
	if err != nil {
		return llm.Completion{Started: start}, err
	}
	now := time.Now()
	return llm.Completion{Text: text, Started: start, FirstToken: now, Finished: now}, nil
}

func (f *fakeGenerator) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decisions, f.replies
}

func (f *fakeGenerator) replyRequest() llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReply
}

func noSearch(llm.Request) (string, error) { return `{"search":false,"query":""}`, nil }

func say(text string) func(llm.Request) (string, error) {
	return func(llm.Request) (string, error) { return text, nil }
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, q string) ([]search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return search.Static{}.Search(ctx, q)
}

func (f *fakeSearcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string

	started      chan string
	release      chan struct{}
	ignoreCancel bool
	canceled     atomic.Bool
	returned     atomic.Bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	defer f.returned.Store(true)
	if f.started != nil {
		select {
		case f.started <- text:
		default:
		}
	}
	if f.release != nil {
		if f.ignoreCancel {
			<-f.release
		} else {
			select {
			case <-f.release:
			case <-ctx.Done():
				f.canceled.Store(true)
				return nil, ctx.Err()
			}
		}
	}
	return []byte("wav:" + text), nil
}

func (f *fakeSynth) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type harness struct {
	t     *testing.T
	reg   *session.Registry
	sess  *session.Session
	out   *outbox
	ctrl  *Controller
	tr    *fakeTranscriber
	gen   *fakeGenerator
	srch  *fakeSearcher
	synth *fakeSynth
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}
}

func newHarness(t *testing.T, mod func(h *harness)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		out:   &outbox{},
		tr:    newFakeTranscriber(),
		gen:   &fakeGenerator{decide: noSearch, reply: say("Hello there.")},
		srch:  &fakeSearcher{},
		synth: &fakeSynth{},
	}
	if mod != nil {
		mod(h)
	}
	o := New(Deps{
		Transcriber: h.tr,
		Generator:   h.gen,
		Searcher:    h.srch,
		Synthesizer: h.synth,
		Log:         zap.NewNop(),
	}, Options{Grace: 20 * time.Millisecond})
	h.reg = session.NewRegistry(session.DefaultHistoryCap)
	h.sess = h.reg.Create()
	h.ctrl = o.NewController(h.sess, h.out)

	h.ctx, h.stop = context.WithCancel(context.Background())
	h.done = make(chan struct{})
	go func() {
		h.ctrl.Run(h.ctx)
		close(h.done)
	}()
	t.Cleanup(h.shutdown)

	select {
	case <-h.tr.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("transcriber stream never opened")
	}
	return h
}

func (h *harness) shutdown() {
	h.stop()
	<-h.done
}

func (h *harness) stream() *fakeStream {
	h.tr.mu.Lock()
	defer h.tr.mu.Unlock()
	return h.tr.streams[len(h.tr.streams)-1]
}

func (h *harness) debug(text string) {
	require.NoError(h.t, h.ctrl.HandleControl(h.ctx, protocol.DebugInput{Text: text}))
}

func (h *harness) control(v any) {
	require.NoError(h.t, h.ctrl.HandleControl(h.ctx, v))
}

func (h *harness) audio(frames ...[]byte) {
	for _, f := range frames {
		require.NoError(h.t, h.ctrl.HandleAudio(h.ctx, f))
	}
}

func (h *harness) eventually(cond func() bool, msg string) {
	h.t.Helper()
	require.Eventually(h.t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// loudFrame is 20ms of a square wave well above the energy threshold.
func loudFrame() []byte {
	b := make([]byte, 640)
	for i := 0; i < 320; i++ {
		v := int16(16000)
		if i%2 == 1 {
			v = -16000
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func quietFrame() []byte { return make([]byte, 640) }

func quietFrames(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = quietFrame()
	}
	return out
}
