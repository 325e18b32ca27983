package stt

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"
    "nhooyr.io/websocket"
)

var ErrCircuitOpen = errors.New("stt: circuit open")

type Config struct {
    APIKey         string
    BaseURL        string
    Model          string
    Language       string
    EndpointingMs  int
    UtteranceEndMs int
    // MaxAge rotates long-lived sockets; the caller reopens.
    MaxAge time.Duration
}

// Client opens Deepgram live transcription streams. Connection failures are
// tracked across streams: three failures within a minute open the circuit
// for 30s.
type Client struct {
    cfg Config
    log *zap.Logger

    mu      sync.Mutex
    fails   []time.Time
    circuit time.Time
    now     func() time.Time
}

func NewClient(cfg Config, log *zap.Logger) *Client {
    return &Client{cfg: cfg, log: log.Named("stt"), now: time.Now}
}

func (c *Client) url() string {
    q := url.Values{}
    q.Set("model", orDefault(c.cfg.Model, "nova-2"))
    q.Set("language", orDefault(c.cfg.Language, "en-US"))
    q.Set("smart_format", "true")
    q.Set("endpointing", fmt.Sprintf("%d", nzd(c.cfg.EndpointingMs, 300)))
    q.Set("interim_results", "true")
    q.Set("utterance_end_ms", fmt.Sprintf("%d", nzd(c.cfg.UtteranceEndMs, 1000)))
    q.Set("vad_events", "true")
    q.Set("encoding", "linear16")
    q.Set("sample_rate", "16000")
    q.Set("channels", "1")
    return orDefault(c.cfg.BaseURL, "wss://api.deepgram.com/v1/listen") + "?" + q.Encode()
}

// Open dials a new stream. The stream lives until Close, ctx is done, or the
// provider drops the connection.
func (c *Client) Open(ctx context.Context) (Stream, error) {
    if c.circuitOpen() {
        return nil, ErrCircuitOpen
    }
    hdr := make(http.Header)
    if c.cfg.APIKey != "" {
        hdr.Set("Authorization", "Token "+c.cfg.APIKey)
    }
    dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
    defer cancel()
    start := time.Now()
    ws, _, err := websocket.Dial(dctx, c.url(), &websocket.DialOptions{HTTPHeader: hdr})
    if err != nil {
        c.addFailure()
        c.log.Warn("connect failed", zap.Error(err))
        return nil, fmt.Errorf("stt dial: %w", err)
    }
    c.resetFailures()
    metricConnectMS.Observe(float64(time.Since(start).Milliseconds()))
    metricConnects.Inc()
    c.log.Debug("connected", zap.Duration("took", time.Since(start)))

    sctx, scancel := context.WithCancel(ctx)
    s := &deepgramStream{
        ctx:    sctx,
        cancel: scancel,
        ws:     ws,
        log:    c.log,
        sendQ:  make(chan []byte, 8),
        events: make(chan Event, 32),
        maxAge: c.cfg.MaxAge,
    }
    gaugeStreams.Inc()
    go s.run()
    return s, nil
}

// Backoff is the delay before the next Open attempt.
func (c *Client) Backoff() time.Duration {
    c.mu.Lock()
    defer c.mu.Unlock()
    if wait := c.circuit.Sub(c.now()); wait > 0 {
        return wait
    }
    n := len(c.fails)
    if n <= 0 {
        return time.Second
    }
    if n > 5 {
        n = 5
    }
    base := time.Duration(1<<uint(n-1)) * time.Second
    if base > 30*time.Second {
        base = 30 * time.Second
    }
    return base
}

func (c *Client) circuitOpen() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.now().Before(c.circuit)
}

func (c *Client) addFailure() {
    c.mu.Lock()
    defer c.mu.Unlock()
    now := c.now()
    c.fails = append(c.fails, now)
    // prune older than 60s
    cutoff := now.Add(-60 * time.Second)
    j := 0
    for _, t := range c.fails {
        if t.After(cutoff) {
            c.fails[j] = t
            j++
        }
    }
    c.fails = c.fails[:j]
    if len(c.fails) >= 3 {
        c.circuit = now.Add(30 * time.Second)
        metricCircuitOpens.Inc()
    }
}

func (c *Client) resetFailures() {
    c.mu.Lock()
    c.fails = nil
    c.mu.Unlock()
}

type deepgramStream struct {
    ctx    context.Context
    cancel context.CancelFunc
    ws     *websocket.Conn
    log    *zap.Logger

    sendQ  chan []byte
    events chan Event
    maxAge time.Duration

    tracker transcriptTracker
}

func (d *deepgramStream) Send(pcm []byte) bool {
    select {
    case <-d.ctx.Done():
        return false
    default:
    }
    select {
    case d.sendQ <- pcm:
        metricFrames.Inc()
        metricAudioBytes.Add(float64(len(pcm)))
        return true
    default:
        metricDrops.Inc()
        return false
    }
}

func (d *deepgramStream) Events() <-chan Event { return d.events }

// Close asks the provider to flush and then tears the socket down.
func (d *deepgramStream) Close() {
    if d.ctx.Err() == nil {
        wctx, cancel := context.WithTimeout(context.Background(), time.Second)
        _ = d.ws.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
        cancel()
    }
    d.cancel()
}

func (d *deepgramStream) run() {
    defer gaugeStreams.Dec()
    defer close(d.events)
    defer d.cancel()

    writerDone := make(chan struct{})
    go d.writeLoop(writerDone)

    err := d.readLoop()
    d.cancel()
    <-writerDone
    if err != nil && !errors.Is(err, context.Canceled) {
        d.log.Warn("stream ended", zap.Error(err))
        d.emit(Event{Type: Error, Text: err.Error()})
    }
    _ = d.ws.Close(websocket.StatusNormalClosure, "bye")
}

func (d *deepgramStream) writeLoop(done chan<- struct{}) {
    defer close(done)
    keepAlive := time.NewTicker(8 * time.Second)
    defer keepAlive.Stop()
    for {
        select {
        case <-d.ctx.Done():
            return
        case <-keepAlive.C:
            if err := d.write(websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
                return
            }
        case b := <-d.sendQ:
            if len(b) == 0 {
                continue
            }
            if err := d.write(websocket.MessageBinary, b); err != nil {
                d.log.Warn("write failed", zap.Error(err))
                d.cancel()
                return
            }
        }
    }
}

func (d *deepgramStream) write(typ websocket.MessageType, b []byte) error {
    wctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
    defer cancel()
    return d.ws.Write(wctx, typ, b)
}

func (d *deepgramStream) readLoop() error {
    var rotate <-chan time.Time
    if d.maxAge > 0 {
        t := time.NewTimer(d.maxAge)
        defer t.Stop()
        rotate = t.C
    }
    for {
        select {
        case <-rotate:
            return fmt.Errorf("rotate")
        default:
        }
        _, data, err := d.ws.Read(d.ctx)
        if err != nil {
            if d.ctx.Err() != nil {
                return context.Canceled
            }
            return err
        }
        if len(data) == 0 {
            continue
        }
        if ev, ok := d.tracker.handle(data); ok {
            d.emit(ev)
        }
    }
}

func (d *deepgramStream) emit(e Event) {
    select {
    case d.events <- e:
    default:
        metricEventDrops.Inc()
    }
}

// transcriptTracker turns provider frames into events. It remembers the last
// interim text so an UtteranceEnd without a final still yields one.
type transcriptTracker struct {
    pendingInterim string
}

func (t *transcriptTracker) handle(data []byte) (Event, bool) {
    var m map[string]any
    if err := json.Unmarshal(data, &m); err != nil {
        return Event{}, false
    }
    typ := toString(m["type"]) // Results, UtteranceEnd, SpeechStarted, Metadata, Error
    switch {
    case strings.EqualFold(typ, "Error") || m["error"] != nil:
        msg := toString(m["error"])
        if msg == "" {
            msg = toString(m["message"])
        }
        if msg == "" {
            msg = "provider_error"
        }
        return Event{Type: Error, Text: msg}, true
    case strings.EqualFold(typ, "Metadata"):
        return Event{}, false
    case strings.EqualFold(typ, "SpeechStarted"):
        metricUtteranceEvents.WithLabelValues("speech_started").Inc()
        return Event{}, false
    case strings.EqualFold(typ, "UtteranceEnd"):
        metricUtteranceEvents.WithLabelValues("utterance_end").Inc()
        text := t.pendingInterim
        t.pendingInterim = ""
        if text == "" {
            return Event{}, false
        }
        metricFinalEmitted.WithLabelValues("interim_fallback").Inc()
        return Event{Type: Final, Text: text}, true
    case strings.EqualFold(typ, "Results") || m["channel"] != nil:
        text := transcriptOf(m)
        isFinal := toBool(m["is_final"]) || toBool(m["speech_final"])
        if isFinal {
            t.pendingInterim = ""
            if text == "" {
                metricEmptyFinalSkipped.Inc()
                return Event{}, false
            }
            metricFinalEmitted.WithLabelValues("provider").Inc()
            return Event{Type: Final, Text: text}, true
        }
        if text == "" {
            return Event{}, false
        }
        t.pendingInterim = text
        return Event{Type: Interim, Text: text}, true
    }
    return Event{}, false
}

// transcriptOf reads channel.alternatives[0].transcript.
func transcriptOf(m map[string]any) string {
    channel, _ := m["channel"].(map[string]any)
    if channel == nil {
        return ""
    }
    alts, _ := channel["alternatives"].([]any)
    if len(alts) == 0 {
        return ""
    }
    a0, _ := alts[0].(map[string]any)
    return strings.TrimSpace(toString(a0["transcript"]))
}

func orDefault(s, def string) string { if s == "" { return def }; return s }
func nzd(v, def int) int { if v == 0 { return def }; return v }
func toString(v any) string { if s, ok := v.(string); ok { return s }; return "" }
func toBool(v any) bool {
    switch t := v.(type) {
    case bool:
        return t
    case string:
        return strings.EqualFold(t, "true")
    default:
        return false
    }
}
