package stt

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap/zaptest"
    "nhooyr.io/websocket"
)

func results(text string, final bool) []byte {
    f := "false"
    if final {
        f = "true"
    }
    return []byte(`{"type":"Results","is_final":` + f + `,"channel":{"alternatives":[{"transcript":"` + text + `"}]}}`)
}

func TestTrackerInterimAndFinal(t *testing.T) {
    var tr transcriptTracker

    ev, ok := tr.handle(results("weather in", false))
    require.True(t, ok)
    assert.Equal(t, Event{Type: Interim, Text: "weather in"}, ev)

    ev, ok = tr.handle(results("weather in pune today", true))
    require.True(t, ok)
    assert.Equal(t, Event{Type: Final, Text: "weather in pune today"}, ev)

    // A final was already emitted, so the boundary adds nothing.
    _, ok = tr.handle([]byte(`{"type":"UtteranceEnd"}`))
    assert.False(t, ok)
}

func TestTrackerUtteranceEndFallsBackToInterim(t *testing.T) {
    var tr transcriptTracker
    tr.handle(results("hello there", false))

    ev, ok := tr.handle([]byte(`{"type":"UtteranceEnd"}`))
    require.True(t, ok)
    assert.Equal(t, Event{Type: Final, Text: "hello there"}, ev)

    _, ok = tr.handle([]byte(`{"type":"UtteranceEnd"}`))
    assert.False(t, ok)
}

func TestTrackerIgnoresNoise(t *testing.T) {
    var tr transcriptTracker
    for _, frame := range []string{
        `not json`,
        `{"type":"Metadata","request_id":"x"}`,
        `{"type":"SpeechStarted"}`,
        `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`,
    } {
        _, ok := tr.handle([]byte(frame))
        assert.False(t, ok, frame)
    }
}

func TestTrackerProviderError(t *testing.T) {
    var tr transcriptTracker
    ev, ok := tr.handle([]byte(`{"type":"Error","message":"bad audio"}`))
    require.True(t, ok)
    assert.Equal(t, Event{Type: Error, Text: "bad audio"}, ev)
}

func TestStreamRoundTrip(t *testing.T) {
    gotAudio := make(chan []byte, 1)
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
        assert.Equal(t, "linear16", r.URL.Query().Get("encoding"))
        c, err := websocket.Accept(w, r, nil)
        if err != nil {
            return
        }
        defer c.Close(websocket.StatusNormalClosure, "")
        typ, data, err := c.Read(r.Context())
        if err != nil || typ != websocket.MessageBinary {
            return
        }
        gotAudio <- data
        _ = c.Write(r.Context(), websocket.MessageText, results("hi", true))
        // Hold the connection until the client goes away.
        for {
            if _, _, err := c.Read(r.Context()); err != nil {
                return
            }
        }
    }))
    defer srv.Close()

    client := NewClient(Config{APIKey: "secret", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, zaptest.NewLogger(t))
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    s, err := client.Open(ctx)
    require.NoError(t, err)
    require.True(t, s.Send([]byte{1, 2, 3, 4}))

    select {
    case b := <-gotAudio:
        assert.Equal(t, []byte{1, 2, 3, 4}, b)
    case <-ctx.Done():
        t.Fatal("server never received audio")
    }
    select {
    case ev := <-s.Events():
        assert.Equal(t, Event{Type: Final, Text: "hi"}, ev)
    case <-ctx.Done():
        t.Fatal("no transcript event")
    }

    s.Close()
    for range s.Events() {
    }
}

func TestCircuitOpensAfterThreeFailures(t *testing.T) {
    now := time.Unix(1000, 0)
    c := NewClient(Config{BaseURL: "ws://127.0.0.1:1"}, zaptest.NewLogger(t))
    c.now = func() time.Time { return now }

    for i := 0; i < 3; i++ {
        c.addFailure()
    }
    assert.True(t, c.circuitOpen())
    assert.Equal(t, 30*time.Second, c.Backoff())

    _, err := c.Open(context.Background())
    assert.ErrorIs(t, err, ErrCircuitOpen)

    now = now.Add(31 * time.Second)
    assert.False(t, c.circuitOpen())
    assert.Equal(t, 4*time.Second, c.Backoff())
}

func TestDisabledStream(t *testing.T) {
    s, err := Disabled{}.Open(context.Background())
    require.NoError(t, err)
    assert.True(t, s.Send([]byte{0, 0}))
    s.Close()
    s.Close()
    _, open := <-s.Events()
    assert.False(t, open)
}
