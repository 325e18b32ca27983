package clientws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/session"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// frame is one queued outbound item. A closing frame ends the connection
// after everything queued before it was written.
type frame struct {
	msg    protocol.Message
	close  bool
	code   int
	reason string
}

// outbox is the session's Emitter. Messages are written in emit order by a
// single writer goroutine.
type outbox struct {
	q    chan frame
	done <-chan struct{}
}

func newOutbox(ctx context.Context, size int) *outbox {
	if size <= 0 {
		size = 256
	}
	return &outbox{q: make(chan frame, size), done: ctx.Done()}
}

func (o *outbox) Emit(m protocol.Message) {
	select {
	case o.q <- frame{msg: m}:
	case <-o.done:
	}
}

func (o *outbox) closeWith(code int, reason string) {
	select {
	case o.q <- frame{close: true, code: code, reason: reason}:
	case <-o.done:
	}
}

type writer struct {
	ws           wsWriter
	ctx          context.Context
	q            <-chan frame
	sess         *session.Session
	log          *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
}

// Run writes queued frames until ctx ends, a closing frame is written, or a
// write fails. Audio from a superseded generation is dropped here, right
// before it would reach the client.
func (w *writer) Run() error {
	ping := time.NewTicker(w.pingInterval)
	defer ping.Stop()
	defer w.ws.Close()

	for {
		select {
		case <-w.ctx.Done():
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(w.writeTimeout))
			return nil
		case <-ping.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(w.writeTimeout)); err != nil {
				return err
			}
		case f := <-w.q:
			if f.close {
				metricViolations.Inc()
				_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(f.code, f.reason), time.Now().Add(w.writeTimeout))
				return nil
			}
			if f.msg.GenerationBound() && !w.sess.TTS.IsCurrent(f.msg.Generation) {
				metricStaleAudio.Inc()
				continue
			}
			if err := w.write(f.msg); err != nil {
				return err
			}
		}
	}
}

func (w *writer) write(m protocol.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		w.log.Error("encode outbound", zap.String("type", m.Type), zap.Error(err))
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	if err := w.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return err
	}
	metricOutbound.WithLabelValues(m.Type).Inc()
	return nil
}
