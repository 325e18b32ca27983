// Package clientws serves the duplex client channel: binary PCM frames and
// JSON control messages in, JSON events out.
package clientws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"voicedesk/agent/internal/logging"
	"voicedesk/agent/internal/orchestrator"
	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/session"
)

var errViolation = errors.New("protocol violation")

type Config struct {
	ReadLimit    int64
	InboundFPS   int
	WriteQueue   int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

// Archiver persists a session snapshot when its connection ends.
type Archiver interface {
	Save(ctx context.Context, snap session.Snapshot) error
}

type Server struct {
	cfg      Config
	reg      *session.Registry
	orch     *orchestrator.Orchestrator
	archive  Archiver
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the handler. archive may be nil.
func NewServer(cfg Config, reg *session.Registry, orch *orchestrator.Orchestrator, archive Archiver, log *zap.Logger) *Server {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	if cfg.InboundFPS <= 0 {
		cfg.InboundFPS = 100
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval * 3 / 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Server{
		cfg:     cfg,
		reg:     reg,
		orch:    orch,
		archive: archive,
		log:     log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	gaugeConnections.Inc()
	defer gaugeConnections.Dec()

	sess := s.reg.Create()
	log := logging.Session(s.log, sess.ID)
	log.Info("session started", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := newOutbox(ctx, s.cfg.WriteQueue)
	ctrl := s.orch.NewController(sess, out)
	wr := &writer{
		ws:           conn,
		ctx:          ctx,
		q:            out.q,
		sess:         sess,
		log:          log,
		pingInterval: s.cfg.PingInterval,
		writeTimeout: s.cfg.WriteTimeout,
	}

	out.Emit(protocol.SessionStarted(sess.ID))

	var wg sync.WaitGroup
	writerDone := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctrl.Run(ctx)
		cancel()
	}()
	go func() {
		defer wg.Done()
		defer close(writerDone)
		if err := wr.Run(); err != nil {
			log.Debug("writer stopped", zap.Error(err))
		}
		cancel()
	}()

	err = s.readLoop(ctx, conn, ctrl, out)
	if errors.Is(err, errViolation) {
		// let the writer deliver the error and the close frame
		select {
		case <-writerDone:
		case <-time.After(s.cfg.WriteTimeout):
		}
	}
	cancel()
	wg.Wait()
	_ = conn.Close()

	snap := sess.Snapshot()
	s.reg.Delete(sess.ID)
	log.Info("session ended", zap.Uint64("turns", snap.Turns), zap.NamedError("reason", err))

	if s.archive != nil && len(snap.History) > 0 {
		actx, acancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.archive.Save(actx, snap); err != nil {
			log.Warn("archive failed", zap.Error(err))
		}
		acancel()
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, ctrl *orchestrator.Controller, out *outbox) error {
	conn.SetReadLimit(s.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
	lim := rate.NewLimiter(rate.Limit(s.cfg.InboundFPS), s.cfg.InboundFPS)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))

		switch typ {
		case websocket.BinaryMessage:
			if !lim.Allow() {
				metricInboundDrops.Inc()
				continue
			}
			if err := ctrl.HandleAudio(ctx, data); err != nil {
				return err
			}
		case websocket.TextMessage:
			v, err := protocol.ParseControl(data)
			if err != nil {
				out.Emit(protocol.Error(err.Error()))
				out.closeWith(websocket.ClosePolicyViolation, "protocol violation")
				return errViolation
			}
			if err := ctrl.HandleControl(ctx, v); err != nil {
				return err
			}
		}
	}
}
