package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voicedesk/agent/internal/floor"
	"voicedesk/agent/internal/session"
)

// Sweeper force-ends turns for sessions that are Listening but have not sent
// audio for longer than the silence timeout.
type Sweeper struct {
	reg      *session.Registry
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

func NewSweeper(reg *session.Registry, interval, timeout time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &Sweeper{reg: reg, interval: interval, timeout: timeout, log: log.Named("sweeper")}
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Sweep(now)
		}
	}
}

// Sweep posts a heartbeat timeout to every silent Listening session and
// returns how many were notified. The session loop re-checks the state.
func (s *Sweeper) Sweep(now time.Time) int {
	n := 0
	for _, sess := range s.reg.List() {
		if sess.State() != floor.Listening || sess.SilentFor(now) <= s.timeout {
			continue
		}
		if sess.TryPost(heartbeatTimeout{}) {
			n++
			s.log.Debug("silence timeout", zap.String("session_id", sess.ID), zap.Duration("silent", sess.SilentFor(now)))
		}
	}
	return n
}
