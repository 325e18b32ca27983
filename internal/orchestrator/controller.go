package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"voicedesk/agent/internal/floor"
	"voicedesk/agent/internal/logging"
	"voicedesk/agent/internal/protocol"
	"voicedesk/agent/internal/session"
	"voicedesk/agent/internal/stt"
	"voicedesk/agent/internal/vad"
)

// Mailbox events. Only the session loop reads them.

type audioFrame struct{ pcm []byte }

type controlMsg struct{ v any }

type heartbeatTimeout struct{}

type graceElapsed struct{ seq uint64 }

type sttOpened struct {
	gen    uint64
	stream stt.Stream
}

type sttClosed struct {
	gen uint64
	err error
}

type sttReopen struct{ gen uint64 }

type transcriptMsg struct {
	gen uint64
	ev  stt.Event
}

type speakRequest struct {
	gen   uint64
	reply chan bool
}

type pipelineDone struct {
	gen         uint64
	seq         uint64
	metricsSent bool
	err         error
}

// Controller drives one session. All state transitions happen on the
// goroutine running Run.
type Controller struct {
	o    *Orchestrator
	sess *session.Session
	out  Emitter
	log  *zap.Logger
	vad  *vad.Detector

	ctx context.Context

	stream         stt.Stream
	cancelPipeline context.CancelFunc
}

func (o *Orchestrator) NewController(sess *session.Session, out Emitter) *Controller {
	return &Controller{
		o:    o,
		sess: sess,
		out:  out,
		log:  logging.Session(o.deps.Log.Named("orch"), sess.ID),
		vad:  vad.New(o.opts.EnergyThreshold, o.opts.SilenceFrames),
	}
}

// HandleAudio feeds one inbound PCM16 frame to the session.
func (c *Controller) HandleAudio(ctx context.Context, pcm []byte) error {
	c.sess.Touch(time.Now())
	return c.sess.Post(ctx, audioFrame{pcm: pcm})
}

// HandleControl feeds a parsed client control message to the session.
func (c *Controller) HandleControl(ctx context.Context, v any) error {
	return c.sess.Post(ctx, controlMsg{v: v})
}

// Run processes the mailbox until ctx ends or the session closes. On return
// every outstanding generation has been voided.
func (c *Controller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx
	defer c.teardown()

	c.openSTT()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sess.Done():
			return
		case ev := <-c.sess.Mailbox():
			c.handle(ev)
		}
	}
}

func (c *Controller) teardown() {
	c.sess.STT.Advance()
	c.sess.TTS.Advance()
	if c.cancelPipeline != nil {
		c.cancelPipeline()
		c.cancelPipeline = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.log.Debug("session loop stopped")
}

func (c *Controller) handle(ev any) {
	switch e := ev.(type) {
	case audioFrame:
		c.onAudio(e.pcm)
	case controlMsg:
		c.onControl(e.v)
	case transcriptMsg:
		c.onTranscript(e)
	case heartbeatTimeout:
		if c.sess.State() == floor.Listening {
			metricHeartbeats.Inc()
			c.turnEnd("heartbeat")
		}
	case graceElapsed:
		c.onGraceElapsed(e.seq)
	case speakRequest:
		e.reply <- c.onSpeak(e.gen)
	case pipelineDone:
		c.onPipelineDone(e)
	case sttOpened:
		c.onSTTOpened(e)
	case sttClosed:
		c.onSTTClosed(e)
	case sttReopen:
		if c.sess.STT.IsCurrent(e.gen) && c.stream == nil {
			c.openSTT()
		}
	default:
		c.log.Warn("unknown mailbox event", zap.Any("event", ev))
	}
}

func (c *Controller) onAudio(pcm []byte) {
	ev := c.vad.ProcessPCM16(pcm)
	if c.stream != nil {
		c.stream.Send(pcm)
	}
	switch ev {
	case vad.SpeechStart:
		c.speechStart("vad")
	case vad.SpeechEnd:
		c.turnEnd("vad")
	}
}

func (c *Controller) onControl(v any) {
	switch m := v.(type) {
	case protocol.ContextUpdate:
		ver := c.sess.ReplaceContext(m.Content)
		c.log.Info("context replaced", zap.Uint64("version", ver))
	case protocol.DebugInput:
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return
		}
		c.speechStart("debug")
		c.sess.AppendFinal(text)
		c.turnEnd("debug")
	case protocol.PlaybackComplete:
		c.apply(floor.PlaybackDone)
	}
}

func (c *Controller) onTranscript(m transcriptMsg) {
	if !c.sess.STT.IsCurrent(m.gen) {
		metricStaleDrops.WithLabelValues("transcript").Inc()
		return
	}
	switch m.ev.Type {
	case stt.Interim:
		c.sess.SetInterim(m.ev.Text)
		if c.sess.State() == floor.Listening {
			c.out.Emit(protocol.UserTranscript(m.ev.Text, true))
		}
	case stt.Final:
		c.sess.AppendFinal(m.ev.Text)
	case stt.Error:
		c.log.Warn("transcriber error", zap.String("error", m.ev.Text))
	}
}

// speechStart is a hard barge-in: anything synthesizing or thinking is voided.
func (c *Controller) speechStart(source string) {
	prev := c.sess.State()
	d := floor.Decide(prev, floor.SpeechStart)
	if d.Interrupt {
		c.sess.TTS.Advance()
		if c.cancelPipeline != nil {
			c.cancelPipeline()
			c.cancelPipeline = nil
		}
	}
	if d.ClearTranscripts {
		c.sess.ClearTranscripts()
	}
	if d.BargeIn {
		c.sess.MarkBargeIn()
		metricBargeIn.Inc()
		c.log.Info("barge-in", zap.String("from", prev.String()), zap.String("source", source))
	}
	c.transition(d.To)
	c.out.Emit(protocol.BargeIn())
}

// turnEnd moves Listening to Thinking and waits the grace period for
// trailing transcripts. Any other state ignores it.
func (c *Controller) turnEnd(source string) {
	d := floor.Decide(c.sess.State(), floor.TurnEnd)
	if !d.Changed {
		metricDuplicateTurnEnds.WithLabelValues(source).Inc()
		return
	}
	c.vad.Reset()
	seq := c.sess.BeginTurn(time.Now())
	c.transition(d.To)
	c.log.Debug("turn ended", zap.String("source", source), zap.Uint64("turn", seq))
	c.after(c.o.opts.Grace, graceElapsed{seq: seq})
}

func (c *Controller) onGraceElapsed(seq uint64) {
	if c.sess.State() != floor.Thinking || c.sess.TurnSeq() != seq {
		return
	}
	text := c.sess.TakeTranscript()
	now := time.Now()
	c.sess.UpdateMetrics(func(m *session.TurnMetrics) { m.TranscriptDone = now })
	if strings.TrimSpace(text) == "" {
		metricEmptyTurns.Inc()
		c.apply(floor.TurnAborted)
		return
	}

	gen := c.sess.TTS.Issue()
	pctx, cancel := context.WithCancel(c.ctx)
	c.cancelPipeline = cancel
	t := turn{
		sess: c.sess,
		out:  c.out,
		log:  c.log.With(zap.Uint64("turn", seq), zap.Uint64("gen", gen)),
		gen:  gen,
		seq:  seq,
		text: text,
		speak: func(ctx context.Context) bool {
			return c.requestSpeak(ctx, gen)
		},
	}
	metricTurns.Inc()
	go func() {
		sent, err := c.o.pipeline.Run(pctx, t)
		cancel()
		_ = c.sess.Post(c.ctx, pipelineDone{gen: gen, seq: seq, metricsSent: sent, err: err})
	}()
}

// requestSpeak asks the loop to enter Speaking for generation gen. It runs
// on the pipeline goroutine.
func (c *Controller) requestSpeak(ctx context.Context, gen uint64) bool {
	reply := make(chan bool, 1)
	if err := c.sess.Post(ctx, speakRequest{gen: gen, reply: reply}); err != nil {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-ctx.Done():
		return false
	case <-c.sess.Done():
		return false
	}
}

func (c *Controller) onSpeak(gen uint64) bool {
	if !c.sess.TTS.IsCurrent(gen) {
		return false
	}
	return c.apply(floor.ReplyReady)
}

func (c *Controller) onPipelineDone(e pipelineDone) {
	if !c.sess.TTS.IsCurrent(e.gen) {
		// Superseded by a barge-in; the new turn owns the session.
		metricStaleDrops.WithLabelValues("pipeline").Inc()
		return
	}
	c.cancelPipeline = nil
	failed := e.err != nil && !errors.Is(e.err, errStale) && !errors.Is(e.err, context.Canceled)
	if failed {
		metricTurnFailures.Inc()
		c.log.Error("turn failed", zap.Uint64("turn", e.seq), zap.Error(e.err))
	}
	if !e.metricsSent {
		c.out.Emit(c.o.recorder.Record(e.seq, c.sess.Metrics()))
	}
	// A turn that never reached Speaking, or failed mid-reply, returns to Idle.
	if failed || c.sess.State() == floor.Thinking {
		c.apply(floor.TurnAborted)
	}
}

// apply runs a non-speech trigger and reports whether the state changed.
func (c *Controller) apply(t floor.Trigger) bool {
	d := floor.Decide(c.sess.State(), t)
	if !d.Changed {
		return false
	}
	c.transition(d.To)
	return true
}

func (c *Controller) transition(to floor.State) {
	from := c.sess.SetState(to)
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	c.out.Emit(protocol.State(to.String()))
}

// after posts ev to the mailbox once d has elapsed.
func (c *Controller) after(d time.Duration, ev any) {
	ctx := c.ctx
	time.AfterFunc(d, func() { _ = c.sess.Post(ctx, ev) })
}

// Transcriber stream management. Each stream is bound to an STT generation;
// events from older streams are dropped.

func (c *Controller) openSTT() {
	tr := c.o.deps.Transcriber
	if tr == nil {
		return
	}
	gen := c.sess.STT.Advance()
	ctx := c.ctx
	go func() {
		s, err := tr.Open(ctx)
		if err != nil {
			_ = c.sess.Post(ctx, sttClosed{gen: gen, err: err})
			return
		}
		if err := c.sess.Post(ctx, sttOpened{gen: gen, stream: s}); err != nil {
			s.Close()
		}
	}()
}

func (c *Controller) onSTTOpened(e sttOpened) {
	if !c.sess.STT.IsCurrent(e.gen) {
		e.stream.Close()
		return
	}
	c.stream = e.stream
	ctx := c.ctx
	go func() {
		for ev := range e.stream.Events() {
			if err := c.sess.Post(ctx, transcriptMsg{gen: e.gen, ev: ev}); err != nil {
				return
			}
		}
		_ = c.sess.Post(ctx, sttClosed{gen: e.gen})
	}()
}

func (c *Controller) onSTTClosed(e sttClosed) {
	if !c.sess.STT.IsCurrent(e.gen) {
		return
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	metricSTTReopens.Inc()
	delay := time.Second
	if b, ok := c.o.deps.Transcriber.(backoffer); ok {
		delay = b.Backoff()
	}
	if e.err != nil {
		c.log.Warn("transcriber unavailable", zap.Error(e.err), zap.Duration("retry_in", delay))
	} else {
		c.log.Info("transcriber stream closed", zap.Duration("retry_in", delay))
	}
	c.after(delay, sttReopen{gen: e.gen})
}
