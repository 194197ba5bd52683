// Package session owns one client connection's recognition lifecycle: it
// buffers or streams audio, correlates finalized transcripts with turns, and
// delivers turn output to the client in order.
package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/errorsx"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/metrics"
	"github.com/harunnryd/juru/pkg/orchestrator"
	"github.com/harunnryd/juru/pkg/protocol"
	"github.com/harunnryd/juru/pkg/recognition"
)

// ErrBufferFull is reported when a batch turn exceeds MaxBufferBytes.
var ErrBufferFull = errors.New("audio buffer full")

// Emitter delivers outbound events to the client.
type Emitter interface {
	Send(ev protocol.Outbound) error
}

type Config struct {
	Mode     Mode
	Boundary TurnBoundary
	// Echo also plays the original utterance back before the translation.
	Echo bool
	// EchoGap separates the echo and translation events.
	EchoGap time.Duration
	// TurnTimeout bounds translation and synthesis of one turn.
	TurnTimeout time.Duration
	// AutoDetect lets the recognizer pick among every supported language.
	AutoDetect bool
	Encoding   string
	SampleRate int
	// MaxBufferBytes caps batch accumulation; zero means unlimited.
	MaxBufferBytes int
	// QueueSize bounds finalized transcripts waiting for the turn worker.
	QueueSize int
}

// Deps are the process-wide collaborators shared by every session.
type Deps struct {
	Recognizer   *recognition.Adapter
	Orchestrator *orchestrator.Orchestrator
	Observer     metrics.Observer
	Logger       *slog.Logger
}

type turnJob struct {
	generation uint64
	target     string
	transcript recognition.Transcript
	err        error
	at         time.Time
}

// Session is the per-connection state machine. It is safe to call from the
// connection's read goroutine while Close runs from another goroutine.
type Session struct {
	id      string
	cfg     Config
	deps    Deps
	emitter Emitter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	turns  chan turnJob
	wg     sync.WaitGroup

	// batchMu allows at most one batch recognition round trip at a time.
	batchMu sync.Mutex

	mu            sync.Mutex
	state         State
	closed        bool
	generation    uint64
	seq           uint64
	target        string
	buffer        [][]byte
	bufferedBytes int
	stream        *recognition.Stream
	live          map[*recognition.Stream]struct{}
}

func New(ctx context.Context, id string, cfg Config, deps Deps, emitter Emitter) *Session {
	if cfg.Mode == "" {
		cfg.Mode = ModeStreaming
	}
	if cfg.Boundary == "" {
		cfg.Boundary = BoundaryStop
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:      id,
		cfg:     cfg,
		deps:    deps,
		emitter: emitter,
		logger:  logging.NewComponentLogger(logger, "session").With(slog.String("session_id", id)),
		ctx:     ctx,
		cancel:  cancel,
		turns:   make(chan turnJob, cfg.QueueSize),
		live:    make(map[*recognition.Stream]struct{}),
	}
	s.wg.Add(1)
	go s.runTurns()
	metrics.Record(deps.Observer, metrics.EventSessionOpened, 1, map[string]string{"mode": string(cfg.Mode)})
	s.logger.Info("session_opened", slog.String("mode", string(cfg.Mode)))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation increases on every start and on close. Output tagged with an
// older generation is never delivered.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Handle dispatches one decoded client event. Callers must not invoke Handle
// concurrently for one session.
func (s *Session) Handle(in protocol.Inbound) {
	switch in.Kind {
	case protocol.KindStart:
		s.Start(in.TargetLanguage)
	case protocol.KindAudioChunk:
		s.Audio(in.Audio)
	case protocol.KindStop:
		s.Stop()
	case protocol.KindOneShot:
		s.OneShot(in.Audio, in.TargetLanguage)
	default:
		s.logger.Warn("unhandled_event", slog.String("kind", in.Kind.String()))
	}
}

// Start begins a new turn. Any stream still owned by the session is closed
// before the new one opens, and its pending results are discarded.
func (s *Session) Start(target string) {
	target = orchestrator.Base(target)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	stale := s.detachStreamsLocked()
	s.target = target
	s.buffer = nil
	s.bufferedBytes = 0
	s.state = StateIdle
	if s.cfg.Mode == ModeBatch {
		s.state = StateBuffering
	}
	s.mu.Unlock()

	for _, st := range stale {
		_ = st.Close()
	}
	s.logger.Info("turn_started",
		slog.Uint64("generation", gen),
		slog.String("target", target),
		slog.Int("superseded_streams", len(stale)))
	if s.cfg.Mode == ModeBatch {
		return
	}

	stream, err := s.deps.Recognizer.Open(s.ctx, s.options(target))
	if err != nil {
		s.logger.Warn("stream_open_failed", slog.String("error", err.Error()))
		s.sendError(gen, err)
		return
	}
	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		_ = stream.Close()
		return
	}
	s.stream = stream
	s.live[stream] = struct{}{}
	s.state = StateStreaming
	s.wg.Add(1)
	s.mu.Unlock()
	go s.forward(gen, target, stream)
}

// Audio delivers one chunk to the open stream or the batch buffer. Chunks
// that cannot be delivered are dropped with a warning.
func (s *Session) Audio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == StateIdle && s.cfg.Mode == ModeBatch {
		s.state = StateBuffering
	}
	switch s.state {
	case StateStreaming:
		stream := s.stream
		s.mu.Unlock()
		if err := stream.Write(chunk); err != nil {
			s.dropChunk("stream_closed", err)
		}
	case StateBuffering:
		if s.cfg.MaxBufferBytes > 0 && s.bufferedBytes+len(chunk) > s.cfg.MaxBufferBytes {
			s.mu.Unlock()
			s.dropChunk("buffer_full", ErrBufferFull)
			return
		}
		s.buffer = append(s.buffer, chunk)
		s.bufferedBytes += len(chunk)
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.dropChunk("no_stream", errorsx.Wrap(stt.ErrStreamClosed, errorsx.ReasonStreamState))
	}
}

// Stop ends the current turn. A streaming turn completes asynchronously when
// the recognizer finalizes; a batch turn is recognized before Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateStreaming:
		stream := s.stream
		s.stream = nil
		s.state = StateIdle
		s.mu.Unlock()
		if err := stream.End(); err != nil {
			s.logger.Warn("stream_end_failed", slog.String("error", err.Error()))
		}
	case StateBuffering:
		payload := bytes.Join(s.buffer, nil)
		s.buffer = nil
		s.bufferedBytes = 0
		s.state = StateIdle
		gen, target := s.generation, s.target
		s.mu.Unlock()
		s.recognizeBatch(gen, target, payload)
	default:
		s.mu.Unlock()
		s.logger.Debug("stop_while_idle")
	}
}

// OneShot runs a complete batch turn for a self-contained payload.
func (s *Session) OneShot(audio []byte, target string) {
	target = orchestrator.Base(target)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	gen := s.generation
	s.mu.Unlock()
	s.recognizeBatch(gen, target, audio)
}

// Close releases every stream and stops the turn worker. In-flight
// collaborator calls are cancelled and their output discarded. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	stale := s.detachStreamsLocked()
	s.buffer = nil
	s.bufferedBytes = 0
	s.state = StateIdle
	s.mu.Unlock()

	s.cancel()
	for _, st := range stale {
		_ = st.Close()
	}
	s.wg.Wait()
	metrics.Record(s.deps.Observer, metrics.EventSessionClosed, 1, nil)
	s.logger.Info("session_closed", slog.Int("released_streams", len(stale)))
}

// detachStreamsLocked removes every live stream from the session; the caller closes them.
func (s *Session) detachStreamsLocked() []*recognition.Stream {
	out := make([]*recognition.Stream, 0, len(s.live))
	for st := range s.live {
		out = append(out, st)
		delete(s.live, st)
	}
	s.stream = nil
	return out
}

func (s *Session) recognizeBatch(gen uint64, target string, payload []byte) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	tr, err := s.deps.Recognizer.Recognize(s.ctx, payload, s.options(target))
	s.enqueue(turnJob{generation: gen, target: target, transcript: tr, err: err, at: time.Now()})
}

func (s *Session) options(target string) stt.Options {
	opts := stt.Options{
		TargetLanguage: target,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		SessionID:      s.id,
	}
	langs := s.deps.Orchestrator.Languages()
	if target != "" && !s.cfg.AutoDetect {
		opts.SourceLanguage = langs.SourceFor(target)
	}
	if opts.SourceLanguage == "" {
		opts.AlternativeLanguages = langs.RegionCodes()
	}
	return opts
}

// forward turns one stream's events into turn jobs tagged with gen.
func (s *Session) forward(gen uint64, target string, stream *recognition.Stream) {
	defer s.wg.Done()
	defer func() {
		_ = stream.Close()
		s.mu.Lock()
		delete(s.live, stream)
		s.mu.Unlock()
	}()

	var texts []string
	var language string
	var firstErr error
	for ev := range stream.Events() {
		if s.cfg.Boundary == BoundaryFinal {
			s.enqueue(turnJob{generation: gen, target: target, transcript: ev.Transcript, err: ev.Err, at: time.Now()})
			continue
		}
		if ev.Err != nil {
			if firstErr == nil {
				firstErr = ev.Err
			}
			continue
		}
		texts = append(texts, ev.Transcript.Text)
		if language == "" {
			language = ev.Transcript.Language
		}
	}
	if s.cfg.Boundary == BoundaryFinal {
		return
	}
	switch {
	case len(texts) > 0:
		s.enqueue(turnJob{
			generation: gen,
			target:     target,
			transcript: recognition.Transcript{Text: strings.Join(texts, " "), Language: language},
			at:         time.Now(),
		})
	case firstErr != nil:
		s.enqueue(turnJob{generation: gen, target: target, err: firstErr, at: time.Now()})
	}
}

func (s *Session) enqueue(job turnJob) {
	select {
	case s.turns <- job:
	case <-s.ctx.Done():
	}
}

func (s *Session) runTurns() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case job := <-s.turns:
			s.runTurn(job)
		}
	}
}

func (s *Session) runTurn(job turnJob) {
	if !s.current(job.generation) {
		s.recordTurn(job, "discarded")
		return
	}
	if job.err != nil {
		s.sendError(job.generation, job.err)
		s.recordTurn(job, "error")
		return
	}

	ctx := s.ctx
	if s.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
		defer cancel()
	}
	res, err := s.deps.Orchestrator.Run(ctx, orchestrator.Request{
		SessionID:      s.id,
		Transcript:     job.transcript,
		TargetLanguage: job.target,
		Echo:           s.cfg.Echo,
	})
	if res.Echo != nil {
		s.send(job.generation, protocol.AudioEvent(*res.Echo, protocol.KindEcho))
		if !s.pause(s.cfg.EchoGap) {
			s.recordTurn(job, "discarded")
			return
		}
	}
	if err != nil {
		s.sendError(job.generation, err)
		s.recordTurn(job, "error")
		return
	}
	if !s.send(job.generation, protocol.AudioEvent(*res.Translated, protocol.KindTranslation)) {
		s.recordTurn(job, "discarded")
		return
	}
	outcome := "ok"
	if res.Degraded {
		outcome = "degraded"
	}
	s.recordTurn(job, outcome)
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.generation == gen
}

// send delivers ev only while gen is current. The lock is held across the
// send so a concurrent Start cannot interleave stale output after it returns.
func (s *Session) send(gen uint64, ev protocol.Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return false
	}
	s.seq++
	if err := s.emitter.Send(ev); err != nil {
		s.logger.Warn("send_failed",
			slog.String("event", ev.Event),
			slog.Uint64("seq", s.seq),
			slog.String("error", err.Error()))
		return false
	}
	s.logger.Debug("event_sent",
		slog.String("event", ev.Event),
		slog.String("kind", ev.Kind),
		slog.Uint64("seq", s.seq))
	return true
}

func (s *Session) sendError(gen uint64, err error) {
	if s.send(gen, protocol.ErrorEvent(err)) {
		metrics.Record(s.deps.Observer, metrics.EventErrorSent, 1,
			map[string]string{"reason": string(errorsx.Reason(err))})
	}
}

func (s *Session) pause(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) dropChunk(reason string, err error) {
	metrics.Record(s.deps.Observer, metrics.EventChunkDropped, 1, map[string]string{"reason": reason})
	s.logger.Warn("audio_chunk_dropped",
		slog.String("reason", reason),
		slog.String("reason_code", string(errorsx.Reason(err))),
		slog.String("error", err.Error()))
}

func (s *Session) recordTurn(job turnJob, outcome string) {
	metrics.Record(s.deps.Observer, metrics.EventTurnCompleted, time.Since(job.at).Seconds(),
		map[string]string{"outcome": outcome})
	s.logger.Info("turn_completed",
		slog.Uint64("generation", job.generation),
		slog.String("outcome", outcome))
}
