// Package recognition normalizes streaming and batch transcribers behind one
// finalized-transcript contract. Interim hypotheses never leave this package.
package recognition

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/errorsx"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/redact"
	"github.com/harunnryd/juru/pkg/resilience"
)

// EmptyTranscriptMessage is the client-facing text for a turn with no speech.
const EmptyTranscriptMessage = "Audio could not be transcribed."

// ErrEmptyTranscript reports a recognition round trip that produced no text.
var ErrEmptyTranscript = errors.New(EmptyTranscriptMessage)

// Transcript is a finalized recognition result.
type Transcript struct {
	Text     string
	Language string
}

// Event is delivered by a Stream: either a finalized transcript or a failure.
type Event struct {
	Transcript Transcript
	Err        error
}

type Adapter struct {
	transcriber stt.Transcriber
	guard       resilience.Guard
	logger      *slog.Logger
}

func NewAdapter(transcriber stt.Transcriber, guard resilience.Guard) *Adapter {
	return &Adapter{
		transcriber: transcriber,
		guard:       guard,
		logger:      logging.NewComponentLogger(slog.Default(), "recognition"),
	}
}

// Recognize runs one batch round trip. An empty transcript is an error.
func (a *Adapter) Recognize(ctx context.Context, audio []byte, opts stt.Options) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, errorsx.Wrap(ErrEmptyTranscript, errorsx.ReasonTranscriptionEmpty)
	}
	res, err := a.recognizeGuarded(ctx, audio, opts)
	if err != nil {
		a.logger.Warn("batch_recognition_failed",
			slog.String("session_id", opts.SessionID),
			slog.String("provider", a.transcriber.Name()),
			slog.String("error", err.Error()))
		return Transcript{}, errorsx.Wrap(err, errorsx.ReasonTranscription)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return Transcript{}, errorsx.Wrap(ErrEmptyTranscript, errorsx.ReasonTranscriptionEmpty)
	}
	lang := res.Language
	if lang == "" {
		lang = opts.SourceLanguage
	}
	a.logger.Debug("batch_transcript",
		slog.String("session_id", opts.SessionID),
		slog.String("language", lang),
		slog.String("text", redact.Text(text)))
	return Transcript{Text: text, Language: lang}, nil
}

func (a *Adapter) recognizeGuarded(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	var res stt.Result
	err := a.guard.Do(ctx, func(ctx context.Context) error {
		r, err := a.transcriber.RecognizeBatch(ctx, audio, opts)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

// Open starts a recognition stream and its result pump. Transcribers that
// only buffer get a stream whose single batch call runs through the guard.
func (a *Adapter) Open(ctx context.Context, opts stt.Options) (*Stream, error) {
	if !a.guard.Breaker.Allow() {
		return nil, errorsx.Wrap(resilience.ErrCircuitOpen, errorsx.ReasonCircuitOpen)
	}
	var inner stt.Stream
	if b, ok := a.transcriber.(stt.Buffered); ok && b.BufferedStreams() {
		inner = stt.NewBufferedStream(ctx, opts, a.recognizeGuarded)
	} else {
		var err error
		inner, err = a.transcriber.OpenStream(ctx, opts)
		if err != nil {
			a.guard.Breaker.OnError(err)
			return nil, errorsx.Wrap(err, errorsx.ReasonStreamOpen)
		}
		a.guard.Breaker.OnSuccess()
	}
	s := &Stream{
		inner:  inner,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		hint:   opts.SourceLanguage,
		logger: a.logger.With(slog.String("session_id", opts.SessionID)),
	}
	go s.pump()
	return s, nil
}

// Stream wraps one provider stream. Only finalized, non-empty results are forwarded.
type Stream struct {
	inner  stt.Stream
	events chan Event
	done   chan struct{}
	hint   string
	logger *slog.Logger

	mu       sync.Mutex
	ended    bool
	closed   bool
	finals   atomic.Int64
	doneOnce sync.Once
}

// Write forwards one chunk while the stream is open.
func (s *Stream) Write(chunk []byte) error {
	s.mu.Lock()
	writable := !s.ended && !s.closed
	s.mu.Unlock()
	if !writable {
		return errorsx.Wrap(stt.ErrStreamClosed, errorsx.ReasonStreamState)
	}
	if err := s.inner.Write(chunk); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStreamState)
	}
	return nil
}

// End signals end of input; the final transcript may still arrive on Events.
func (s *Stream) End() error {
	s.mu.Lock()
	if s.ended || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	s.mu.Unlock()
	return s.inner.End()
}

// Close terminates the stream and discards anything still pending. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	return s.inner.Close()
}

// Events is closed once the provider stream finishes or the stream is closed.
func (s *Stream) Events() <-chan Event { return s.events }

func (s *Stream) pump() {
	defer close(s.events)
	results := s.inner.Results()
	errs := s.inner.Errors()
	failed := false
	for {
		select {
		case <-s.done:
			return
		case res, ok := <-results:
			if !ok {
				s.finish(errs, failed)
				return
			}
			if !res.IsFinal {
				continue
			}
			text := strings.TrimSpace(res.Text)
			if text == "" {
				continue
			}
			lang := res.Language
			if lang == "" {
				lang = s.hint
			}
			s.finals.Add(1)
			s.logger.Debug("final_transcript",
				slog.String("language", lang),
				slog.String("text", redact.Text(text)))
			s.emit(Event{Transcript: Transcript{Text: text, Language: lang}})
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			failed = true
			s.emit(Event{Err: errorsx.Wrap(err, errorsx.ReasonTranscription)})
		}
	}
}

// finish flushes provider errors queued before results closed, then reports
// an ended stream that neither failed nor produced a final transcript.
func (s *Stream) finish(errs <-chan error, failed bool) {
	for errs != nil {
		select {
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				failed = true
				s.emit(Event{Err: errorsx.Wrap(err, errorsx.ReasonTranscription)})
			}
		default:
			errs = nil
		}
	}
	s.mu.Lock()
	ended, closed := s.ended, s.closed
	s.mu.Unlock()
	if ended && !closed && !failed && s.finals.Load() == 0 {
		s.emit(Event{Err: errorsx.Wrap(ErrEmptyTranscript, errorsx.ReasonTranscriptionEmpty)})
	}
}

func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}
