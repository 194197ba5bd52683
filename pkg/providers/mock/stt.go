package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/juru/pkg/adapters/stt"
)

type STTConfig struct {
	Transcript        string
	Language          string
	InterimTranscript string
	EmitInterim       bool
	// BatchErr fails RecognizeBatch calls.
	BatchErr error
	// BatchFailures limits BatchErr to the first n calls; zero fails every call.
	BatchFailures int
	// Buffered makes streams recognize once on End through RecognizeBatch,
	// like vendors without a live streaming API.
	Buffered bool
	// OpenErr fails every OpenStream call.
	OpenErr error
	// Manual disables the automatic final on End; tests push results themselves.
	Manual bool
}

// Transcriber is a deterministic stt.Transcriber. It records every stream it opens.
type Transcriber struct {
	cfg STTConfig

	mu      sync.Mutex
	streams []*Stream
	batches [][]byte
	opts    []stt.Options
}

func NewSTT(cfg STTConfig) *Transcriber {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) RecognizeBatch(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	t.mu.Lock()
	t.batches = append(t.batches, append([]byte(nil), audio...))
	t.opts = append(t.opts, opts)
	call := len(t.batches)
	t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}
	if t.cfg.BatchErr != nil && (t.cfg.BatchFailures == 0 || call <= t.cfg.BatchFailures) {
		return stt.Result{}, t.cfg.BatchErr
	}
	return stt.Result{Text: t.cfg.Transcript, Language: t.language(opts), IsFinal: true, Confidence: 1}, nil
}

func (t *Transcriber) OpenStream(ctx context.Context, opts stt.Options) (stt.Stream, error) {
	if t.cfg.OpenErr != nil {
		return nil, t.cfg.OpenErr
	}
	if t.cfg.Buffered {
		return stt.NewBufferedStream(ctx, opts, t.RecognizeBatch), nil
	}
	s := &Stream{
		cfg:     t.cfg,
		lang:    t.language(opts),
		results: make(chan stt.Result, 16),
		errs:    make(chan error, 4),
	}
	t.mu.Lock()
	t.streams = append(t.streams, s)
	t.opts = append(t.opts, opts)
	t.mu.Unlock()
	return s, nil
}

func (t *Transcriber) BufferedStreams() bool { return t.cfg.Buffered }

// Streams returns the streams opened so far, oldest first.
func (t *Transcriber) Streams() []*Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Stream(nil), t.streams...)
}

// Batches returns every payload passed to RecognizeBatch.
func (t *Transcriber) Batches() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.batches...)
}

// Options returns the options of every call, in call order.
func (t *Transcriber) Options() []stt.Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]stt.Options(nil), t.opts...)
}

func (t *Transcriber) language(opts stt.Options) string {
	if t.cfg.Language != "" {
		return t.cfg.Language
	}
	return opts.SourceLanguage
}

// Stream is a mock recognition stream.
type Stream struct {
	cfg  STTConfig
	lang string

	mu      sync.Mutex
	chunks  [][]byte
	ended   bool
	closed  bool
	results chan stt.Result
	errs    chan error
}

func (s *Stream) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.closed {
		return stt.ErrStreamClosed
	}
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	return nil
}

func (s *Stream) End() error {
	s.mu.Lock()
	if s.ended || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	manual := s.cfg.Manual
	s.mu.Unlock()
	if manual {
		return nil
	}
	if s.cfg.EmitInterim {
		interim := s.cfg.InterimTranscript
		if interim == "" {
			interim = s.cfg.Transcript
		}
		s.Emit(stt.Result{Text: interim, Language: s.lang})
	}
	s.Emit(stt.Result{Text: s.cfg.Transcript, Language: s.lang, IsFinal: true, Confidence: 1})
	s.Finish()
	return nil
}

func (s *Stream) Close() error {
	s.Finish()
	return nil
}

// Emit pushes a result as if the provider produced it. Dropped after Finish.
func (s *Stream) Emit(res stt.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.results <- res:
	default:
	}
}

// Fail pushes an asynchronous stream error.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

// Finish closes the result channel, as a provider does when its stream ends.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.results)
}

// Chunks returns the audio written so far.
func (s *Stream) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.chunks...)
}

// Closed reports whether the stream has been terminated.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) Results() <-chan stt.Result { return s.results }

func (s *Stream) Errors() <-chan error { return s.errs }

var (
	_ stt.Transcriber = (*Transcriber)(nil)
	_ stt.Buffered    = (*Transcriber)(nil)
	_ stt.Stream      = (*Stream)(nil)
)
