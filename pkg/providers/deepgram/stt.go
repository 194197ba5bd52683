// Package deepgram implements a streaming Transcriber on Deepgram's live API.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/redact"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	Interim        bool
	UtteranceEndMS int
	// FinalizeWait is how long a stream stays open after End without any
	// new message before it is considered finished.
	FinalizeWait time.Duration
}

type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.FinalizeWait <= 0 {
		cfg.FinalizeWait = 1500 * time.Millisecond
	}
	return &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (t *Transcriber) Name() string { return "deepgram_streaming" }

// RecognizeBatch streams the whole payload through a live connection and
// joins its final transcripts.
func (t *Transcriber) RecognizeBatch(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	s, err := t.OpenStream(ctx, opts)
	if err != nil {
		return stt.Result{}, err
	}
	defer s.Close()
	if err := s.Write(audio); err != nil {
		return stt.Result{}, err
	}
	if err := s.End(); err != nil {
		return stt.Result{}, err
	}
	var texts []string
	out := stt.Result{IsFinal: true, Language: t.language(opts)}
	results, errs := s.Results(), s.Errors()
	for {
		select {
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		case err := <-errs:
			if err != nil {
				return stt.Result{}, err
			}
		case res, ok := <-results:
			if !ok {
				out.Text = strings.Join(texts, " ")
				return out, nil
			}
			if res.IsFinal && strings.TrimSpace(res.Text) != "" {
				texts = append(texts, res.Text)
				out.Confidence = res.Confidence
			}
		}
	}
}

func (t *Transcriber) OpenStream(ctx context.Context, opts stt.Options) (stt.Stream, error) {
	if t.cfg.APIKey == "" {
		return nil, errors.New("deepgram api key required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	s := &stream{
		cfg:      t.cfg,
		language: t.language(opts),
		ctx:      ctx,
		cancel:   cancel,
		pr:       pr,
		pw:       pw,
		results:  make(chan stt.Result, 64),
		errs:     make(chan error, 4),
		activity: make(chan struct{}, 1),
		logger:   t.logger.With(slog.String("session_id", opts.SessionID)),
	}

	encoding := strings.ToLower(firstNonEmpty(t.cfg.Encoding, opts.Encoding))
	sampleRate := t.cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = opts.SampleRate
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       s.language,
		InterimResults: t.cfg.Interim,
		SmartFormat:    true,
		Punctuate:      true,
	}
	// Containerized audio (webm/ogg) carries its own format header.
	if encoding != "" && encoding != "webm_opus" && encoding != "ogg_opus" {
		tOptions.Encoding = encoding
		tOptions.SampleRate = sampleRate
	}
	if t.cfg.UtteranceEndMS > 0 {
		tOptions.UtteranceEndMs = fmt.Sprintf("%d", t.cfg.UtteranceEndMS)
	}

	dg, err := client.NewWSUsingCallback(ctx, t.cfg.APIKey, &interfaces.ClientOptions{EnableKeepAlive: true}, tOptions, &callback{parent: s})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("deepgram client: %w", err)
	}
	if !dg.Connect() {
		cancel()
		return nil, errors.New("deepgram connection failed")
	}
	s.dg = dg
	s.logger.Info("deepgram_connected",
		slog.String("model", t.cfg.Model),
		slog.String("language", s.language))

	go s.pipe(dg.Stream)
	return s, nil
}

func (t *Transcriber) language(opts stt.Options) string {
	if opts.SourceLanguage != "" {
		return opts.SourceLanguage
	}
	if t.cfg.Language != "" {
		return t.cfg.Language
	}
	if len(opts.AlternativeLanguages) > 0 {
		return opts.AlternativeLanguages[0]
	}
	return "en-US"
}

type stream struct {
	cfg      Config
	language string
	dg       *client.WSCallback
	ctx      context.Context
	cancel   context.CancelFunc
	pr       *io.PipeReader
	pw       *io.PipeWriter
	logger   *slog.Logger

	results  chan stt.Result
	errs     chan error
	activity chan struct{}

	mu       sync.Mutex
	ended    bool
	finished bool
}

func (s *stream) Write(chunk []byte) error {
	s.mu.Lock()
	done := s.ended || s.finished
	s.mu.Unlock()
	if done {
		return stt.ErrStreamClosed
	}
	if _, err := s.pw.Write(chunk); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return stt.ErrStreamClosed
		}
		return err
	}
	return nil
}

// End flushes buffered audio and finishes the stream once the service has
// been quiet for FinalizeWait.
func (s *stream) End() error {
	s.mu.Lock()
	if s.ended || s.finished {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	s.mu.Unlock()
	if err := s.dg.Finalize(); err != nil {
		s.logger.Warn("deepgram_finalize_failed", slog.String("error", err.Error()))
	}
	go s.awaitQuiet()
	return nil
}

func (s *stream) Close() error {
	s.finish()
	return nil
}

func (s *stream) Results() <-chan stt.Result { return s.results }

func (s *stream) Errors() <-chan error { return s.errs }

func (s *stream) awaitQuiet() {
	timer := time.NewTimer(s.cfg.FinalizeWait)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			s.finish()
			return
		case <-s.activity:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.cfg.FinalizeWait)
		case <-timer.C:
			s.finish()
			return
		}
	}
}

func (s *stream) finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	close(s.results)
	s.mu.Unlock()
	s.cancel()
	_ = s.pw.Close()
	if s.dg != nil {
		s.dg.Stop()
	}
	s.logger.Debug("deepgram_stream_finished")
}

// pipe feeds written audio to the connection. Once the sender returns the
// pipe is broken so pending and later writes fail with ErrStreamClosed
// instead of blocking the caller.
func (s *stream) pipe(send func(io.Reader) error) {
	err := send(s.pr)
	if err != nil && s.ctx.Err() == nil {
		s.logger.Warn("deepgram_stream_failed", slog.String("error", err.Error()))
		s.fail(err)
	}
	_ = s.pr.CloseWithError(stt.ErrStreamClosed)
	s.finish()
}

func (s *stream) emit(res stt.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.activity <- struct{}{}:
	default:
	}
	select {
	case s.results <- res:
	default:
		s.logger.Warn("deepgram_results_full")
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	select {
	case s.errs <- err:
	default:
	}
}

type callback struct {
	parent *stream
}

func (c *callback) Open(*msginterfaces.OpenResponse) error {
	c.parent.logger.Debug("deepgram_connection_opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal
	c.parent.logger.Debug("transcript_received",
		slog.String("transcript", redact.Text(alt.Transcript)),
		slog.Bool("is_final", isFinal))
	c.parent.emit(stt.Result{
		Text:       alt.Transcript,
		Language:   c.parent.language,
		IsFinal:    isFinal,
		Confidence: alt.Confidence,
	})
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.logger.Debug("deepgram_metadata_received", slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(*msginterfaces.CloseResponse) error {
	c.parent.logger.Debug("deepgram_connection_closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.fail(fmt.Errorf("deepgram %s: %s", er.ErrCode, er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram_unhandled_event", slog.Int("size_bytes", len(byData)))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var (
	_ stt.Transcriber                  = (*Transcriber)(nil)
	_ stt.Stream                       = (*stream)(nil)
	_ msginterfaces.LiveMessageCallback = (*callback)(nil)
)
