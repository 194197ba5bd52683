package stt

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when writing to a stream that was ended or closed.
var ErrStreamClosed = errors.New("recognition stream closed")

// Transcriber defines the contract for any speech-to-text vendor implementation.
// Implementations are shared across sessions and must not keep per-session state.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// RecognizeBatch transcribes one complete audio payload.
	RecognizeBatch(ctx context.Context, audio []byte, opts Options) (Result, error)
	// OpenStream starts a continuous recognition stream.
	OpenStream(ctx context.Context, opts Options) (Stream, error)
}

// Buffered is implemented by transcribers without a live streaming API whose
// OpenStream only buffers audio for one RecognizeBatch call on End. Callers
// that wrap batch calls with retries build the stream themselves through
// NewBufferedStream.
type Buffered interface {
	BufferedStreams() bool
}

// Stream is one open recognition stream. It is owned by exactly one session.
type Stream interface {
	// Write pushes one audio chunk. Returns ErrStreamClosed after End or Close.
	Write(chunk []byte) error
	// End signals end of input. Pending results may still arrive on Results.
	End() error
	// Close terminates the stream immediately. Idempotent.
	Close() error
	// Results delivers interim and final results; closed when the stream is done.
	Results() <-chan Result
	// Errors delivers asynchronous stream failures.
	Errors() <-chan error
}

// Result is one recognition hypothesis.
type Result struct {
	Text       string
	Language   string
	IsFinal    bool
	Confidence float64
}

// Options contains vendor-agnostic recognition settings.
type Options struct {
	// SourceLanguage is a region language code hint such as "en-US".
	SourceLanguage string
	// AlternativeLanguages enables detection across several candidates.
	AlternativeLanguages []string
	// TargetLanguage is informational for providers that translate natively.
	TargetLanguage string
	Encoding       string
	SampleRate     int
	SessionID      string
}
