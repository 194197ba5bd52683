package stt

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// BatchFunc recognizes one complete payload.
type BatchFunc func(ctx context.Context, audio []byte, opts Options) (Result, error)

// NewBufferedStream adapts a batch recognizer to the Stream contract. Chunks
// accumulate until End, which recognizes them in one call and delivers at most
// one final result.
func NewBufferedStream(ctx context.Context, opts Options, recognize BatchFunc) Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &bufferedStream{
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts,
		recognize: recognize,
		results:   make(chan Result, 1),
		errs:      make(chan error, 1),
	}
}

type bufferedStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	opts      Options
	recognize BatchFunc

	results chan Result
	errs    chan error

	mu     sync.Mutex
	buf    bytes.Buffer
	ended  bool
	closed bool
}

func (s *bufferedStream) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.closed {
		return ErrStreamClosed
	}
	s.buf.Write(chunk)
	return nil
}

func (s *bufferedStream) End() error {
	s.mu.Lock()
	if s.ended || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	audio := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	s.mu.Unlock()

	go func() {
		defer close(s.results)
		if len(audio) == 0 {
			return
		}
		res, err := s.recognize(s.ctx, audio, s.opts)
		if err != nil {
			if s.ctx.Err() == nil {
				s.errs <- err
			}
			return
		}
		if strings.TrimSpace(res.Text) != "" {
			res.IsFinal = true
			s.results <- res
		}
	}()
	return nil
}

func (s *bufferedStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ended := s.ended
	s.mu.Unlock()
	s.cancel()
	if !ended {
		close(s.results)
	}
	return nil
}

func (s *bufferedStream) Results() <-chan Result { return s.results }

func (s *bufferedStream) Errors() <-chan error { return s.errs }
