package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/errorsx"
	"github.com/harunnryd/juru/pkg/providers/mock"
	"github.com/harunnryd/juru/pkg/resilience"
)

func newAdapter(tr stt.Transcriber) *Adapter {
	return NewAdapter(tr, resilience.Guard{Retry: resilience.NewRetryPolicy(0, time.Millisecond)})
}

func nextEvent(t *testing.T, s *Stream) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		return ev, ok
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for stream event")
	}
	return Event{}, false
}

func TestStreamForwardsOnlyFinals(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Transcript: "hello", EmitInterim: true, InterimTranscript: "hel"})
	a := newAdapter(tr)
	s, err := a.Open(context.Background(), stt.Options{SourceLanguage: "en-US"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Write([]byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	ev, ok := nextEvent(t, s)
	if !ok || ev.Err != nil {
		t.Fatalf("expected transcript event, got %+v ok=%v", ev, ok)
	}
	if ev.Transcript.Text != "hello" || ev.Transcript.Language != "en-US" {
		t.Fatalf("unexpected transcript %+v", ev.Transcript)
	}
	if _, ok := nextEvent(t, s); ok {
		t.Fatalf("expected events channel closed after final")
	}
}

func TestStreamWriteAfterEndIsStreamStateError(t *testing.T) {
	a := newAdapter(mock.NewSTT(mock.STTConfig{}))
	s, err := a.Open(context.Background(), stt.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.End()
	err = s.Write([]byte{1})
	if !errors.Is(err, stt.ErrStreamClosed) || !errorsx.HasReason(err, errorsx.ReasonStreamState) {
		t.Fatalf("expected stream state error, got %v", err)
	}
	_ = s.Close()
	_ = s.Close()
}

func TestStreamEndedWithoutFinalReportsEmpty(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Manual: true})
	a := newAdapter(tr)
	s, err := a.Open(context.Background(), stt.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.End()
	inner := tr.Streams()[0]
	inner.Emit(stt.Result{Text: "partial", IsFinal: false})
	inner.Emit(stt.Result{Text: "   ", IsFinal: true})
	inner.Finish()

	ev, ok := nextEvent(t, s)
	if !ok || !errors.Is(ev.Err, ErrEmptyTranscript) {
		t.Fatalf("expected empty transcript error, got %+v", ev)
	}
}

func TestStreamCloseDiscardsPending(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Manual: true})
	a := newAdapter(tr)
	s, err := a.Open(context.Background(), stt.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	tr.Streams()[0].Emit(stt.Result{Text: "late", IsFinal: true})
	for ev := range s.Events() {
		t.Fatalf("unexpected event after close: %+v", ev)
	}
	if !tr.Streams()[0].Closed() {
		t.Fatalf("expected provider stream closed")
	}
}

func TestStreamForwardsProviderErrors(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Manual: true})
	s, err := newAdapter(tr).Open(context.Background(), stt.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	tr.Streams()[0].Fail(errors.New("socket reset"))
	ev, ok := nextEvent(t, s)
	if !ok || !errorsx.HasReason(ev.Err, errorsx.ReasonTranscription) {
		t.Fatalf("expected transcription error event, got %+v", ev)
	}
}

func TestOpenFailureIsReasoned(t *testing.T) {
	a := newAdapter(mock.NewSTT(mock.STTConfig{OpenErr: errors.New("auth")}))
	_, err := a.Open(context.Background(), stt.Options{})
	if !errorsx.HasReason(err, errorsx.ReasonStreamOpen) {
		t.Fatalf("expected stream open reason, got %v", err)
	}
}

func TestRecognizeBatch(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Transcript: " xin chào ", Language: "vi-VN"})
	got, err := newAdapter(tr).Recognize(context.Background(), []byte{1, 2}, stt.Options{SourceLanguage: "vi-VN"})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if got.Text != "xin chào" || got.Language != "vi-VN" {
		t.Fatalf("unexpected transcript %+v", got)
	}
}

func TestRecognizeBatchFailures(t *testing.T) {
	a := newAdapter(mock.NewSTT(mock.STTConfig{BatchErr: errors.New("quota")}))
	if _, err := a.Recognize(context.Background(), []byte{1}, stt.Options{}); !errorsx.HasReason(err, errorsx.ReasonTranscription) {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if _, err := a.Recognize(context.Background(), nil, stt.Options{}); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected empty transcript for empty payload, got %v", err)
	}
}

func drainEvents(t *testing.T, s *Stream) []Event {
	t.Helper()
	var out []Event
	for {
		ev, ok := nextEvent(t, s)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestBufferedStreamReportsProviderError(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Buffered: true, BatchErr: errors.New("speech api down")})
	a := newAdapter(tr)
	// The provider error and the end of results arrive together; run enough
	// streams that either select order is exercised.
	for i := 0; i < 200; i++ {
		s, err := a.Open(context.Background(), stt.Options{})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		_ = s.Write([]byte{1})
		_ = s.End()
		events := drainEvents(t, s)
		if len(events) != 1 {
			t.Fatalf("run %d: expected one event, got %+v", i, events)
		}
		err = events[0].Err
		if errors.Is(err, ErrEmptyTranscript) || !errorsx.HasReason(err, errorsx.ReasonTranscription) {
			t.Fatalf("run %d: expected provider failure, got %v", i, err)
		}
		if err.Error() != "speech api down" {
			t.Fatalf("run %d: expected provider message, got %q", i, err.Error())
		}
		_ = s.Close()
	}
}

func TestBufferedStreamRetriesThroughGuard(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{
		Buffered:      true,
		Transcript:    "hello",
		BatchErr:      errors.New("unavailable"),
		BatchFailures: 1,
	})
	a := NewAdapter(tr, resilience.Guard{Retry: resilience.NewRetryPolicy(2, time.Millisecond)})
	s, err := a.Open(context.Background(), stt.Options{SourceLanguage: "en-US"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	_ = s.Write([]byte("ab"))
	_ = s.Write([]byte("c"))
	_ = s.End()

	events := drainEvents(t, s)
	if len(events) != 1 || events[0].Err != nil || events[0].Transcript.Text != "hello" {
		t.Fatalf("expected retried transcript, got %+v", events)
	}
	batches := tr.Batches()
	if len(batches) != 2 || string(batches[1]) != "abc" {
		t.Fatalf("expected two batch calls with the joined audio, got %q", batches)
	}
}

func TestBufferedStreamFailuresOpenBreaker(t *testing.T) {
	tr := mock.NewSTT(mock.STTConfig{Buffered: true, BatchErr: resilience.RateLimitError{Provider: "mock"}})
	a := NewAdapter(tr, resilience.Guard{
		Retry:   resilience.NewRetryPolicy(0, time.Millisecond),
		Breaker: resilience.NewCircuitBreaker(1, time.Minute),
	})
	s, err := a.Open(context.Background(), stt.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Write([]byte{1})
	_ = s.End()
	drainEvents(t, s)
	_ = s.Close()

	if _, err := a.Open(context.Background(), stt.Options{}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit after rate limited stream, got %v", err)
	}
}
