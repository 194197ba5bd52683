package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonTranslation)
	if Reason(err) != ReasonTranslation {
		t.Fatalf("expected reason %s, got %s", ReasonTranslation, Reason(err))
	}
	if !HasReason(err, ReasonTranslation) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonTranscription)
	second := Wrap(first, ReasonSynthesis)
	if Reason(second) != ReasonTranscription {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonThroughFmtWrap(t *testing.T) {
	inner := New(ReasonProtocol, "bad frame")
	outer := fmt.Errorf("gateway: %w", inner)
	if Reason(outer) != ReasonProtocol {
		t.Fatalf("expected protocol reason through fmt wrap, got %s", Reason(outer))
	}
	var target assertErr
	if errors.As(outer, &target) {
		t.Fatalf("unexpected assertErr in chain")
	}
}

func TestReasonNil(t *testing.T) {
	if Wrap(nil, ReasonSynthesis) != nil {
		t.Fatalf("expected nil wrap to stay nil")
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(New(ReasonTranscriptionEmpty, "Audio could not be transcribed.")); got != "Audio could not be transcribed." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(ReasonedError{Reason: ReasonSynthesis}); got != "synthesis_failed" {
		t.Fatalf("unexpected message %q", got)
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
