package redact

import (
	"strings"
	"testing"
)

func TestTextRedactsWhenEnabled(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	out := Text("call me at +84 912 345 678 or mail an@example.com")
	if strings.Contains(out, "912") || strings.Contains(out, "example.com") {
		t.Fatalf("expected PII masked, got %q", out)
	}
	if !strings.Contains(out, "[REDACTED_PHONE]") || !strings.Contains(out, "[REDACTED_EMAIL]") {
		t.Fatalf("expected markers, got %q", out)
	}
}

func TestTextPassThroughWhenDisabled(t *testing.T) {
	SetEnabled(false)
	in := "xin chao 0912345678"
	if out := Text(in); out != in {
		t.Fatalf("expected unchanged text, got %q", out)
	}
}

func TestTextTruncates(t *testing.T) {
	out := Text(strings.Repeat("a", 400))
	if len([]rune(out)) != maxLogged+1 {
		t.Fatalf("expected truncated text, got %d runes", len([]rune(out)))
	}
}
