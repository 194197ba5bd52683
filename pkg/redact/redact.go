// Package redact masks personal data in transcripts before they are logged.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// maxLogged caps transcript length in log lines.
const maxLogged = 160

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text prepares a transcript for logging: masks emails and phone numbers when
// enabled and always truncates long text.
func Text(in string) string {
	out := strings.TrimSpace(in)
	if out == "" {
		return out
	}
	if enabled.Load() {
		out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
		out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	}
	if r := []rune(out); len(r) > maxLogged {
		out = string(r[:maxLogged]) + "…"
	}
	return out
}
