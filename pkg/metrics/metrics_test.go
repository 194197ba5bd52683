package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserverCountsEvents(t *testing.T) {
	p := NewPrometheusObserver("test")
	Record(p, EventSessionOpened, 1, nil)
	Record(p, EventSessionOpened, 1, nil)
	Record(p, EventSessionClosed, 1, nil)
	Record(p, EventTurnCompleted, 0.3, map[string]string{"outcome": "ok"})
	Record(p, EventChunkDropped, 1, map[string]string{"reason": "stream_closed"})

	if got := testutil.ToFloat64(p.sessionsActive); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(p.chunksDropped.WithLabelValues("stream_closed")); got != 1 {
		t.Fatalf("expected 1 dropped chunk, got %v", got)
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"test_sessions_opened_total 2",
		"test_sessions_active 1",
		`test_turns_total{outcome="ok"} 1`,
		`test_chunks_dropped_total{reason="stream_closed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestAsyncObserverDrainsOnClose(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, 16)
	for i := 0; i < 10; i++ {
		Record(a, EventChunkDropped, 1, nil)
	}
	a.Close()
	a.Close()
	if got := mem.Count(EventChunkDropped); got != 10 {
		t.Fatalf("expected 10 events after close, got %d", got)
	}
	Record(a, EventChunkDropped, 1, nil)
	if got := mem.Count(EventChunkDropped); got != 10 {
		t.Fatalf("expected events after close to be ignored, got %d", got)
	}
}

func TestSamplingObserverOnlySamplesNamedEvents(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5, EventChunkDropped)
	for i := 0; i < 10; i++ {
		Record(s, EventChunkDropped, 1, nil)
		Record(s, EventTurnCompleted, 1, nil)
	}
	if got := mem.Count(EventChunkDropped); got != 5 {
		t.Fatalf("expected 5 sampled chunk events, got %d", got)
	}
	if got := mem.Count(EventTurnCompleted); got != 10 {
		t.Fatalf("expected all turn events, got %d", got)
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	a, b := NewMemoryObserver(), NewMemoryObserver()
	Record(Fanout{a, nil, b}, EventSessionOpened, 1, nil)
	if a.Count(EventSessionOpened) != 1 || b.Count(EventSessionOpened) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}
}

func TestJSONLObserverWritesOneLinePerEvent(t *testing.T) {
	var buf strings.Builder
	o := NewJSONLObserver(&buf)
	Record(o, EventTurnCompleted, 0.25, map[string]string{"outcome": "degraded"})
	Record(o, EventSessionClosed, 1, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var first struct {
		Msg   string            `json:"msg"`
		Value float64           `json:"value"`
		Tags  map[string]string `json:"tags"`
		Time  string            `json:"time"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first.Msg != EventTurnCompleted || first.Value != 0.25 || first.Tags["outcome"] != "degraded" {
		t.Fatalf("unexpected event line: %+v", first)
	}
	if first.Time != "" {
		t.Fatalf("expected handler time to be dropped, got %q", first.Time)
	}
	if strings.Contains(lines[1], `"tags"`) {
		t.Fatalf("expected no tags group for untagged event: %s", lines[1])
	}
}
