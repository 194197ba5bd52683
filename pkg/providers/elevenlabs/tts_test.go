package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/resilience"
)

func newServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if strings.Contains(r.URL.Path, "busy") {
			http.Error(w, "too many", http.StatusTooManyRequests)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func chunk(data string, final bool) map[string]any {
	msg := map[string]any{"isFinal": final}
	if data != "" {
		msg["audio"] = base64.StdEncoding.EncodeToString([]byte(data))
	}
	return msg
}

func TestSynthesizeCollectsChunks(t *testing.T) {
	type request struct {
		path, format string
		texts        []string
	}
	got := make(chan request, 1)
	base := newServer(t, func(conn *websocket.Conn, r *http.Request) {
		req := request{path: r.URL.Path, format: r.URL.Query().Get("output_format")}
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			req.texts = append(req.texts, msg["text"].(string))
		}
		got <- req
		_ = conn.WriteJSON(chunk("mp3-", false))
		_ = conn.WriteJSON(chunk("bytes", false))
		_ = conn.WriteJSON(chunk("", true))
		_, _, _ = conn.ReadMessage()
	})
	s, err := New(Config{APIKey: "key", BaseURL: base})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	audio, err := s.Synthesize(context.Background(), "xin chào", tts.VoiceProfile{LanguageCode: "vi-VN", Name: "voice-1"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio.Data) != "mp3-bytes" || audio.Encoding != tts.EncodingMP3 || audio.Language != "vi-VN" {
		t.Fatalf("unexpected audio %+v", audio)
	}
	req := <-got
	if req.path != "/v1/text-to-speech/voice-1/stream-input" || req.format != "mp3_44100_128" {
		t.Fatalf("unexpected request %s %s", req.path, req.format)
	}
	if len(req.texts) != 3 || req.texts[1] != "xin chào " || req.texts[2] != "" {
		t.Fatalf("unexpected text messages %q", req.texts)
	}
}

func TestSynthesizeReportsServiceError(t *testing.T) {
	base := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteJSON(map[string]any{"error": "quota_exceeded", "message": "no credits"})
		_, _, _ = conn.ReadMessage()
	})
	s, _ := New(Config{APIKey: "key", BaseURL: base, VoiceID: "v"})
	_, err := s.Synthesize(context.Background(), "hi", tts.VoiceProfile{LanguageCode: "en-US"})
	if err == nil || !strings.Contains(err.Error(), "no credits") {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestSynthesizeRateLimited(t *testing.T) {
	base := newServer(t, func(*websocket.Conn, *http.Request) {})
	s, _ := New(Config{APIKey: "key", BaseURL: base, VoiceID: "busy"})
	_, err := s.Synthesize(context.Background(), "hi", tts.VoiceProfile{LanguageCode: "en-US"})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestSynthesizeHonoursContext(t *testing.T) {
	base := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
	})
	s, _ := New(Config{APIKey: "key", BaseURL: base, VoiceID: "v"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Synthesize(ctx, "hi", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestNewRequiresKeyAndVoice(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
	s, _ := New(Config{APIKey: "key"})
	if _, err := s.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); !resilience.IsPermanent(err) {
		t.Fatalf("expected permanent error without voice, got %v", err)
	}
}
