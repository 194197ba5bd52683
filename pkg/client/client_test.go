package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/orchestrator"
	"github.com/harunnryd/juru/pkg/protocol"
	"github.com/harunnryd/juru/pkg/providers/mock"
	"github.com/harunnryd/juru/pkg/recognition"
	"github.com/harunnryd/juru/pkg/resilience"
	"github.com/harunnryd/juru/pkg/session"
	"github.com/harunnryd/juru/pkg/transports/ws"
)

func newRelay(t *testing.T, stt mock.STTConfig) string {
	t.Helper()
	orch := orchestrator.New(mock.NewTranslator(mock.TranslatorConfig{}), mock.NewTTS(mock.TTSConfig{}), orchestrator.Config{
		Languages: orchestrator.Languages{
			Pairs:   map[string]string{"en": "vi", "vi": "en"},
			Regions: map[string]string{"en": "en-US", "vi": "vi-VN"},
		},
		Voices: orchestrator.Voices{ByLanguage: map[string]tts.VoiceProfile{
			"en": {LanguageCode: "en-US"},
			"vi": {LanguageCode: "vi-VN"},
		}},
	})
	tr := ws.New(ws.Config{}, ws.SessionFactory(session.Config{}, session.Deps{
		Recognizer:   recognition.NewAdapter(mock.NewSTT(stt), resilience.Guard{}),
		Orchestrator: orch,
	}), nil, nil)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func TestOneShotReturnsTranslation(t *testing.T) {
	url := newRelay(t, mock.STTConfig{Transcript: "xin chào"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.OneShot([]byte("clip"), "en"); err != nil {
		t.Fatalf("one-shot: %v", err)
	}
	ev, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	audio, err := Audio(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Event != protocol.EventAudio || string(audio) != "mp3:en-US:[en] xin chào" {
		t.Fatalf("unexpected event %+v audio %q", ev, audio)
	}
}

func TestStreamChunksAudio(t *testing.T) {
	url := newRelay(t, mock.STTConfig{Transcript: "hello"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.Stream([]byte("0123456789"), "vi", 4, 0); err != nil {
		t.Fatalf("stream: %v", err)
	}
	ev, err := c.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	audio, _ := Audio(ev)
	if string(audio) != "mp3:vi-VN:[vi] hello" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestErrorEventIsReturned(t *testing.T) {
	url := newRelay(t, mock.STTConfig{BatchErr: errors.New("recognizer offline")})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_ = c.OneShot([]byte("clip"), "vi")
	_, err = c.Next(ctx)
	if !errors.Is(err, ErrServer) || !strings.Contains(err.Error(), "recognizer offline") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestNextHonoursContext(t *testing.T) {
	url := newRelay(t, mock.STTConfig{})
	c, err := Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
