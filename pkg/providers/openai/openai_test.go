package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/resilience"
)

type fakeOpenAI struct {
	mu       sync.Mutex
	status   int
	reply    string
	language string
	forms    []map[string]string
	chats    []chatBody
	speeches []map[string]any
}

type chatBody struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
		return
	}
	switch r.URL.Path {
	case "/v1/audio/transcriptions":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			form["filename"] = files[0].Filename
		}
		f.forms = append(f.forms, form)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"` + f.language + `","duration":1.2,"text":" hello there ","segments":[{"no_speech_prob":0.1},{"no_speech_prob":0.3}]}`))
	case "/v1/chat/completions":
		var body chatBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.chats = append(f.chats, body)
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chat-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": f.reply}, "finish_reason": "stop"}},
			"usage":   map[string]any{"total_tokens": 12},
		}
		_ = json.NewEncoder(w).Encode(resp)
	case "/v1/audio/speech":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.speeches = append(f.speeches, body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOpenAI) set(fn func(f *fakeOpenAI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type recorded struct {
	forms    []map[string]string
	chats    []chatBody
	speeches []map[string]any
}

func (f *fakeOpenAI) snapshot() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recorded{forms: f.forms, chats: f.chats, speeches: f.speeches}
}

func newFake(t *testing.T) (*fakeOpenAI, Config) {
	t.Helper()
	f := &fakeOpenAI{language: "vietnamese", reply: "xin chào"}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, Config{APIKey: "test", BaseURL: srv.URL + "/v1"}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := NewTranslator(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestTranscribeMapsLanguageName(t *testing.T) {
	f, cfg := newFake(t)
	tr, err := NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	res, err := tr.RecognizeBatch(context.Background(), []byte("webm"), stt.Options{SourceLanguage: "vi-VN", Encoding: "WEBM_OPUS"})
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if res.Text != "hello there" || res.Language != "vi" || !res.IsFinal {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Confidence < 0.79 || res.Confidence > 0.81 {
		t.Fatalf("unexpected confidence %v", res.Confidence)
	}
	form := f.snapshot().forms[0]
	if form["language"] != "vi" || form["filename"] != "audio.webm" || form["model"] != "whisper-1" {
		t.Fatalf("unexpected form: %+v", form)
	}
}

func TestStreamBuffersUntilEnd(t *testing.T) {
	_, cfg := newFake(t)
	tr, err := NewTranscriber(cfg)
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	s, _ := tr.OpenStream(context.Background(), stt.Options{})
	defer s.Close()
	_ = s.Write([]byte("abc"))
	_ = s.End()
	res, ok := <-s.Results()
	if !ok || res.Text != "hello there" {
		t.Fatalf("unexpected stream result %+v ok=%v", res, ok)
	}
}

func TestTranslateSendsTargetInPrompt(t *testing.T) {
	f, cfg := newFake(t)
	tr, err := NewTranslator(cfg)
	if err != nil {
		t.Fatalf("new translator: %v", err)
	}
	out, err := tr.Translate(context.Background(), "hello", "vi")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "xin chào" {
		t.Fatalf("unexpected translation %q", out)
	}
	chat := f.snapshot().chats[0]
	if len(chat.Messages) != 2 || !strings.Contains(chat.Messages[0].Content, `"vi"`) || chat.Messages[1].Content != "hello" {
		t.Fatalf("unexpected chat request: %+v", chat)
	}
}

func TestDetectLanguageNormalizesCode(t *testing.T) {
	f, cfg := newFake(t)
	f.set(func(f *fakeOpenAI) { f.reply = "VI." })
	tr, err := NewTranslator(cfg)
	if err != nil {
		t.Fatalf("new translator: %v", err)
	}
	lang, err := tr.DetectLanguage(context.Background(), "xin chào")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if lang != "vi" {
		t.Fatalf("expected vi, got %q", lang)
	}

	f.set(func(f *fakeOpenAI) { f.reply = "I think this is Vietnamese" })
	if _, err := tr.DetectLanguage(context.Background(), "xin chào"); err == nil {
		t.Fatal("expected error for unparseable detection")
	}
}

func TestSynthesizeReturnsMP3(t *testing.T) {
	f, cfg := newFake(t)
	s, err := NewSynthesizer(cfg)
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	audio, err := s.Synthesize(context.Background(), "xin chào", tts.VoiceProfile{LanguageCode: "vi-VN", Name: "nova"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio.Data) != "mp3-bytes" || audio.Encoding != tts.EncodingMP3 || audio.Language != "vi-VN" {
		t.Fatalf("unexpected audio %+v", audio)
	}
	speech := f.snapshot().speeches[0]
	if speech["voice"] != "nova" || speech["response_format"] != "mp3" {
		t.Fatalf("unexpected speech request %+v", speech)
	}
}

func TestRateLimitIsClassified(t *testing.T) {
	f, cfg := newFake(t)
	f.set(func(f *fakeOpenAI) { f.status = http.StatusTooManyRequests })
	tr, err := NewTranslator(cfg)
	if err != nil {
		t.Fatalf("new translator: %v", err)
	}
	_, err = tr.Translate(context.Background(), "hello", "vi")
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
