package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/tts"
)

type TTSConfig struct {
	Err error
	// FailText fails synthesis for these exact inputs only.
	FailText map[string]bool
	// Delay simulates provider latency.
	Delay time.Duration
}

// SynthCall records one Synthesize invocation.
type SynthCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Synthesizer returns "mp3:<language>:<text>" as audio bytes.
type Synthesizer struct {
	cfg TTSConfig

	mu    sync.Mutex
	calls []SynthCall
}

func NewTTS(cfg TTSConfig) *Synthesizer {
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	s.mu.Lock()
	s.calls = append(s.calls, SynthCall{Text: text, Voice: voice})
	s.mu.Unlock()
	if s.cfg.Delay > 0 {
		select {
		case <-time.After(s.cfg.Delay):
		case <-ctx.Done():
			return tts.Audio{}, ctx.Err()
		}
	}
	if s.cfg.Err != nil {
		return tts.Audio{}, s.cfg.Err
	}
	if s.cfg.FailText[text] {
		return tts.Audio{}, errSynthesis
	}
	return tts.Audio{
		Data:     []byte("mp3:" + voice.LanguageCode + ":" + text),
		Encoding: tts.EncodingMP3,
		Language: voice.LanguageCode,
	}, nil
}

// Calls returns every Synthesize invocation in order.
func (s *Synthesizer) Calls() []SynthCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SynthCall(nil), s.calls...)
}

type mockError string

func (e mockError) Error() string { return string(e) }

const errSynthesis = mockError("mock synthesis failure")

var _ tts.Synthesizer = (*Synthesizer)(nil)
