package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/logging"
	openai "github.com/sashabaranov/go-openai"
)

type Synthesizer struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "openai_tts"),
	}, nil
}

func (s *Synthesizer) Name() string { return "openai_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	name := s.cfg.Voice
	if name == "" {
		name = voice.Name
	}
	if name == "" {
		name = string(openai.VoiceAlloy)
	}
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.TTSModel),
		Input:          text,
		Voice:          openai.SpeechVoice(name),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          s.cfg.Speed,
	})
	if err != nil {
		return tts.Audio{}, classify(err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return tts.Audio{}, errors.New("openai tts: empty audio")
	}
	s.logger.Debug("synthesis_completed",
		slog.String("voice", name),
		slog.Int("audio_bytes", len(data)))
	return tts.Audio{Data: data, Encoding: tts.EncodingMP3, Language: voice.LanguageCode}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
