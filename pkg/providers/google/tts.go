package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/logging"
	"google.golang.org/api/texttospeech/v1"
)

type TTSConfig struct {
	Credentials  `mapstructure:",squash"`
	SpeakingRate float64 `mapstructure:"speaking_rate"`
}

type Synthesizer struct {
	svc    *texttospeech.Service
	cfg    TTSConfig
	logger *slog.Logger
}

func NewSynthesizer(ctx context.Context, cfg TTSConfig) (*Synthesizer, error) {
	opts, err := clientOptions(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google text-to-speech client: %w", err)
	}
	return &Synthesizer{
		svc:    svc,
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "google_tts"),
	}, nil
}

func (s *Synthesizer) Name() string { return "google_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: voice.LanguageCode,
			Name:         voice.Name,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  s.cfg.SpeakingRate,
		},
	}
	resp, err := s.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return tts.Audio{}, classify(s.Name(), err)
	}
	if resp.AudioContent == "" {
		return tts.Audio{}, errors.New("google tts: empty audio")
	}
	data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("google tts: decode audio: %w", err)
	}
	s.logger.Debug("synthesis_completed",
		slog.String("voice", voice.Name),
		slog.Int("audio_bytes", len(data)))
	return tts.Audio{Data: data, Encoding: tts.EncodingMP3, Language: voice.LanguageCode}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
