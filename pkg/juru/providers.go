package juru

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/adapters/translate"
	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/configutil"
	"github.com/harunnryd/juru/pkg/providers/deepgram"
	"github.com/harunnryd/juru/pkg/providers/elevenlabs"
	"github.com/harunnryd/juru/pkg/providers/google"
	"github.com/harunnryd/juru/pkg/providers/mock"
	"github.com/harunnryd/juru/pkg/providers/openai"
)

var googleCredentialKeys = []string{"api_key", "credentials_file", "endpoint"}

type deepgramSettings struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	Encoding       string `mapstructure:"encoding"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Interim        *bool  `mapstructure:"interim"`
	UtteranceEndMS *int   `mapstructure:"utterance_end_ms"`
	FinalizeWaitMS int    `mapstructure:"finalize_wait_ms"`
}

type mockSTTSettings struct {
	Transcript        string `mapstructure:"transcript"`
	Language          string `mapstructure:"language"`
	InterimTranscript string `mapstructure:"interim_transcript"`
	EmitInterim       *bool  `mapstructure:"emit_interim"`
}

type mockTranslateSettings struct {
	Detected   string                       `mapstructure:"detected"`
	Dictionary map[string]map[string]string `mapstructure:"dictionary"`
}

type mockTTSSettings struct {
	DelayMS int `mapstructure:"delay_ms"`
}

// RegisterBuiltins registers every bundled vendor under its config name.
func RegisterBuiltins(reg *ProviderRegistry) {
	reg.RegisterSTT("google", func(ctx context.Context, cfg Config) (stt.Transcriber, error) {
		var settings google.STTConfig
		if err := configutil.Decode("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: append([]string{"encoding", "sample_rate", "model", "punctuation"}, googleCredentialKeys...),
		}, &settings); err != nil {
			return nil, err
		}
		settings.Encoding = configutil.StringValue(settings.Encoding, cfg.Audio.Encoding)
		if settings.SampleRate == 0 {
			settings.SampleRate = cfg.Audio.SampleRate
		}
		return google.NewTranscriber(ctx, settings)
	})

	reg.RegisterSTT("deepgram", func(_ context.Context, cfg Config) (stt.Transcriber, error) {
		var settings deepgramSettings
		if err := configutil.Decode("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "encoding", "sample_rate", "interim", "utterance_end_ms", "finalize_wait_ms"},
		}, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		utteranceEnd := configutil.IntValue(settings.UtteranceEndMS, 1000)
		if utteranceEnd > 5000 {
			return nil, fmt.Errorf("vendors.stt.settings.utterance_end_ms must be between 0 and 5000, got %d", utteranceEnd)
		}
		sampleRate := settings.SampleRate
		if sampleRate == 0 {
			sampleRate = cfg.Audio.SampleRate
		}
		return deepgram.New(deepgram.Config{
			APIKey:         settings.APIKey,
			Model:          settings.Model,
			Language:       settings.Language,
			Encoding:       configutil.StringValue(settings.Encoding, cfg.Audio.Encoding),
			SampleRate:     sampleRate,
			Interim:        configutil.BoolValue(settings.Interim, false),
			UtteranceEndMS: utteranceEnd,
			FinalizeWait:   configutil.Millis(settings.FinalizeWaitMS, 1500*time.Millisecond),
		}), nil
	})

	reg.RegisterSTT("openai", func(_ context.Context, cfg Config) (stt.Transcriber, error) {
		settings, err := decodeOpenAI("vendors.stt.settings", cfg.Vendors.STT.Settings, "stt_model")
		if err != nil {
			return nil, err
		}
		return openai.NewTranscriber(settings)
	})

	reg.RegisterSTT("mock", func(_ context.Context, cfg Config) (stt.Transcriber, error) {
		var settings mockSTTSettings
		if err := configutil.Decode("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: []string{"transcript", "language", "interim_transcript", "emit_interim"},
		}, &settings); err != nil {
			return nil, err
		}
		return mock.NewSTT(mock.STTConfig{
			Transcript:        settings.Transcript,
			Language:          settings.Language,
			InterimTranscript: settings.InterimTranscript,
			EmitInterim:       configutil.BoolValue(settings.EmitInterim, false),
		}), nil
	})

	reg.RegisterTranslate("google", func(ctx context.Context, cfg Config) (translate.Translator, error) {
		var settings google.TranslateConfig
		if err := configutil.Decode("vendors.translate.settings", cfg.Vendors.Translate.Settings, configutil.Schema{
			Optional: append([]string{"model"}, googleCredentialKeys...),
		}, &settings); err != nil {
			return nil, err
		}
		return google.NewTranslator(ctx, settings)
	})

	reg.RegisterTranslate("openai", func(_ context.Context, cfg Config) (translate.Translator, error) {
		settings, err := decodeOpenAI("vendors.translate.settings", cfg.Vendors.Translate.Settings, "model")
		if err != nil {
			return nil, err
		}
		return openai.NewTranslator(settings)
	})

	reg.RegisterTranslate("mock", func(_ context.Context, cfg Config) (translate.Translator, error) {
		var settings mockTranslateSettings
		if err := configutil.Decode("vendors.translate.settings", cfg.Vendors.Translate.Settings, configutil.Schema{
			Optional: []string{"detected", "dictionary"},
		}, &settings); err != nil {
			return nil, err
		}
		return mock.NewTranslator(mock.TranslatorConfig{
			Detected:   settings.Detected,
			Dictionary: settings.Dictionary,
		}), nil
	})

	reg.RegisterTTS("google", func(ctx context.Context, cfg Config) (tts.Synthesizer, error) {
		var settings google.TTSConfig
		if err := configutil.Decode("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: append([]string{"speaking_rate"}, googleCredentialKeys...),
		}, &settings); err != nil {
			return nil, err
		}
		return google.NewSynthesizer(ctx, settings)
	})

	reg.RegisterTTS("elevenlabs", func(_ context.Context, cfg Config) (tts.Synthesizer, error) {
		var settings elevenlabs.Config
		if err := configutil.Decode("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"voice_id", "model_id", "output_format", "base_url", "stability", "similarity_boost"},
		}, &settings); err != nil {
			return nil, err
		}
		return elevenlabs.New(settings)
	})

	reg.RegisterTTS("openai", func(_ context.Context, cfg Config) (tts.Synthesizer, error) {
		settings, err := decodeOpenAI("vendors.tts.settings", cfg.Vendors.TTS.Settings, "tts_model", "voice", "speed")
		if err != nil {
			return nil, err
		}
		return openai.NewSynthesizer(settings)
	})

	reg.RegisterTTS("mock", func(_ context.Context, cfg Config) (tts.Synthesizer, error) {
		var settings mockTTSSettings
		if err := configutil.Decode("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"delay_ms"},
		}, &settings); err != nil {
			return nil, err
		}
		return mock.NewTTS(mock.TTSConfig{Delay: time.Duration(settings.DelayMS) * time.Millisecond}), nil
	})
}

// decodeOpenAI accepts the shared connection keys plus the role-specific ones.
func decodeOpenAI(path string, input map[string]any, keys ...string) (openai.Config, error) {
	var settings openai.Config
	if err := configutil.Decode(path, input, configutil.Schema{
		Required: []string{"api_key"},
		Optional: append([]string{"base_url"}, keys...),
	}, &settings); err != nil {
		return openai.Config{}, err
	}
	if err := configutil.RequireString(settings.APIKey, path+".api_key"); err != nil {
		return openai.Config{}, err
	}
	settings.BaseURL = strings.TrimSpace(settings.BaseURL)
	return settings, nil
}
