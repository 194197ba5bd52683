// Package openai implements the Transcriber, Translator and Synthesizer on
// the OpenAI audio and chat completion APIs.
package openai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harunnryd/juru/pkg/resilience"
	openai "github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	// Model is the chat model used for translation and detection.
	Model string `mapstructure:"model"`
	// STTModel is the transcription model.
	STTModel string `mapstructure:"stt_model"`
	// TTSModel and Voice select speech synthesis. Voice, when set, wins over
	// the per-language voice names.
	TTSModel string  `mapstructure:"tts_model"`
	Voice    string  `mapstructure:"voice"`
	Speed    float64 `mapstructure:"speed"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.STTModel == "" {
		c.STTModel = openai.Whisper1
	}
	if c.TTSModel == "" {
		c.TTSModel = string(openai.TTSModel1)
	}
	return c
}

func newClient(cfg Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key required")
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return openai.NewClientWithConfig(cc), nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return resilience.RateLimitError{Provider: "openai", Message: err.Error()}
	case status >= 400 && status < 500:
		return resilience.Permanent(fmt.Errorf("openai: %w", err))
	}
	return err
}
