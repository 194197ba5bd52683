package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/juru/pkg/adapters/translate"
	"github.com/harunnryd/juru/pkg/logging"
	openai "github.com/sashabaranov/go-openai"
)

const (
	translatePrompt = "Translate the user's message into the language with ISO 639-1 code %q. Reply with the translation only."
	detectPrompt    = "Identify the language of the user's message. Reply with its ISO 639-1 code only."
)

// Translator prompts a chat model for translation and language detection.
type Translator struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func NewTranslator(cfg Config) (*Translator, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Translator{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "openai_translate"),
	}, nil
}

func (t *Translator) Name() string { return "openai_translate" }

func (t *Translator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	return t.complete(ctx, fmt.Sprintf(translatePrompt, targetLanguage), text)
}

func (t *Translator) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := t.complete(ctx, detectPrompt, text)
	if err != nil {
		return "", err
	}
	code := baseCode(strings.Trim(out, " .\"'`"))
	if len(code) < 2 || len(code) > 3 {
		return "", fmt.Errorf("openai: unexpected language code %q", out)
	}
	return code, nil
}

func (t *Translator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("openai: empty completion")
	}
	t.logger.Debug("completion_received",
		slog.String("model", t.cfg.Model),
		slog.Int("total_tokens", resp.Usage.TotalTokens))
	return out, nil
}

var _ translate.Translator = (*Translator)(nil)
