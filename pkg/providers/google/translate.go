package google

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/harunnryd/juru/pkg/adapters/translate"
	"github.com/harunnryd/juru/pkg/logging"
	gtranslate "google.golang.org/api/translate/v2"
)

type TranslateConfig struct {
	Credentials `mapstructure:",squash"`
	// Model is "nmt" or "base"; empty uses the service default.
	Model string `mapstructure:"model"`
}

type Translator struct {
	svc    *gtranslate.Service
	cfg    TranslateConfig
	logger *slog.Logger
}

func NewTranslator(ctx context.Context, cfg TranslateConfig) (*Translator, error) {
	opts, err := clientOptions(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	svc, err := gtranslate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google translate client: %w", err)
	}
	return &Translator{
		svc:    svc,
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "google_translate"),
	}, nil
}

func (t *Translator) Name() string { return "google_translate" }

func (t *Translator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	call := t.svc.Translations.List([]string{text}, targetLanguage).Format("text").Context(ctx)
	if t.cfg.Model != "" {
		call = call.Model(t.cfg.Model)
	}
	resp, err := call.Do()
	if err != nil {
		return "", classify(t.Name(), err)
	}
	if len(resp.Translations) == 0 {
		return "", errors.New("google translate: empty response")
	}
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}

func (t *Translator) DetectLanguage(ctx context.Context, text string) (string, error) {
	resp, err := t.svc.Detections.List([]string{text}).Context(ctx).Do()
	if err != nil {
		return "", classify(t.Name(), err)
	}
	if len(resp.Detections) == 0 || len(resp.Detections[0]) == 0 {
		return "", errors.New("google translate: no detection")
	}
	best := resp.Detections[0][0]
	for _, d := range resp.Detections[0][1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	t.logger.Debug("language_detected",
		slog.String("language", best.Language),
		slog.Float64("confidence", best.Confidence))
	return strings.ToLower(best.Language), nil
}

var _ translate.Translator = (*Translator)(nil)
