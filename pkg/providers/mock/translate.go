package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/harunnryd/juru/pkg/adapters/translate"
)

type TranslatorConfig struct {
	// Dictionary maps target language to source text to translated text.
	Dictionary map[string]map[string]string
	// Detected is returned by DetectLanguage; defaults to "en".
	Detected  string
	Err       error
	DetectErr error
}

// Translator returns dictionary entries, or "[lang] text" for unknown input.
type Translator struct {
	cfg TranslatorConfig

	mu    sync.Mutex
	calls []string
}

func NewTranslator(cfg TranslatorConfig) *Translator {
	if cfg.Detected == "" {
		cfg.Detected = "en"
	}
	return &Translator{cfg: cfg}
}

func (t *Translator) Name() string { return "mock_translate" }

func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, target+":"+text)
	t.mu.Unlock()
	if t.cfg.Err != nil {
		return "", t.cfg.Err
	}
	if byText, ok := t.cfg.Dictionary[target]; ok {
		if out, ok := byText[text]; ok {
			return out, nil
		}
	}
	return "[" + strings.ToLower(target) + "] " + text, nil
}

func (t *Translator) DetectLanguage(ctx context.Context, text string) (string, error) {
	if t.cfg.DetectErr != nil {
		return "", t.cfg.DetectErr
	}
	return t.cfg.Detected, nil
}

// Calls returns "target:text" for every Translate call.
func (t *Translator) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

var _ translate.Translator = (*Translator)(nil)
