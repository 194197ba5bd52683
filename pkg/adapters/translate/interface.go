package translate

import "context"

// Translator defines the contract for text translation vendors.
type Translator interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Translate renders text in the target base language code.
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	// DetectLanguage returns the base language code of text.
	DetectLanguage(ctx context.Context, text string) (string, error)
}
