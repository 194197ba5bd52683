package juru

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/adapters/translate"
	"github.com/harunnryd/juru/pkg/adapters/tts"
)

type TranscriberFactory func(ctx context.Context, cfg Config) (stt.Transcriber, error)
type TranslatorFactory func(ctx context.Context, cfg Config) (translate.Translator, error)
type SynthesizerFactory func(ctx context.Context, cfg Config) (tts.Synthesizer, error)

// ProviderRegistry maps vendor names to the factories that build them from
// the loaded configuration.
type ProviderRegistry struct {
	stt       map[string]TranscriberFactory
	translate map[string]TranslatorFactory
	tts       map[string]SynthesizerFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:       make(map[string]TranscriberFactory),
		translate: make(map[string]TranslatorFactory),
		tts:       make(map[string]SynthesizerFactory),
	}
}

func (r *ProviderRegistry) RegisterSTT(name string, factory TranscriberFactory) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTranslate(name string, factory TranslatorFactory) {
	r.translate[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory SynthesizerFactory) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildTranscriber(ctx context.Context, cfg Config) (stt.Transcriber, error) {
	fn := r.stt[providerKey(cfg.Vendors.STT.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s (have %s)", cfg.Vendors.STT.Provider, names(r.stt))
	}
	return fn(ctx, cfg)
}

func (r *ProviderRegistry) BuildTranslator(ctx context.Context, cfg Config) (translate.Translator, error) {
	fn := r.translate[providerKey(cfg.Vendors.Translate.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("translate provider not registered: %s (have %s)", cfg.Vendors.Translate.Provider, names(r.translate))
	}
	return fn(ctx, cfg)
}

func (r *ProviderRegistry) BuildSynthesizer(ctx context.Context, cfg Config) (tts.Synthesizer, error) {
	fn := r.tts[providerKey(cfg.Vendors.TTS.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s (have %s)", cfg.Vendors.TTS.Provider, names(r.tts))
	}
	return fn(ctx, cfg)
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func names[F any](m map[string]F) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
