// Package orchestrator turns a finalized transcript into synthesized audio:
// it resolves the target language, translates, and synthesizes the result and
// optionally an echo of the original utterance.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/translate"
	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/errorsx"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/recognition"
	"github.com/harunnryd/juru/pkg/redact"
	"github.com/harunnryd/juru/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// ErrNoTarget is returned when no target language is given and none can be derived.
var ErrNoTarget = errors.New("target language could not be resolved")

type Config struct {
	Languages   Languages
	Voices      Voices
	FillerWords []string
	// TranslateGuard and SynthesisGuard wrap collaborator calls.
	TranslateGuard resilience.Guard
	SynthesisGuard resilience.Guard
	// CallTimeout bounds each collaborator call; zero means no extra bound.
	CallTimeout time.Duration
}

type Orchestrator struct {
	translator  translate.Translator
	synthesizer tts.Synthesizer
	cfg         Config
	cleaner     FillerCleaner
	logger      *slog.Logger
}

func New(translator translate.Translator, synthesizer tts.Synthesizer, cfg Config) *Orchestrator {
	return &Orchestrator{
		translator:  translator,
		synthesizer: synthesizer,
		cfg:         cfg,
		cleaner:     NewFillerCleaner(cfg.FillerWords),
		logger:      logging.NewComponentLogger(slog.Default(), "orchestrator"),
	}
}

// Request is one turn to execute.
type Request struct {
	SessionID  string
	Transcript recognition.Transcript
	// TargetLanguage may be empty; it is then derived from the source language.
	TargetLanguage string
	Echo           bool
}

// Result carries everything a turn produced. Translated is nil when synthesis failed.
type Result struct {
	SourceLanguage string
	TargetLanguage string
	Text           string
	Translation    string
	// Degraded is set when translation failed and the original text was used.
	Degraded   bool
	Echo       *tts.Audio
	Translated *tts.Audio
}

// Run executes one turn. The returned error is non-nil only when the turn
// produced no translated audio; Result is still populated with what succeeded.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	logger := o.logger.With(slog.String("session_id", req.SessionID))
	text := o.cleaner.Clean(req.Transcript.Text)
	if text == "" {
		return Result{}, errorsx.Wrap(recognition.ErrEmptyTranscript, errorsx.ReasonTranscriptionEmpty)
	}
	res := Result{Text: text}

	res.SourceLanguage = Base(req.Transcript.Language)
	if res.SourceLanguage == "" {
		res.SourceLanguage = o.detect(ctx, text, logger)
	}
	target, err := o.resolveTarget(req.TargetLanguage, res.SourceLanguage)
	if err != nil {
		return res, err
	}
	res.TargetLanguage = target

	res.Translation = text
	if res.SourceLanguage != target {
		translated, err := o.translate(ctx, text, target)
		if err != nil {
			res.Degraded = true
			logger.Warn("translation_failed_fallback_original",
				slog.String("target", target),
				slog.String("reason_code", string(errorsx.ReasonTranslation)),
				slog.String("error", err.Error()))
		} else {
			res.Translation = translated
		}
	}
	logger.Info("turn_translated",
		slog.String("source", res.SourceLanguage),
		slog.String("target", target),
		slog.Bool("degraded", res.Degraded),
		slog.String("text", redact.Text(text)),
		slog.String("translation", redact.Text(res.Translation)))

	var g errgroup.Group
	var synthErr error
	g.Go(func() error {
		audio, err := o.synthesize(ctx, res.Translation, target)
		if err != nil {
			synthErr = err
			return nil
		}
		res.Translated = &audio
		return nil
	})
	if req.Echo && res.SourceLanguage != "" {
		g.Go(func() error {
			audio, err := o.synthesize(ctx, text, res.SourceLanguage)
			if err != nil {
				logger.Warn("echo_synthesis_dropped", slog.String("error", err.Error()))
				return nil
			}
			res.Echo = &audio
			return nil
		})
	}
	_ = g.Wait()

	if res.Translated == nil {
		logger.Warn("translation_synthesis_failed",
			slog.String("target", target),
			slog.String("error", synthErr.Error()))
		return res, errorsx.Wrap(synthErr, errorsx.ReasonSynthesis)
	}
	return res, nil
}

// ResolveTarget exposes target resolution for callers that need the
// recognition hint before a transcript exists.
func (o *Orchestrator) ResolveTarget(explicit, source string) (string, error) {
	return o.resolveTarget(explicit, Base(source))
}

// Languages returns the configured language table.
func (o *Orchestrator) Languages() Languages { return o.cfg.Languages }

func (o *Orchestrator) resolveTarget(explicit, source string) (string, error) {
	if t := Base(explicit); t != "" {
		return t, nil
	}
	if source != "" {
		if t, ok := o.cfg.Languages.Target(source); ok {
			return t, nil
		}
	}
	if t := Base(o.cfg.Languages.DefaultTarget); t != "" {
		return t, nil
	}
	return "", errorsx.Wrap(ErrNoTarget, errorsx.ReasonTranslation)
}

func (o *Orchestrator) detect(ctx context.Context, text string, logger *slog.Logger) string {
	var lang string
	err := o.cfg.TranslateGuard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := o.callContext(ctx)
		defer cancel()
		l, err := o.translator.DetectLanguage(ctx, text)
		if err != nil {
			return err
		}
		lang = l
		return nil
	})
	if err != nil {
		logger.Warn("language_detection_failed",
			slog.String("reason_code", string(errorsx.ReasonDetection)),
			slog.String("error", err.Error()))
		return ""
	}
	return Base(lang)
}

func (o *Orchestrator) translate(ctx context.Context, text, target string) (string, error) {
	var out string
	err := o.cfg.TranslateGuard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := o.callContext(ctx)
		defer cancel()
		t, err := o.translator.Translate(ctx, text, target)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranslation)
	}
	if out == "" {
		return "", errorsx.New(errorsx.ReasonTranslation, "empty translation")
	}
	return out, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text, language string) (tts.Audio, error) {
	voice := o.cfg.Voices.Select(language, o.cfg.Languages)
	var out tts.Audio
	err := o.cfg.SynthesisGuard.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := o.callContext(ctx)
		defer cancel()
		a, err := o.synthesizer.Synthesize(ctx, text, voice)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonSynthesis)
	}
	if len(out.Data) == 0 {
		return tts.Audio{}, errorsx.New(errorsx.ReasonSynthesis, "synthesis returned no audio")
	}
	if out.Language == "" {
		out.Language = voice.LanguageCode
	}
	if out.Encoding == "" {
		out.Encoding = tts.EncodingMP3
	}
	return out, nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.CallTimeout)
}
