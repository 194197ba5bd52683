package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/redact"
	"google.golang.org/api/speech/v1"
)

// maxAlternativeLanguages is the service limit on alternative language codes.
const maxAlternativeLanguages = 3

type STTConfig struct {
	Credentials `mapstructure:",squash"`
	Encoding    string `mapstructure:"encoding"`
	SampleRate  int    `mapstructure:"sample_rate"`
	Model       string `mapstructure:"model"`
	Punctuation bool   `mapstructure:"punctuation"`
}

// Transcriber wraps the synchronous recognize endpoint. Streams buffer audio
// and recognize it in one request when ended.
type Transcriber struct {
	svc    *speech.Service
	cfg    STTConfig
	logger *slog.Logger
}

func NewTranscriber(ctx context.Context, cfg STTConfig) (*Transcriber, error) {
	opts, err := clientOptions(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}
	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return &Transcriber{
		svc:    svc,
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "google_stt"),
	}, nil
}

func (t *Transcriber) Name() string { return "google_speech" }

func (t *Transcriber) RecognizeBatch(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	primary, alternatives := languages(opts)
	rc := &speech.RecognitionConfig{
		Encoding:                   strings.ToUpper(firstNonEmpty(t.cfg.Encoding, opts.Encoding, "WEBM_OPUS")),
		SampleRateHertz:            int64(firstPositive(t.cfg.SampleRate, opts.SampleRate)),
		LanguageCode:               primary,
		AlternativeLanguageCodes:   alternatives,
		Model:                      t.cfg.Model,
		EnableAutomaticPunctuation: t.cfg.Punctuation,
	}
	req := &speech.RecognizeRequest{
		Config: rc,
		Audio:  &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}
	resp, err := t.svc.Speech.Recognize(req).Context(ctx).Do()
	if err != nil {
		return stt.Result{}, classify(t.Name(), err)
	}

	out := stt.Result{IsFinal: true, Language: primary}
	var texts []string
	for i, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		texts = append(texts, strings.TrimSpace(alt.Transcript))
		if i == 0 {
			out.Confidence = alt.Confidence
			if r.LanguageCode != "" {
				out.Language = r.LanguageCode
			}
		}
	}
	out.Text = strings.Join(texts, " ")
	t.logger.Debug("recognize_completed",
		slog.String("session_id", opts.SessionID),
		slog.Int("audio_bytes", len(audio)),
		slog.String("language", out.Language),
		slog.String("transcript", redact.Text(out.Text)))
	return out, nil
}

func (t *Transcriber) OpenStream(ctx context.Context, opts stt.Options) (stt.Stream, error) {
	return stt.NewBufferedStream(ctx, opts, t.RecognizeBatch), nil
}

// BufferedStreams reports that streams recognize once, on End.
func (t *Transcriber) BufferedStreams() bool { return true }

// languages splits the hint into the primary code and at most three
// alternatives, as the recognize API requires a primary language.
func languages(opts stt.Options) (string, []string) {
	primary := opts.SourceLanguage
	var rest []string
	for _, code := range opts.AlternativeLanguages {
		if primary == "" {
			primary = code
			continue
		}
		if strings.EqualFold(code, primary) || len(rest) == maxAlternativeLanguages {
			continue
		}
		rest = append(rest, code)
	}
	if primary == "" {
		primary = "en-US"
	}
	return primary, rest
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

var (
	_ stt.Transcriber = (*Transcriber)(nil)
	_ stt.Buffered    = (*Transcriber)(nil)
)
