package openai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/juru/pkg/adapters/stt"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/redact"
	openai "github.com/sashabaranov/go-openai"
)

// whisperLanguages maps the language names Whisper reports onto base codes.
var whisperLanguages = map[string]string{
	"arabic":     "ar",
	"chinese":    "zh",
	"dutch":      "nl",
	"english":    "en",
	"french":     "fr",
	"german":     "de",
	"hindi":      "hi",
	"indonesian": "id",
	"italian":    "it",
	"japanese":   "ja",
	"korean":     "ko",
	"portuguese": "pt",
	"russian":    "ru",
	"spanish":    "es",
	"thai":       "th",
	"vietnamese": "vi",
}

// Transcriber uses the Whisper transcription endpoint. Streams buffer audio
// until End.
type Transcriber struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

func NewTranscriber(cfg Config) (*Transcriber, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Transcriber{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "openai_stt"),
	}, nil
}

func (t *Transcriber) Name() string { return "openai_whisper" }

func (t *Transcriber) RecognizeBatch(ctx context.Context, audio []byte, opts stt.Options) (stt.Result, error) {
	req := openai.AudioRequest{
		Model:    t.cfg.STTModel,
		FilePath: "audio." + fileExtension(opts.Encoding),
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if opts.SourceLanguage != "" {
		req.Language = baseCode(opts.SourceLanguage)
	}
	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		return stt.Result{}, classify(fmt.Errorf("transcription: %w", err))
	}
	lang := whisperLanguage(resp.Language)
	if lang == "" {
		lang = opts.SourceLanguage
	}
	t.logger.Debug("transcription_completed",
		slog.String("session_id", opts.SessionID),
		slog.String("language", lang),
		slog.Float64("duration_s", resp.Duration),
		slog.String("transcript", redact.Text(resp.Text)))
	return stt.Result{
		Text:       strings.TrimSpace(resp.Text),
		Language:   lang,
		IsFinal:    true,
		Confidence: confidence(resp),
	}, nil
}

func (t *Transcriber) OpenStream(ctx context.Context, opts stt.Options) (stt.Stream, error) {
	return stt.NewBufferedStream(ctx, opts, t.RecognizeBatch), nil
}

// BufferedStreams reports that streams recognize once, on End.
func (t *Transcriber) BufferedStreams() bool { return true }

func confidence(resp openai.AudioResponse) float64 {
	if len(resp.Segments) == 0 {
		return 0
	}
	total := 0.0
	for _, seg := range resp.Segments {
		total += 1 - seg.NoSpeechProb
	}
	return total / float64(len(resp.Segments))
}

func whisperLanguage(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if code, ok := whisperLanguages[name]; ok {
		return code
	}
	if len(name) == 2 {
		return name
	}
	return ""
}

func fileExtension(encoding string) string {
	switch strings.ToLower(encoding) {
	case "ogg_opus":
		return "ogg"
	case "linear16":
		return "wav"
	case "mp3":
		return "mp3"
	case "flac":
		return "flac"
	default:
		return "webm"
	}
}

func baseCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}

var (
	_ stt.Transcriber = (*Transcriber)(nil)
	_ stt.Buffered    = (*Transcriber)(nil)
)
