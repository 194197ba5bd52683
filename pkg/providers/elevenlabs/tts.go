// Package elevenlabs implements a Synthesizer on the ElevenLabs stream-input
// websocket.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/resilience"
)

const defaultBaseURL = "wss://api.elevenlabs.io"

type Config struct {
	APIKey string `mapstructure:"api_key"`
	// VoiceID, when set, wins over the per-language voice names.
	VoiceID      string  `mapstructure:"voice_id"`
	ModelID      string  `mapstructure:"model_id"`
	OutputFormat string  `mapstructure:"output_format"`
	BaseURL      string  `mapstructure:"base_url"`
	Stability    float64 `mapstructure:"stability"`
	Similarity   float64 `mapstructure:"similarity_boost"`
}

type message struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesizer opens one stream-input connection per clip and collects the
// audio chunks until the final message.
type Synthesizer struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
}

func New(cfg Config) (*Synthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("elevenlabs api key required")
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.8
	}
	return &Synthesizer{
		cfg:    cfg,
		dialer: websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}, nil
}

func (s *Synthesizer) Name() string { return "elevenlabs_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Audio, error) {
	voiceID := s.cfg.VoiceID
	if voiceID == "" {
		voiceID = voice.Name
	}
	if voiceID == "" {
		return tts.Audio{}, resilience.Permanent(errors.New("elevenlabs voice id required"))
	}
	u := s.buildURL(voiceID)

	conn, resp, err := s.dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("elevenlabs_rate_limited", slog.String("status", resp.Status))
			return tts.Audio{}, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return tts.Audio{}, resilience.Permanent(fmt.Errorf("elevenlabs connect: %s", resp.Status))
		}
		return tts.Audio{}, fmt.Errorf("elevenlabs connect: %w", err)
	}
	defer conn.Close()

	// Unblock reads when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	init := map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        s.cfg.Stability,
			"similarity_boost": s.cfg.Similarity,
		},
	}
	for _, payload := range []map[string]any{
		init,
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(payload); err != nil {
			return tts.Audio{}, fmt.Errorf("elevenlabs send: %w", err)
		}
	}

	var buf bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return tts.Audio{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && buf.Len() > 0 {
				break
			}
			return tts.Audio{}, fmt.Errorf("elevenlabs read: %w", err)
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("elevenlabs_message_invalid", slog.Int("size_bytes", len(data)))
			continue
		}
		if msg.Error != "" {
			return tts.Audio{}, fmt.Errorf("elevenlabs %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return tts.Audio{}, fmt.Errorf("elevenlabs audio decode: %w", err)
			}
			buf.Write(raw)
		}
		if msg.IsFinal {
			break
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.logger.Debug("synthesis_completed",
		slog.String("voice_id", voiceID),
		slog.Int("audio_bytes", buf.Len()))
	return tts.Audio{Data: buf.Bytes(), Encoding: tts.EncodingMP3, Language: voice.LanguageCode}, nil
}

func (s *Synthesizer) buildURL(voiceID string) string {
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
