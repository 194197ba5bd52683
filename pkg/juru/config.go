package juru

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/juru/pkg/adapters/tts"
	"github.com/harunnryd/juru/pkg/orchestrator"
	"github.com/harunnryd/juru/pkg/session"
	"github.com/harunnryd/juru/pkg/transports/ws"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ws.Config                   `mapstructure:"server"`
	Session       SessionConfig               `mapstructure:"session"`
	Audio         AudioConfig                 `mapstructure:"audio"`
	Languages     LanguageConfig              `mapstructure:"languages"`
	Voices        map[string]tts.VoiceProfile `mapstructure:"voices"`
	VoicesDefault tts.VoiceProfile            `mapstructure:"voices_default"`
	Cleanup       CleanupConfig               `mapstructure:"cleanup"`
	Vendors       VendorsConfig               `mapstructure:"vendors"`
	Resilience    ResilienceConfig            `mapstructure:"resilience"`
	Metrics       MetricsConfig               `mapstructure:"metrics"`
	LogLevel      string                      `mapstructure:"log_level"`
	LogFormat     string                      `mapstructure:"log_format"`
	Privacy       PrivacyConfig               `mapstructure:"privacy"`
	// ShutdownTimeoutMS bounds the drain of open connections on stop.
	ShutdownTimeoutMS int `mapstructure:"shutdown_timeout_ms"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT       VendorConfig `mapstructure:"stt"`
	Translate VendorConfig `mapstructure:"translate"`
	TTS       VendorConfig `mapstructure:"tts"`
}

type SessionConfig struct {
	Mode           string `mapstructure:"mode"`
	Echo           bool   `mapstructure:"echo"`
	EchoGapMS      int    `mapstructure:"echo_gap_ms"`
	TurnTimeoutMS  int    `mapstructure:"turn_timeout_ms"`
	TurnBoundary   string `mapstructure:"turn_boundary"`
	MaxBufferBytes int    `mapstructure:"max_buffer_bytes"`
}

// AudioConfig describes what clients send; it is passed to transcribers as a hint.
type AudioConfig struct {
	Encoding   string `mapstructure:"encoding"`
	SampleRate int    `mapstructure:"sample_rate"`
}

type LanguageConfig struct {
	DefaultTarget string            `mapstructure:"default_target"`
	Pairs         map[string]string `mapstructure:"pairs"`
	Regions       map[string]string `mapstructure:"regions"`
	AutoDetect    bool              `mapstructure:"auto_detect"`
}

type CleanupConfig struct {
	FillerWords []string `mapstructure:"filler_words"`
}

type ResilienceConfig struct {
	Retries           int `mapstructure:"retries"`
	BackoffMS         int `mapstructure:"backoff_ms"`
	CircuitThreshold  int `mapstructure:"circuit_threshold"`
	CircuitCooldownMS int `mapstructure:"circuit_cooldown_ms"`
	CallTimeoutMS     int `mapstructure:"call_timeout_ms"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	LogEvents bool   `mapstructure:"log_events"`
	// SampleRate applies to chunk_dropped events in the event log.
	SampleRate float64 `mapstructure:"sample_rate"`
}

type PrivacyConfig struct {
	Redact bool `mapstructure:"redact"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", defaultAddr())
	v.SetDefault("server.ws_path", "/")
	v.SetDefault("server.health_body", ws.DefaultHealthBody)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.max_message_bytes", 10<<20)
	v.SetDefault("server.messages_per_second", 0)
	v.SetDefault("server.burst", 50)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("session.mode", string(session.ModeStreaming))
	v.SetDefault("session.echo", false)
	v.SetDefault("session.echo_gap_ms", 300)
	v.SetDefault("session.turn_timeout_ms", 30000)
	v.SetDefault("session.turn_boundary", string(session.BoundaryStop))
	v.SetDefault("session.max_buffer_bytes", 25<<20)
	v.SetDefault("audio.encoding", "WEBM_OPUS")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("languages.default_target", "vi")
	v.SetDefault("languages.auto_detect", false)
	v.SetDefault("cleanup.filler_words", []string{"um", "uh", "uhm", "erm", "hmm", "ờ", "ừm"})
	v.SetDefault("vendors.stt.provider", "google")
	v.SetDefault("vendors.translate.provider", "google")
	v.SetDefault("vendors.tts.provider", "google")
	v.SetDefault("resilience.retries", 1)
	v.SetDefault("resilience.backoff_ms", 200)
	v.SetDefault("resilience.circuit_threshold", 5)
	v.SetDefault("resilience.circuit_cooldown_ms", 10000)
	v.SetDefault("resilience.call_timeout_ms", 15000)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "juru")
	v.SetDefault("metrics.log_events", false)
	v.SetDefault("metrics.sample_rate", 1.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("privacy.redact", true)
	v.SetDefault("shutdown_timeout_ms", 10000)
}

// defaultAddr honours the PORT variable set by most hosting platforms.
func defaultAddr() string {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + port
	}
	return ":3000"
}

// Map defaults are applied here rather than through viper, which would merge
// them into a configured table instead of replacing it.
func (c *Config) normalize() {
	if len(c.Languages.Pairs) == 0 {
		c.Languages.Pairs = map[string]string{"en": "vi", "vi": "en"}
	}
	if len(c.Languages.Regions) == 0 {
		c.Languages.Regions = map[string]string{"en": "en-US", "vi": "vi-VN"}
	}
	if len(c.Voices) == 0 {
		c.Voices = map[string]tts.VoiceProfile{
			"en": {LanguageCode: "en-US", Name: "en-US-Wavenet-D"},
			"vi": {LanguageCode: "vi-VN", Name: "vi-VN-Wavenet-D"},
		}
	}
	pairs := make(map[string]string, len(c.Languages.Pairs))
	for src, dst := range c.Languages.Pairs {
		pairs[orchestrator.Base(src)] = orchestrator.Base(dst)
	}
	c.Languages.Pairs = pairs
	regions := make(map[string]string, len(c.Languages.Regions))
	for base, region := range c.Languages.Regions {
		regions[orchestrator.Base(base)] = strings.TrimSpace(region)
	}
	c.Languages.Regions = regions
	voices := make(map[string]tts.VoiceProfile, len(c.Voices))
	for lang, profile := range c.Voices {
		voices[orchestrator.Base(lang)] = profile
	}
	c.Voices = voices
	c.Session.Mode = strings.ToLower(strings.TrimSpace(c.Session.Mode))
	c.Session.TurnBoundary = strings.ToLower(strings.TrimSpace(c.Session.TurnBoundary))
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.Translate.Provider) == "" {
		return fmt.Errorf("vendors.translate.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	switch session.Mode(c.Session.Mode) {
	case session.ModeStreaming, session.ModeBatch:
	default:
		return fmt.Errorf("session.mode must be streaming or batch, got %q", c.Session.Mode)
	}
	switch session.TurnBoundary(c.Session.TurnBoundary) {
	case session.BoundaryStop, session.BoundaryFinal:
	default:
		return fmt.Errorf("session.turn_boundary must be stop or final, got %q", c.Session.TurnBoundary)
	}
	if c.Metrics.SampleRate < 0 || c.Metrics.SampleRate > 1 {
		return fmt.Errorf("metrics.sample_rate must be within [0,1]")
	}
	return c.LanguageTable().Validate()
}

// LanguageTable returns the orchestrator view of the language settings.
func (c Config) LanguageTable() orchestrator.Languages {
	return orchestrator.Languages{
		Pairs:         c.Languages.Pairs,
		Regions:       c.Languages.Regions,
		DefaultTarget: c.Languages.DefaultTarget,
	}
}

func (c Config) VoiceTable() orchestrator.Voices {
	return orchestrator.Voices{ByLanguage: c.Voices, Default: c.VoicesDefault}
}

func (c Config) SessionSettings() session.Config {
	return session.Config{
		Mode:           session.Mode(c.Session.Mode),
		Boundary:       session.TurnBoundary(c.Session.TurnBoundary),
		Echo:           c.Session.Echo,
		EchoGap:        time.Duration(c.Session.EchoGapMS) * time.Millisecond,
		TurnTimeout:    time.Duration(c.Session.TurnTimeoutMS) * time.Millisecond,
		AutoDetect:     c.Languages.AutoDetect,
		Encoding:       c.Audio.Encoding,
		SampleRate:     c.Audio.SampleRate,
		MaxBufferBytes: c.Session.MaxBufferBytes,
	}
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.Translate.Settings = expandSettings(cfg.Vendors.Translate.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(v.MapIndex(key).String())))
			}
		}
	}
}
