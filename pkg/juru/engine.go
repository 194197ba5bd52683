package juru

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/harunnryd/juru/pkg/configutil"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/metrics"
	"github.com/harunnryd/juru/pkg/orchestrator"
	"github.com/harunnryd/juru/pkg/recognition"
	"github.com/harunnryd/juru/pkg/redact"
	"github.com/harunnryd/juru/pkg/resilience"
	"github.com/harunnryd/juru/pkg/runner"
	"github.com/harunnryd/juru/pkg/session"
	"github.com/harunnryd/juru/pkg/transports/ws"
)

// Engine owns the process-wide collaborators and the gateway lifecycle.
type Engine struct {
	cfg       Config
	transport *ws.Transport
	runner    *runner.LifecycleRunner
	asyncObs  *metrics.AsyncObserver
	prom      *metrics.PrometheusObserver
	logger    *slog.Logger
}

type EngineOptions struct {
	Config Config
	// Providers defaults to a registry holding the bundled vendors.
	Providers *ProviderRegistry
	// EventLog receives metric events as JSON lines when metrics.log_events
	// is enabled. Defaults to stderr.
	EventLog io.Writer
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.Redact)
	logger := logging.NewComponentLogger(slog.Default(), "engine")

	logger.Info("juru_init",
		slog.String("stt_provider", cfg.Vendors.STT.Provider),
		slog.String("translate_provider", cfg.Vendors.Translate.Provider),
		slog.String("tts_provider", cfg.Vendors.TTS.Provider),
		slog.String("mode", cfg.Session.Mode),
		slog.String("addr", cfg.Server.ServerAddr))

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
		RegisterBuiltins(providers)
	}
	transcriber, err := providers.BuildTranscriber(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build transcriber: %w", err)
	}
	translator, err := providers.BuildTranslator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build translator: %w", err)
	}
	synthesizer, err := providers.BuildSynthesizer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}

	var prom *metrics.PrometheusObserver
	var sinks metrics.Fanout
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusObserver(cfg.Metrics.Namespace)
		sinks = append(sinks, prom)
	}
	if cfg.Metrics.LogEvents {
		w := opts.EventLog
		if w == nil {
			w = os.Stderr
		}
		var events metrics.Observer = metrics.NewJSONLObserver(w)
		if cfg.Metrics.SampleRate < 1 {
			events = metrics.NewSamplingObserver(events, cfg.Metrics.SampleRate, metrics.EventChunkDropped)
		}
		sinks = append(sinks, events)
	}
	asyncObs := metrics.NewAsyncObserver(sinks, 2048)

	orch := orchestrator.New(translator, synthesizer, orchestrator.Config{
		Languages:      cfg.LanguageTable(),
		Voices:         cfg.VoiceTable(),
		FillerWords:    cfg.Cleanup.FillerWords,
		TranslateGuard: newGuard(cfg.Resilience),
		SynthesisGuard: newGuard(cfg.Resilience),
		CallTimeout:    configutil.Millis(cfg.Resilience.CallTimeoutMS, 0),
	})
	deps := session.Deps{
		Recognizer:   recognition.NewAdapter(transcriber, newGuard(cfg.Resilience)),
		Orchestrator: orch,
		Observer:     asyncObs,
		Logger:       slog.Default(),
	}

	var metricsHandler http.Handler
	if prom != nil {
		metricsHandler = prom.Handler()
	}
	transport := ws.New(cfg.Server, ws.SessionFactory(cfg.SessionSettings(), deps), asyncObs, metricsHandler)

	e := &Engine{
		cfg:       cfg,
		transport: transport,
		asyncObs:  asyncObs,
		prom:      prom,
		logger:    logger,
	}
	hooks := runner.Hooks{
		OnStart: func(ctx context.Context) error {
			if err := transport.Start(ctx); err != nil {
				return err
			}
			logger.Info("gateway_listening", slog.String("addr", cfg.Server.ServerAddr))
			return nil
		},
		OnStop: func() {
			asyncObs.Close()
			if dropped := asyncObs.Dropped(); dropped > 0 {
				logger.Warn("metrics_events_dropped", slog.Int64("count", dropped))
			}
			logger.Info("juru_stopped")
		},
	}
	e.runner = runner.NewLifecycleRunner(runner.DrainFunc(transport.Stop), hooks,
		configutil.Millis(cfg.ShutdownTimeoutMS, 10*time.Second))
	return e, nil
}

// Run serves until ctx ends, then drains open sessions.
func (e *Engine) Run(ctx context.Context) error {
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

// Handler exposes the gateway routes without binding a listener.
func (e *Engine) Handler() http.Handler {
	return e.transport.Handler()
}

func (e *Engine) ActiveConnections() int {
	return e.transport.ActiveConnections()
}

func newGuard(cfg ResilienceConfig) resilience.Guard {
	return resilience.Guard{
		Retry:   resilience.NewRetryPolicy(cfg.Retries, configutil.Millis(cfg.BackoffMS, 200*time.Millisecond)),
		Breaker: resilience.NewCircuitBreaker(cfg.CircuitThreshold, configutil.Millis(cfg.CircuitCooldownMS, 10*time.Second)),
	}
}
