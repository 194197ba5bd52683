package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/harunnryd/juru/pkg/client"
	"github.com/harunnryd/juru/pkg/juru"
	"github.com/harunnryd/juru/pkg/logging"
	"github.com/harunnryd/juru/pkg/protocol"
	"github.com/harunnryd/juru/pkg/runner"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/juru.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "juru",
		Short:        "Realtime speech translation relay",
		Long:         "juru accepts browser audio over a websocket, transcribes it, translates it and speaks the translation back.",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCheckCmd(), newSendCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := juru.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			engine, err := juru.NewEngine(ctx, juru.EngineOptions{Config: cfg})
			if err != nil {
				return err
			}
			return engine.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", envOr("JURU_CONFIG", defaultConfigPath), "path to the config file")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and build every configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := juru.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if _, err := juru.NewEngine(cmd.Context(), juru.EngineOptions{Config: cfg}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: stt=%s translate=%s tts=%s mode=%s\n",
				cfg.Vendors.STT.Provider, cfg.Vendors.Translate.Provider, cfg.Vendors.TTS.Provider, cfg.Session.Mode)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", envOr("JURU_CONFIG", defaultConfigPath), "path to the config file")
	return cmd
}

type sendOptions struct {
	url       string
	file      string
	target    string
	outDir    string
	stream    bool
	chunkSize int
	pace      time.Duration
	timeout   time.Duration
}

func newSendCmd() *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a recorded clip to a running relay and save the returned audio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "ws://localhost:3000/", "relay websocket URL")
	f.StringVarP(&opts.file, "file", "f", "", "audio file to send")
	f.StringVarP(&opts.target, "target", "t", "", "target language; empty lets the relay derive it")
	f.StringVarP(&opts.outDir, "out", "o", ".", "directory for returned audio")
	f.BoolVar(&opts.stream, "stream", false, "send start/audio/stop instead of a single audio event")
	f.IntVar(&opts.chunkSize, "chunk-size", 16<<10, "bytes per audio chunk when streaming")
	f.DurationVar(&opts.pace, "pace", 100*time.Millisecond, "delay between chunks when streaming")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "how long to wait for the translation")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runSend(cmd *cobra.Command, opts sendOptions) error {
	logger := logging.NewComponentLogger(logging.InitLogger("info", "text"), "send")
	audio, err := os.ReadFile(opts.file)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	c, err := client.Dial(ctx, opts.url, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.stream {
		err = c.Stream(audio, opts.target, opts.chunkSize, opts.pace)
	} else {
		err = c.OneShot(audio, opts.target)
	}
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logger.Info("clip_sent", slog.Int("bytes", len(audio)), slog.Bool("stream", opts.stream))

	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if ev.Event != protocol.EventAudio {
			continue
		}
		data, err := client.Audio(ev)
		if err != nil {
			return fmt.Errorf("decode audio: %w", err)
		}
		kind := ev.Kind
		if kind == "" {
			kind = protocol.KindTranslation
		}
		name := filepath.Join(opts.outDir, fmt.Sprintf("%s-%s.mp3", kind, ev.Language))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return err
		}
		logger.Info("audio_saved", slog.String("file", name), slog.Int("bytes", len(data)))
		if kind == protocol.KindTranslation {
			return nil
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "juru", runner.Version)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
