// Command voicelayer is a voice session server for AI coding assistants. It
// exposes the converse, speak and voice_status tools over MCP stdio and owns
// the microphone for the lifetime of the process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voicelayer/voicelayer/internal/config"
	"github.com/voicelayer/voicelayer/internal/health"
	"github.com/voicelayer/voicelayer/internal/notify"
	"github.com/voicelayer/voicelayer/internal/observe"
	"github.com/voicelayer/voicelayer/internal/orchestrate"
	"github.com/voicelayer/voicelayer/internal/playback"
	"github.com/voicelayer/voicelayer/internal/record"
	"github.com/voicelayer/voicelayer/internal/sessionlock"
	"github.com/voicelayer/voicelayer/internal/stopsignal"
	"github.com/voicelayer/voicelayer/pkg/provider/stt"
	"github.com/voicelayer/voicelayer/pkg/provider/stt/deepgram"
	"github.com/voicelayer/voicelayer/pkg/provider/stt/whisper"
	"github.com/voicelayer/voicelayer/pkg/provider/tts"
	ttsdaemon "github.com/voicelayer/voicelayer/pkg/provider/tts/daemon"
	"github.com/voicelayer/voicelayer/pkg/provider/vad"
	"github.com/voicelayer/voicelayer/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// Environment variables read here and nowhere else. The core packages take
// all credentials and overrides as parameters.
const (
	envSTTBackend  = "VOICELAYER_STT_BACKEND"
	envDeepgramKey = "DEEPGRAM_API_KEY"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultConfig := filepath.Join(defaultHome(), "config.yaml")

	configPath := flag.String("config", defaultConfig, "path to the YAML configuration file")
	diagAddr := flag.String("diagnostics-addr", "", "override diagnostics.listen_addr (metrics and health endpoints)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voicelayer", version)
		return 0
	}

	cfg, err := loadConfig(*configPath, *configPath == defaultConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelayer: %v\n", err)
		return 1
	}
	if *diagAddr != "" {
		cfg.Diagnostics.ListenAddr = *diagAddr
	}

	// The backend override pins loudly: a typo must not fall back to a
	// different backend that ships audio somewhere unintended.
	if backend := os.Getenv(envSTTBackend); backend != "" {
		if !slices.Contains(config.ValidSTTBackends, backend) {
			fmt.Fprintf(os.Stderr, "voicelayer: %s=%q is not a known backend (valid: %v)\n",
				envSTTBackend, backend, config.ValidSTTBackends)
			return 1
		}
		cfg.STT.Backend = backend
	}

	// Logs go to stderr; stdout belongs to the MCP stdio transport.
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("voicelayer starting",
		"version", version,
		"config", *configPath,
		"lock_file", cfg.Paths.LockFile,
		"stop_file", cfg.Paths.StopFile,
		"stt_backend", orUnset(cfg.STT.Backend, "auto"),
		"tts_enabled", cfg.TTS.Enabled,
	)

	if err := os.MkdirAll(cfg.Paths.Home, 0o755); err != nil {
		slog.Error("cannot create state directory", "dir", cfg.Paths.Home, "err", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicelayer",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// A status UI is optional; a failed socket bind must not take down the
	// voice session.
	var notifier notify.Notifier = notify.Nop{}
	if !cfg.Notify.Disabled {
		sock, err := notify.ListenSocket(cfg.Notify.Socket)
		if err != nil {
			slog.Warn("status socket unavailable, notifications disabled", "err", err)
		} else {
			defer sock.Close()
			notifier = sock
		}
	}

	reg := config.NewRegistry()
	registerBackends(reg, os.Getenv(envDeepgramKey))

	selector, err := buildSelector(cfg, reg)
	if err != nil {
		slog.Error("failed to build transcription backends", "err", err)
		return 1
	}

	vadEngine, err := reg.CreateVAD("energy", cfg)
	if err != nil {
		slog.Error("failed to build voice activity engine", "err", err)
		return 1
	}

	mutex := sessionlock.New(sessionlock.NewFileStore(cfg.Paths.LockFile))
	stopSig := stopsignal.NewFile(cfg.Paths.StopFile)
	recorder := record.NewRecorder(record.NewFFmpegCapturer(), vadEngine, stopSig, notifier, record.Config{
		FrameSizeMs:     cfg.Recording.FrameMs,
		SpeechThreshold: cfg.Recording.SpeechThreshold,
	})

	orchOpts := []orchestrate.Option{
		orchestrate.WithNotifier(notifier),
		orchestrate.WithMetrics(metrics),
	}
	var speech tts.Provider
	if cfg.TTS.Enabled {
		speech, err = reg.CreateTTS(ttsdaemon.ProviderName, cfg)
		if err != nil {
			slog.Error("failed to build synthesis backend", "err", err)
			return 1
		}
		orchOpts = append(orchOpts, orchestrate.WithSpeech(speech, playback.NewFFplay()))
	}

	orch := orchestrate.New(mutex, stopSig, recorder, selector, "mcp", orchOpts...)
	defer func() {
		if err := orch.Close(); err != nil {
			slog.Warn("orchestrator close error", "err", err)
		}
	}()

	// Hot-reload recording thresholds and log level while the session runs.
	// Paths and backends are part of the cross-process protocol and need a
	// restart.
	recording := func() config.RecordingConfig { return cfg.Recording }
	if _, err := os.Stat(*configPath); err == nil {
		reloader, err := config.NewReloader(*configPath, applyReload)
		if err != nil {
			slog.Warn("config hot-reload disabled", "err", err)
		} else {
			defer reloader.Stop()
			recording = reloader.Recording
		}
	}

	server := newToolServer(orch, recording, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, &mcpsdk.StdioTransport{})
	})
	if cfg.Diagnostics.ListenAddr != "" {
		g.Go(func() error {
			return serveDiagnostics(gctx, cfg, metrics, selector, speech)
		})
	}

	slog.Info("voicelayer ready")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig loads the YAML file at path. When the default path does not
// exist, built-in defaults apply so a fresh install works with zero
// configuration; an explicitly passed path must exist.
func loadConfig(path string, isDefault bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) && isDefault {
		return config.Default(), nil
	}
	return cfg, err
}

// registerBackends wires every backend that ships with voicelayer into reg.
func registerBackends(reg *config.Registry, deepgramKey string) {
	reg.RegisterSTT(whisper.ProviderName, func(cfg *config.Config) (stt.Provider, error) {
		var opts []whisper.Option
		if cfg.STT.Whisper.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.STT.Whisper.Model))
		}
		if cfg.STT.Whisper.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.STT.Whisper.Language))
		}
		return whisper.New(cfg.STT.Whisper.ServerURL, opts...)
	})

	reg.RegisterSTT(whisper.NativeProviderName, func(cfg *config.Config) (stt.Provider, error) {
		var opts []whisper.NativeOption
		if cfg.STT.Whisper.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(cfg.STT.Whisper.Language))
		}
		return whisper.NewNative(cfg.STT.Whisper.NativeModelPath, opts...)
	})

	reg.RegisterSTT(deepgram.ProviderName, func(cfg *config.Config) (stt.Provider, error) {
		var opts []deepgram.Option
		if cfg.STT.Deepgram.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.STT.Deepgram.Model))
		}
		if cfg.STT.Deepgram.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.STT.Deepgram.Language))
		}
		return deepgram.New(deepgramKey, opts...)
	})

	reg.RegisterTTS(ttsdaemon.ProviderName, func(cfg *config.Config) (tts.Provider, error) {
		return ttsdaemon.New(cfg.TTS.DaemonURL, cfg.TTS.ReferenceWAV, cfg.TTS.ReferenceText)
	})

	reg.RegisterVAD("energy", func(cfg *config.Config) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildSelector constructs the transcription backends in preference order:
// local engines first, cloud last. Backends without their prerequisites are
// skipped at construction; availability is probed per utterance.
func buildSelector(cfg *config.Config, reg *config.Registry) (*stt.Selector, error) {
	var providers []stt.Provider
	for _, name := range []string{whisper.ProviderName, whisper.NativeProviderName, deepgram.ProviderName} {
		if name == whisper.NativeProviderName && cfg.STT.Whisper.NativeModelPath == "" {
			continue
		}
		p, err := reg.CreateSTT(name, cfg)
		if err != nil {
			// A broken backend is fatal only when pinned; otherwise the
			// remaining backends carry the session.
			if cfg.STT.Backend == name {
				return nil, fmt.Errorf("pinned backend %q: %w", name, err)
			}
			slog.Warn("skipping transcription backend", "backend", name, "err", err)
			continue
		}
		providers = append(providers, p)
		slog.Debug("registered transcription backend", "backend", name)
	}

	var opts []stt.SelectorOption
	if cfg.STT.Backend != "" {
		opts = append(opts, stt.WithOverride(cfg.STT.Backend))
	}
	return stt.NewSelector(providers, opts...), nil
}

// serveDiagnostics runs the metrics and health HTTP listener until ctx is
// cancelled.
func serveDiagnostics(ctx context.Context, cfg *config.Config, metrics *observe.Metrics, sel *stt.Selector, speech tts.Provider) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checks := []health.Check{
		health.Transcription(sel),
		health.StateDir(cfg.Paths.Home),
	}
	if speech != nil {
		checks = append(checks, health.Synthesis(speech))
	}
	health.New(checks...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Diagnostics.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("diagnostics listening", "addr", cfg.Diagnostics.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("diagnostics shutdown error", "err", err)
		}
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// applyReload applies hot-reloadable settings from a rewritten config file.
// Frame size and speech threshold are construction-time and take effect on
// restart; the per-ask settings apply to the next interaction.
func applyReload(d config.ConfigDiff, _ *config.Config) {
	if d.LogLevelChanged {
		slog.SetDefault(newLogger(d.NewLogLevel))
		slog.Info("log level reloaded", "level", d.NewLogLevel)
	}
	if d.RecordingChanged {
		slog.Info("recording settings reloaded",
			"silence_mode", d.NewRecording.SilenceMode,
			"pre_speech_timeout", d.NewRecording.PreSpeechTimeout,
			"hard_timeout", d.NewRecording.HardTimeout,
		)
	}
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voicelayer"
	}
	return filepath.Join(home, ".voicelayer")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func orUnset(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
