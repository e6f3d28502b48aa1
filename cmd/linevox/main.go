// Command linevox is the voice-driven data-entry agent for construction
// estimating. It reads raw PCM audio from stdin (feed it with a capture tool
// such as arecord), segments speech into turns, and drives the estimate
// line-item store through a confirmation-gated conversation loop.
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
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/linevoxhq/linevox/internal/app"
	"github.com/linevoxhq/linevox/internal/config"
	"github.com/linevoxhq/linevox/internal/observe"
	"github.com/linevoxhq/linevox/pkg/audio/pipe"
	"github.com/linevoxhq/linevox/pkg/interpreter"
	"github.com/linevoxhq/linevox/pkg/interpreter/anyllm"
	oaiinterp "github.com/linevoxhq/linevox/pkg/interpreter/openai"
	"github.com/linevoxhq/linevox/pkg/speech"
	"github.com/linevoxhq/linevox/pkg/speech/deepgram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "linevox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "linevox: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("linevox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "linevox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithReplySink(func(reply string) { fmt.Println(reply) }),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Metrics endpoint + main loop ──────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return application.Run(gctx)
	})

	slog.Info("agent ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// The native OpenAI client gets JSON-mode enforcement; everything else
	// goes through the any-llm multiplexer.
	reg.RegisterInterpreter("openai", func(entry config.ProviderEntry) (interpreter.Interpreter, error) {
		var opts []oaiinterp.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaiinterp.WithBaseURL(entry.BaseURL))
		}
		return oaiinterp.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterInterpreter(providerName, func(entry config.ProviderEntry) (interpreter.Interpreter, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterInterpreter("ollama", func(entry config.ProviderEntry) (interpreter.Interpreter, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	reg.RegisterSpeech("deepgram", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the providers named in cfg plus the stdin audio
// device, and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	name := cfg.Providers.Interpreter.Name
	if name == "" {
		return nil, fmt.Errorf("providers.interpreter.name is required")
	}
	interp, err := reg.CreateInterpreter(cfg.Providers.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("create interpreter provider %q: %w", name, err)
	}
	ps.Interpreter = interp
	slog.Info("provider created", "kind", "interpreter", "name", name, "model", cfg.Providers.Interpreter.Model)

	name = cfg.Providers.Speech.Name
	if name == "" {
		return nil, fmt.Errorf("providers.speech.name is required")
	}
	sp, err := reg.CreateSpeech(cfg.Providers.Speech)
	if err != nil {
		return nil, fmt.Errorf("create speech provider %q: %w", name, err)
	}
	ps.Speech = sp
	slog.Info("provider created", "kind", "speech", "name", name, "model", cfg.Providers.Speech.Model)

	device, err := pipe.NewDevice(os.Stdin, pipe.Config{
		SampleRate: cfg.Turn.SampleRate,
		Channels:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create stdin audio device: %w", err)
	}
	ps.Device = device

	return ps, nil
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

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
