// Command carevoice is the main entry point for the CareVoice voice gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/carevoice/carevoice/internal/config"
	"github.com/carevoice/carevoice/internal/dispatch"
	"github.com/carevoice/carevoice/internal/fallback"
	"github.com/carevoice/carevoice/internal/health"
	"github.com/carevoice/carevoice/internal/intent"
	"github.com/carevoice/carevoice/internal/journal"
	"github.com/carevoice/carevoice/internal/normalize"
	"github.com/carevoice/carevoice/internal/observe"
	"github.com/carevoice/carevoice/internal/resilience"
	"github.com/carevoice/carevoice/internal/server"
	"github.com/carevoice/carevoice/internal/voice"
	"github.com/carevoice/carevoice/pkg/provider/llm"
	"github.com/carevoice/carevoice/pkg/provider/llm/anyllm"
	oaidirect "github.com/carevoice/carevoice/pkg/provider/llm/openai"
	"github.com/carevoice/carevoice/pkg/provider/stt"
	"github.com/carevoice/carevoice/pkg/provider/stt/assemblyai"
	"github.com/carevoice/carevoice/pkg/provider/stt/whisper"
	"github.com/carevoice/carevoice/pkg/provider/tts"
	"github.com/carevoice/carevoice/pkg/provider/tts/fptai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	// .env files carry API keys in development; absence is fine.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "carevoice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "carevoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("carevoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics ───────────────────────────────────────────────────────────────
	mp, shutdownMetrics, err := observe.InitProvider(observe.ProviderConfig{
		ServiceName:    "carevoice",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	normalizer := normalize.New()
	classifier := intent.New(cfg.Voice.Thresholds, intent.WithScreens(cfg.Screens))

	dispatchOpts := make([]dispatch.Option, 0, len(cfg.Screens))
	for _, sc := range cfg.Screens {
		if len(sc.Phrases) > 0 {
			dispatchOpts = append(dispatchOpts, dispatch.WithScreenLabel(sc.Name, sc.Phrases[0]))
		}
	}
	dispatcher := dispatch.New(dispatchOpts...)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Voice.Locale, normalizer)

	transcriber, err := buildTranscriber(cfg, reg)
	if err != nil {
		slog.Error("failed to build transcriber", "err", err)
		return 1
	}

	orchestrator, err := buildFallback(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build fallback classifier", "err", err)
		return 1
	}

	synthesizer, err := buildSynthesizer(cfg, reg)
	if err != nil {
		slog.Error("failed to build synthesizer", "err", err)
		return 1
	}

	// ── Journal ───────────────────────────────────────────────────────────────
	store, err := buildJournal(ctx, cfg)
	if err != nil {
		slog.Error("failed to open journal", "err", err)
		return 1
	}
	defer store.Close()

	// ── HTTP server ───────────────────────────────────────────────────────────
	checks := []health.Check{
		{Name: "journal", Probe: func(ctx context.Context) error {
			_, err := store.Recent(ctx, 1)
			return err
		}},
	}

	speakOpts := tts.SpeakOptions{Locale: cfg.Voice.Locale}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Health:     health.New(checks...),
		Metrics:    metrics,
		NewSession: func(observer voice.Observer, sink tts.Sink) *voice.Session {
			speaker := tts.NewSpeaker(synthesizer, sink, speakOpts,
				tts.WithFailureHook(func(error) { metrics.ProviderError("tts", "synthesize") }))
			return voice.NewSession(voice.Config{
				Transcriber: transcriber,
				Normalizer:  normalizer,
				Classifier:  classifier,
				Fallback:    orchestrator,
				Dispatcher:  dispatcher,
				Speaker:     speaker,
				Journal:     store,
				Metrics:     metrics,
				Observer:    observer,
				SettleDelay: cfg.Voice.SettleDelay,
				Thresholds:  cfg.Voice.Thresholds,
			})
		},
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry, locale string, normalizer *normalize.Normalizer) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("assemblyai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ASSEMBLYAI_API_KEY")
		}
		opts := []assemblyai.Option{
			assemblyai.WithLanguage(locale),
			assemblyai.WithTextFilter(normalizer.StripEcho),
		}
		if entry.BaseURL != "" {
			opts = append(opts, assemblyai.WithBaseURL(entry.BaseURL))
		}
		return assemblyai.New(apiKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := []whisper.Option{whisper.WithLanguage(locale)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// Providers routed through any-llm share the same pattern: optional
	// APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
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
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai-direct talks to the OpenAI API through the official SDK instead
	// of the any-llm router.
	reg.RegisterLLM("openai-direct", func(entry config.ProviderEntry) (llm.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []oaidirect.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaidirect.WithBaseURL(entry.BaseURL))
		}
		return oaidirect.New(apiKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("fptai", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("FPTAI_API_KEY")
		}
		var opts []fptai.Option
		if entry.BaseURL != "" {
			opts = append(opts, fptai.WithBaseURL(entry.BaseURL))
		}
		if voiceID := optString(entry.Options, "voice"); voiceID != "" {
			opts = append(opts, fptai.WithVoice(voiceID))
		}
		return fptai.New(apiKey, opts...)
	})
}

// buildTranscriber creates the configured STT chain: the primary transcriber,
// optionally wrapped with a circuit-broken fallback backend.
func buildTranscriber(cfg *config.Config, reg *config.Registry) (stt.Transcriber, error) {
	primary := cfg.Providers.STT
	if primary.Name == "" {
		slog.Warn("no STT provider configured; only text input will work")
		return nil, nil
	}

	p, err := reg.CreateSTT(primary)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", primary.Name)

	if cfg.Providers.FallbackSTT.Name == "" {
		return p, nil
	}

	fb, err := reg.CreateSTT(cfg.Providers.FallbackSTT)
	if err != nil {
		return nil, fmt.Errorf("create fallback stt provider %q: %w", cfg.Providers.FallbackSTT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.FallbackSTT.Name, "role", "fallback")

	chain := resilience.NewTranscriber(primary.Name, p, resilience.BreakerConfig{Name: primary.Name})
	chain.AddFallback(cfg.Providers.FallbackSTT.Name, fb)
	return chain, nil
}

// buildFallback creates the language-model fallback classifier, or nil when
// no LLM is configured.
func buildFallback(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*fallback.Orchestrator, error) {
	entry := cfg.Providers.LLM
	if entry.Name == "" {
		slog.Warn("no LLM provider configured; unrecognised utterances will not be escalated")
		return nil, nil
	}

	p, err := reg.CreateLLM(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)

	opts := []fallback.Option{fallback.WithMetrics(metrics)}
	if len(cfg.Screens) > 0 {
		screens := make([]string, 0, len(cfg.Screens))
		for _, sc := range cfg.Screens {
			screens = append(screens, sc.Name)
		}
		opts = append(opts, fallback.WithScreens(screens))
	}
	return fallback.New(p, cfg.Voice.Thresholds, opts...), nil
}

// buildSynthesizer creates the configured TTS backend, or nil for text-only
// deployments.
func buildSynthesizer(cfg *config.Config, reg *config.Registry) (tts.Synthesizer, error) {
	entry := cfg.Providers.TTS
	if entry.Name == "" {
		slog.Warn("no TTS provider configured; replies will be text only")
		return nil, nil
	}

	p, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name)
	return p, nil
}

// buildJournal opens the interaction journal: PostgreSQL when a DSN is
// configured, an in-memory ring otherwise.
func buildJournal(ctx context.Context, cfg *config.Config) (journal.Store, error) {
	if dsn := cfg.Journal.PostgresDSN; dsn != "" {
		store, err := journal.NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		slog.Info("journal: using postgres store")
		return store, nil
	}
	slog.Info("journal: using in-memory store")
	return journal.NewMemory(1000), nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

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

// ── Helpers ───────────────────────────────────────────────────────────────────

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
