// Command bondvox is the main entry point for the bondvox quote server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/bondvox/internal/app"
	"github.com/MrWong99/bondvox/internal/config"
	"github.com/MrWong99/bondvox/internal/observe"
	"github.com/MrWong99/bondvox/pkg/provider/llm"
	"github.com/MrWong99/bondvox/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/bondvox/pkg/provider/llm/openai"
	"github.com/MrWong99/bondvox/pkg/provider/stt"
	"github.com/MrWong99/bondvox/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/bondvox/pkg/provider/stt/openai"
	"github.com/MrWong99/bondvox/pkg/provider/stt/whisper"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	parseText := flag.String("parse", "", "parse one quote phrase, print the result and exit")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve the MCP tools over stdin/stdout instead of HTTP")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bondvox", version)
		return 0
	}

	// ── One-shot parse ────────────────────────────────────────────────────────
	if *parseText != "" {
		return parseOnce(os.Stdout, *configPath, *parseText)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "bondvox: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "bondvox: %v\n", err)
		}
		return 1
	}
	applyPortEnv(cfg, os.Getenv)

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	slog.Info("bondvox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "bondvox",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, observe.DefaultMetrics())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(levelVar),
		app.WithConfigWatch(*configPath, 0),
		app.WithMetricsHandler(promhttp.Handler()),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *mcpStdio {
		slog.Info("serving MCP over stdio")
		err = application.MCP().RunStdio(ctx)
	} else {
		slog.Info("server ready, press Ctrl+C to shut down")
		err = application.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// parseOnce prints the quote for text using the lexicon from the config at
// path. A missing config file falls back to the built-in lexicon.
func parseOnce(w io.Writer, path, text string) int {
	var lx config.LexiconConfig
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		lx = cfg.Lexicon
	case errors.Is(err, os.ErrNotExist):
	default:
		fmt.Fprintf(os.Stderr, "bondvox: %v\n", err)
		return 1
	}
	out := app.BuildEngine(lx).Parse(text)
	fmt.Fprintf(w, "%s\t%s\n", out.Quote, out.Pattern)
	return 0
}

// applyPortEnv replaces the port of cfg.Server.ListenAddr with $PORT when it
// is set. The host part is kept.
func applyPortEnv(cfg *config.Config, getenv func(string) string) {
	port := getenv("PORT")
	if port == "" {
		return
	}
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	cfg.Server.ListenAddr = net.JoinHostPort(host, port)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other any-llm backend takes an optional API key and base URL.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
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

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := []whisper.Option{whisper.WithLanguage(entry.LanguageOrDefault())}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := []oastt.Option{oastt.WithLanguage(entry.LanguageOrDefault())}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(entry.LanguageOrDefault())}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "stt", reg.STTNames(), "llm", reg.LLMNames())
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
