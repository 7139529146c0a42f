package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/bondvox/internal/quote"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "openai", "deepgram"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero [Config].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative, got %d", cfg.Server.MaxUploadBytes))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if cfg.Providers.STT.Name == "" {
		if len(cfg.Providers.STTFallbacks) > 0 {
			errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
		} else {
			slog.Warn("no STT provider configured; /transcribe will be unavailable")
		}
	}
	if cfg.Providers.LLM.Name == "" && len(cfg.Providers.LLMFallbacks) > 0 {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}

	// Lexicon
	errs = append(errs, validateLexicon(cfg.Lexicon)...)

	// Correction
	c := cfg.Correction
	if c.LowConfidence < 0 || c.LowConfidence > 1 {
		errs = append(errs, fmt.Errorf("correction.low_confidence %.2f is out of range [0, 1]", c.LowConfidence))
	}
	if c.MaxWindow < 0 {
		errs = append(errs, fmt.Errorf("correction.max_window must not be negative, got %d", c.MaxWindow))
	}
	if c.LLM && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("correction.llm requires providers.llm to be configured"))
	}

	// Samples
	s := cfg.Samples
	switch {
	case !s.Backend.IsValid():
		errs = append(errs, fmt.Errorf("samples.backend %q is invalid; valid values: file, postgres", s.Backend))
	case s.Backend == SamplesFile && s.Path == "":
		errs = append(errs, errors.New("samples.path is required when backend is file"))
	case s.Backend == SamplesPostgres && s.PostgresDSN == "":
		errs = append(errs, errors.New("samples.postgres_dsn is required when backend is postgres"))
	}

	// Notify
	if tg := cfg.Notify.Telegram; tg != nil {
		if tg.Token == "" {
			errs = append(errs, errors.New("notify.telegram.token is required"))
		}
		if tg.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram.chat_id is required"))
		}
	}

	// MCP
	if cfg.MCP.Path != "" && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

// validateLexicon checks that every configured alias resolves to a tradeable
// instrument and that instrument codes are single upper-case words.
func validateLexicon(lx LexiconConfig) []error {
	var errs []error

	known := quote.DefaultLexicon().Instruments()
	for i, code := range lx.Instruments {
		if code == "" || strings.ContainsFunc(code, func(r rune) bool { return r < 'A' || r > 'Z' }) {
			errs = append(errs, fmt.Errorf("lexicon.instruments[%d] %q must be upper-case letters only", i, code))
			continue
		}
		known = append(known, code)
	}

	for alias, target := range lx.Aliases {
		if strings.TrimSpace(alias) == "" || strings.ContainsAny(alias, " \t") {
			errs = append(errs, fmt.Errorf("lexicon.aliases: alias %q must be a single word", alias))
		}
		if !slices.Contains(known, strings.ToUpper(target)) {
			errs = append(errs, fmt.Errorf("lexicon.aliases[%s]: %q is not a known instrument", alias, target))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
