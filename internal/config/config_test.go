package config_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/bondvox/internal/config"
	"github.com/MrWong99/bondvox/pkg/provider/llm"
	llmmock "github.com/MrWong99/bondvox/pkg/provider/llm/mock"
	"github.com/MrWong99/bondvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/bondvox/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  max_upload_bytes: 1048576

providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
  stt_fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini

lexicon:
  aliases:
    BUNDY: DBR
    KIWI: NZGB
  instruments:
    - NZGB

correction:
  phonetic: true
  llm: true
  low_confidence: 0.6
  max_window: 2

samples:
  backend: file
  path: /var/lib/bondvox/samples.jsonl

notify:
  telegram:
    token: "123:abc"
    chat_id: -100200300

mcp:
  enabled: true
  path: /tools
`

func loadErr(t *testing.T, doc string) error {
	t.Helper()
	_, err := config.LoadFromReader(strings.NewReader(doc))
	return err
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if got := cfg.Server.UploadLimit(); got != 1<<20 {
		t.Errorf("UploadLimit: got %d, want %d", got, 1<<20)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("providers.stt.name: got %q, want whisper", cfg.Providers.STT.Name)
	}
	if len(cfg.Providers.STTFallbacks) != 1 || cfg.Providers.STTFallbacks[0].Model != "whisper-1" {
		t.Errorf("providers.stt_fallbacks: got %+v", cfg.Providers.STTFallbacks)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("providers.llm.model: got %q", cfg.Providers.LLM.Model)
	}
	if cfg.Lexicon.Aliases["KIWI"] != "NZGB" {
		t.Errorf("lexicon.aliases[KIWI]: got %q, want NZGB", cfg.Lexicon.Aliases["KIWI"])
	}
	if !cfg.Correction.Enabled() || cfg.Correction.LowConfidence != 0.6 || cfg.Correction.MaxWindow != 2 {
		t.Errorf("correction: got %+v", cfg.Correction)
	}
	if cfg.Samples.Backend != config.SamplesFile {
		t.Errorf("samples.backend: got %q, want file", cfg.Samples.Backend)
	}
	if cfg.Notify.Telegram == nil || cfg.Notify.Telegram.ChatID != -100200300 {
		t.Errorf("notify.telegram: got %+v", cfg.Notify.Telegram)
	}
	if cfg.MCP.PathOrDefault() != "/tools" {
		t.Errorf("mcp.path: got %q, want /tools", cfg.MCP.PathOrDefault())
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// An empty config should succeed (no required top-level fields).
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", doc, err)
		}
		if cfg.Correction.Enabled() {
			t.Error("correction should be disabled by default")
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	err := loadErr(t, "server:\n  listen_adr: \":8080\"\n")
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestDefaults(t *testing.T) {
	var cfg config.Config
	if got := cfg.Server.UploadLimit(); got != config.DefaultMaxUploadBytes {
		t.Errorf("UploadLimit: got %d, want %d", got, config.DefaultMaxUploadBytes)
	}
	if got := cfg.Providers.STT.LanguageOrDefault(); got != "en" {
		t.Errorf("LanguageOrDefault: got %q, want en", got)
	}
	if got := cfg.MCP.PathOrDefault(); got != "/mcp" {
		t.Errorf("PathOrDefault: got %q, want /mcp", got)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.SlogLevel(); got != tt.want {
			t.Errorf("%q.SlogLevel() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		mention string
	}{
		{"invalid log level", "server:\n  log_level: verbose\n", "log_level"},
		{"negative upload limit", "server:\n  max_upload_bytes: -1\n", "max_upload_bytes"},
		{"tls missing key", "server:\n  tls:\n    cert_file: a.pem\n", "tls"},
		{"fallback without name", "providers:\n  stt:\n    name: whisper\n  stt_fallbacks:\n    - model: x\n", "stt_fallbacks[0]"},
		{"stt fallback without primary", "providers:\n  stt_fallbacks:\n    - name: openai\n", "requires providers.stt"},
		{"llm fallback without primary", "providers:\n  llm_fallbacks:\n    - name: ollama\n", "requires providers.llm"},
		{"low confidence out of range", "correction:\n  low_confidence: 1.5\n", "low_confidence"},
		{"negative window", "correction:\n  max_window: -2\n", "max_window"},
		{"llm correction without provider", "correction:\n  llm: true\n", "correction.llm"},
		{"unknown sample backend", "samples:\n  backend: s3\n", "samples.backend"},
		{"file backend without path", "samples:\n  backend: file\n", "samples.path"},
		{"postgres backend without dsn", "samples:\n  backend: postgres\n", "postgres_dsn"},
		{"telegram without token", "notify:\n  telegram:\n    chat_id: 42\n", "token"},
		{"telegram without chat", "notify:\n  telegram:\n    token: abc\n", "chat_id"},
		{"relative mcp path", "mcp:\n  path: tools\n", "mcp.path"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := loadErr(t, tc.doc)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.mention) {
				t.Errorf("error should mention %q, got: %v", tc.mention, err)
			}
		})
	}
}

// ── Registry: unregistered names ──────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_UnknownSTT(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got %v", err)
	}
}

// ── Registry with registered factories ───────────────────────────────────────

func TestRegistry_RegisteredLLM(t *testing.T) {
	reg := config.NewRegistry()
	want := &llmmock.Provider{}
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	reg := config.NewRegistry()
	want := &sttmock.Transcriber{}
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Transcriber, error) {
		gotEntry = e
		return want, nil
	})
	got, err := reg.CreateSTT(config.ProviderEntry{Name: "stub", Model: "tiny"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned transcriber is not the expected instance")
	}
	if gotEntry.Model != "tiny" {
		t.Errorf("factory entry model: got %q, want tiny", gotEntry.Model)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := config.NewRegistry()
	for _, n := range []string{"whisper", "deepgram", "openai"} {
		reg.RegisterSTT(n, func(config.ProviderEntry) (stt.Transcriber, error) { return &sttmock.Transcriber{}, nil })
	}
	reg.RegisterLLM("ollama", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })

	got := reg.STTNames()
	want := []string{"deepgram", "openai", "whisper"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("STTNames: got %v, want %v", got, want)
	}
	if names := reg.LLMNames(); len(names) != 1 || names[0] != "ollama" {
		t.Errorf("LLMNames: got %v, want [ollama]", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}
