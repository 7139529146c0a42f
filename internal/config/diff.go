package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LexiconChanged is set when aliases or instruments differ; the quote
	// engine must be rebuilt.
	LexiconChanged bool

	// CorrectionChanged is set when any correction setting differs.
	CorrectionChanged bool

	// RestartRequired lists changed top-level sections that are only read at
	// startup. Changes there are logged and otherwise ignored until restart.
	RestartRequired []string
}

// HotReloadable reports whether the diff contains anything that can be
// applied without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.LexiconChanged || d.CorrectionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.LexiconChanged = !maps.Equal(old.Lexicon.Aliases, new.Lexicon.Aliases) ||
		!slices.Equal(old.Lexicon.Instruments, new.Lexicon.Instruments)
	d.CorrectionChanged = old.Correction != new.Correction

	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	if !serverEqual(oldSrv, newSrv) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Samples != new.Samples {
		d.RestartRequired = append(d.RestartRequired, "samples")
	}
	if !telegramEqual(old.Notify.Telegram, new.Notify.Telegram) {
		d.RestartRequired = append(d.RestartRequired, "notify")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}

	return d
}

func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.MaxUploadBytes != b.MaxUploadBytes {
		return false
	}
	if (a.TLS == nil) != (b.TLS == nil) {
		return false
	}
	return a.TLS == nil || *a.TLS == *b.TLS
}

func telegramEqual(a, b *TelegramConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) &&
		entryEqual(a.LLM, b.LLM) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual)
}

// entryEqual compares the scalar fields of two entries. Options are compared
// by key set only; their values may hold non-comparable YAML nodes.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Language != b.Language {
		return false
	}
	return slices.Equal(slices.Sorted(maps.Keys(a.Options)), slices.Sorted(maps.Keys(b.Options)))
}
