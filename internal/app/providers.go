package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/bondvox/internal/config"
	"github.com/MrWong99/bondvox/internal/observe"
	"github.com/MrWong99/bondvox/internal/quote"
	"github.com/MrWong99/bondvox/internal/resilience"
	"github.com/MrWong99/bondvox/internal/transcript"
	"github.com/MrWong99/bondvox/internal/transcript/llmcorrect"
	"github.com/MrWong99/bondvox/internal/transcript/phonetic"
	"github.com/MrWong99/bondvox/pkg/provider/llm"
	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

// Providers holds the external backends. Nil means not configured.
// Populated by [BuildProviders] from the config registry.
type Providers struct {
	// STT is the transcriber chain. When fallbacks are configured it is a
	// [*resilience.TranscriberFallback].
	STT stt.Transcriber

	// STTName labels transcription metrics. For a chain it is the primary's
	// name.
	STTName string

	// LLM backs the LLM correction stage.
	LLM llm.Provider
}

// statuser is implemented by the resilience fallback wrappers.
type statuser interface {
	Status() []resilience.EntryStatus
}

// BuildProviders instantiates the providers named in cfg using reg. Each
// backend gets its own circuit breaker; state changes are counted on m.
//
// Names not present in reg are logged and skipped, so a config naming a
// backend this build does not ship still starts (with that slot empty).
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.RecordCircuitTransition(context.Background(), name, to.String())
			},
		},
	}

	ps := &Providers{}

	sttEntries := append([]config.ProviderEntry{cfg.Providers.STT}, cfg.Providers.STTFallbacks...)
	var sttChain *resilience.TranscriberFallback
	for _, entry := range sttEntries {
		if entry.Name == "" {
			continue
		}
		t, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("stt provider not available in this build, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("app: create stt provider %q: %w", entry.Name, err)
		}
		if sttChain == nil {
			sttChain = resilience.NewTranscriberFallback(t, entry.Name, fbCfg)
			ps.STTName = entry.Name
		} else {
			sttChain.AddFallback(entry.Name, t)
		}
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}
	if sttChain != nil {
		ps.STT = sttChain
	}

	llmEntries := append([]config.ProviderEntry{cfg.Providers.LLM}, cfg.Providers.LLMFallbacks...)
	var llmChain *resilience.LLMFallback
	for _, entry := range llmEntries {
		if entry.Name == "" {
			continue
		}
		p, err := reg.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("llm provider not available in this build, skipping", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("app: create llm provider %q: %w", entry.Name, err)
		}
		if llmChain == nil {
			llmChain = resilience.NewLLMFallback(p, entry.Name, fbCfg)
		} else {
			llmChain.AddFallback(entry.Name, p)
		}
		slog.Info("provider created", "kind", "llm", "name", entry.Name)
	}
	if llmChain != nil {
		ps.LLM = llmChain
	}

	return ps, nil
}

// BuildEngine returns a quote engine whose lexicon is the built-in tables
// extended by lx.
func BuildEngine(lx config.LexiconConfig) *quote.Engine {
	return quote.NewEngine(quote.WithLexicon(quote.NewLexicon(
		quote.WithInstruments(lx.Instruments...),
		quote.WithAliases(lx.Aliases),
	)))
}

// buildCorrector returns the transcript correction stage described by cc, or
// nil when correction is disabled. Grammar words of lexicon are never
// rewritten. The LLM stage is skipped with a warning when no LLM provider is
// available.
func buildCorrector(cc config.CorrectionConfig, lexicon *quote.Lexicon, provider llm.Provider) transcript.Pipeline {
	if !cc.Enabled() {
		return nil
	}
	opts := []transcript.PipelineOption{
		transcript.WithProtected(lexicon.IsGrammarWord),
	}
	if cc.MaxWindow > 0 {
		opts = append(opts, transcript.WithMaxWindow(cc.MaxWindow))
	}
	if cc.Phonetic {
		opts = append(opts, transcript.WithPhoneticMatcher(phonetic.New()))
	}
	if cc.LLM {
		if provider == nil {
			slog.Warn("llm correction enabled but no llm provider is available, skipping stage")
		} else {
			opts = append(opts, transcript.WithLLMCorrector(llmcorrect.New(provider)))
			if cc.LowConfidence > 0 {
				opts = append(opts, transcript.WithLLMOnLowConfidence(cc.LowConfidence))
			}
		}
	}
	return transcript.NewPipeline(opts...)
}
