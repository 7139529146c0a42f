// Package pipeline turns recorded or typed utterances into bond quotes.
//
// A [Pipeline] runs the full path behind the HTTP and MCP surfaces:
//
//	audio ─▶ transcriber ─▶ correction ─▶ quote engine ─▶ response
//	                                          │
//	                                          ├─▶ training sample (async)
//	                                          └─▶ quote notification (async)
//
// The engine and correction stage can be replaced at runtime with
// [Pipeline.Swap] when the lexicon is hot-reloaded. Sample storage and
// notification are best-effort side effects: their failures are logged and
// counted but never fail the request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/bondvox/internal/notify"
	"github.com/MrWong99/bondvox/internal/observe"
	"github.com/MrWong99/bondvox/internal/quote"
	"github.com/MrWong99/bondvox/internal/samples"
	"github.com/MrWong99/bondvox/internal/transcript"
	"github.com/MrWong99/bondvox/pkg/provider/stt"
)

const (
	defaultKeywordBoost = 2.0
	defaultSideEffects  = 16
	sideEffectTimeout   = 10 * time.Second
)

var (
	// ErrNoTranscriber is returned by [Pipeline.Transcribe] when no STT
	// backend is configured.
	ErrNoTranscriber = errors.New("pipeline: no transcriber configured")

	// ErrSamplesDisabled is returned by [Pipeline.RecordCorrection] when no
	// sample store is configured.
	ErrSamplesDisabled = errors.New("pipeline: sample storage is disabled")
)

// Result is the outcome of one transcribed upload.
type Result struct {
	// Transcription is the raw recogniser output.
	Transcription string

	// Corrected is the text handed to the engine. It equals Transcription
	// when no correction stage is configured or nothing changed.
	Corrected string

	// Corrections lists the substitutions that produced Corrected.
	Corrections []transcript.Correction

	quote.Outcome
}

// CorrectionInput is a trader's fix for a wrongly parsed quote.
type CorrectionInput struct {
	Transcription  string
	Quote          string
	CorrectedQuote string
	Pattern        string
}

// stage is the hot-swappable part of the pipeline.
type stage struct {
	engine     *quote.Engine
	corrector  transcript.Pipeline
	vocabulary []string
	keywords   []stt.KeywordBoost
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithTranscriber sets the STT backend. name labels metrics.
func WithTranscriber(name string, t stt.Transcriber) Option {
	return func(p *Pipeline) {
		p.sttName = name
		p.stt = t
	}
}

// WithCorrector sets the transcript correction stage applied before parsing.
func WithCorrector(c transcript.Pipeline) Option {
	return func(p *Pipeline) { p.initialCorrector = c }
}

// WithSamples stores a training sample for every transcribed upload and
// enables [Pipeline.RecordCorrection].
func WithSamples(s samples.Store) Option {
	return func(p *Pipeline) { p.samples = s }
}

// WithNotifier publishes every recognised quote from a transcribed upload.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMetrics records stage latencies and outcomes on m. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLanguage sets the recognition language. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Pipeline) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithSideEffectLimit bounds concurrently running sample writes and
// notifications; side effects beyond it are dropped. Default: 16.
func WithSideEffectLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.sideEffectLimit = n
		}
	}
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	current atomic.Pointer[stage]

	stt              stt.Transcriber
	sttName          string
	initialCorrector transcript.Pipeline
	samples          samples.Store
	notifier         notify.Notifier
	metrics          *observe.Metrics
	language         string
	sideEffectLimit  int

	background errgroup.Group
}

// New returns a pipeline parsing with engine.
func New(engine *quote.Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		language:        "en",
		sideEffectLimit: defaultSideEffects,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.background.SetLimit(p.sideEffectLimit)
	p.Swap(engine, p.initialCorrector)
	return p
}

// Swap atomically replaces the engine and correction stage. In-flight
// requests finish with the stage they started with.
func (p *Pipeline) Swap(engine *quote.Engine, corrector transcript.Pipeline) {
	if engine == nil {
		engine = quote.NewEngine()
	}
	vocab := engine.Lexicon().Vocabulary()
	keywords := make([]stt.KeywordBoost, 0, len(engine.Lexicon().Instruments()))
	for _, code := range engine.Lexicon().Instruments() {
		keywords = append(keywords, stt.KeywordBoost{Keyword: code, Boost: defaultKeywordBoost})
	}
	p.current.Store(&stage{
		engine:     engine,
		corrector:  corrector,
		vocabulary: vocab,
		keywords:   keywords,
	})
}

// Engine returns the engine currently in use.
func (p *Pipeline) Engine() *quote.Engine { return p.current.Load().engine }

// HasTranscriber reports whether [Pipeline.Transcribe] can be used.
func (p *Pipeline) HasTranscriber() bool { return p.stt != nil }

// HasSamples reports whether [Pipeline.RecordCorrection] can be used.
func (p *Pipeline) HasSamples() bool { return p.samples != nil }

// ParseText runs the quote engine on text.
func (p *Pipeline) ParseText(ctx context.Context, text string) quote.Outcome {
	return p.parse(ctx, p.current.Load(), text)
}

func (p *Pipeline) parse(ctx context.Context, st *stage, text string) quote.Outcome {
	start := time.Now()
	out := st.engine.Parse(text)
	p.metrics.RecordParse(ctx, string(out.Pattern), string(out.Reason), time.Since(start).Seconds())
	observe.Logger(ctx).Debug("quote parsed",
		"reason", out.Reason,
		"pattern", out.Pattern,
		"shape", out.Shape,
	)
	return out
}

// Transcribe converts audio to text, corrects misheard instrument names,
// parses the result and schedules the training sample and notification.
// A correction failure is logged and parsing proceeds on the raw text.
func (p *Pipeline) Transcribe(ctx context.Context, audio stt.Audio) (res *Result, err error) {
	if p.stt == nil {
		return nil, ErrNoTranscriber
	}
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer func() { observe.EndSpan(span, err) }()

	st := p.current.Load()
	log := observe.Logger(ctx)

	p.metrics.InFlightTranscriptions.Add(ctx, 1)
	start := time.Now()
	tr, err := p.stt.Transcribe(ctx, stt.Request{
		Audio:    audio,
		Language: p.language,
		Keywords: st.keywords,
	})
	p.metrics.InFlightTranscriptions.Add(ctx, -1)
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "error")
		p.metrics.RecordProviderError(ctx, p.sttName, "stt")
		return nil, fmt.Errorf("pipeline: transcribe: %w", err)
	}
	p.metrics.RecordProviderRequest(ctx, p.sttName, "stt", "ok")

	res = &Result{Transcription: tr.Text, Corrected: tr.Text}
	if st.corrector != nil && strings.TrimSpace(tr.Text) != "" {
		cstart := time.Now()
		ct, err := st.corrector.Correct(ctx, tr, st.vocabulary)
		p.metrics.CorrectionDuration.Record(ctx, time.Since(cstart).Seconds())
		if err != nil {
			log.Warn("transcript correction failed, parsing raw text", "err", err)
		} else {
			res.Corrected = ct.Corrected
			res.Corrections = ct.Corrections
			for _, c := range ct.Corrections {
				p.metrics.RecordCorrection(ctx, c.Method)
				log.Debug("transcript corrected", "from", c.Original, "to", c.Corrected, "method", c.Method, "confidence", c.Confidence)
			}
		}
	}

	res.Outcome = p.parse(ctx, st, res.Corrected)
	span.SetAttributes(
		attribute.String("quote.reason", string(res.Reason)),
		attribute.String("quote.pattern", string(res.Pattern)),
	)
	log.Info("utterance transcribed",
		"transcription", res.Transcription,
		"corrections", len(res.Corrections),
		"quote", res.Quote,
	)

	p.afterTranscribe(ctx, res)
	return res, nil
}

// afterTranscribe schedules the best-effort side effects of an upload.
func (p *Pipeline) afterTranscribe(ctx context.Context, res *Result) {
	if p.samples != nil && strings.TrimSpace(res.Transcription) != "" {
		s := samples.New(samples.KindTraining)
		s.Transcription = res.Transcription
		if res.Corrected != res.Transcription {
			s.Corrected = res.Corrected
		}
		s.Quote = res.Quote
		s.Pattern = string(res.Pattern)
		p.goBackground(ctx, "sample", func(ctx context.Context) {
			p.saveSample(ctx, s)
		})
	}
	if p.notifier != nil && res.Matched() {
		q := notify.Quote{
			Text:    res.Quote,
			Pattern: string(res.Pattern),
			Heard:   res.Transcription,
			At:      time.Now(),
		}
		p.goBackground(ctx, "notification", func(ctx context.Context) {
			if err := p.notifier.Notify(ctx, q); err != nil {
				observe.Logger(ctx).Warn("quote notification dropped", "quote", q.Text, "err", err)
			}
		})
	}
}

// goBackground runs fn detached from the request's cancellation but keeps
// its trace context. When the side-effect limit is reached fn is dropped.
func (p *Pipeline) goBackground(ctx context.Context, what string, fn func(context.Context)) {
	bctx := context.WithoutCancel(ctx)
	ok := p.background.TryGo(func() error {
		ctx, cancel := context.WithTimeout(bctx, sideEffectTimeout)
		defer cancel()
		fn(ctx)
		return nil
	})
	if !ok {
		observe.Logger(ctx).Warn("too many pending side effects, dropping", "what", what)
	}
}

func (p *Pipeline) saveSample(ctx context.Context, s samples.Sample) {
	if err := p.samples.Save(ctx, s); err != nil {
		p.metrics.RecordSample(ctx, string(s.Kind), "error")
		observe.Logger(ctx).Warn("failed to store sample", "kind", s.Kind, "err", err)
		return
	}
	p.metrics.RecordSample(ctx, string(s.Kind), "ok")
}

// RecordCorrection stores a trader's correction synchronously.
func (p *Pipeline) RecordCorrection(ctx context.Context, in CorrectionInput) (samples.Sample, error) {
	if p.samples == nil {
		return samples.Sample{}, ErrSamplesDisabled
	}
	s := samples.New(samples.KindCorrection)
	s.Transcription = in.Transcription
	s.Quote = in.Quote
	s.Pattern = in.Pattern
	s.CorrectedQuote = in.CorrectedQuote

	if err := p.samples.Save(ctx, s); err != nil {
		p.metrics.RecordSample(ctx, string(s.Kind), "error")
		return samples.Sample{}, fmt.Errorf("pipeline: record correction: %w", err)
	}
	p.metrics.RecordSample(ctx, string(s.Kind), "ok")
	observe.Logger(ctx).Info("correction recorded", "id", s.ID, "quote", s.Quote, "corrected_quote", s.CorrectedQuote)
	return s, nil
}

// Wait blocks until every scheduled side effect has finished.
func (p *Pipeline) Wait() {
	_ = p.background.Wait()
}
