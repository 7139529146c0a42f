package quote

// NoQuote is returned in place of a quote when nothing was recognised.
const NoQuote = "No valid bond quote found"

// Reason explains an [Outcome]. Callers that only need the quote can ignore
// it; it exists for diagnostics and metrics.
type Reason string

const (
	// ReasonMatched means a shape matched and every instrument was valid.
	ReasonMatched Reason = "matched"

	// ReasonNoShape means no matcher recognised the text.
	ReasonNoShape Reason = "no_shape"

	// ReasonInvalidInstrument means a shape matched but at least one of its
	// instruments is not tradeable. The cascade stops there.
	ReasonInvalidInstrument Reason = "invalid_instrument"
)

// Outcome is the result of [Engine.Parse].
type Outcome struct {
	// Quote is the canonical quote, or [NoQuote].
	Quote string

	// Pattern identifies the matcher that produced Quote. Empty unless
	// Reason is [ReasonMatched].
	Pattern PatternID

	// Shape is the matcher whose shape was recognised, set for both
	// [ReasonMatched] and [ReasonInvalidInstrument].
	Shape PatternID

	Reason Reason
}

// Matched reports whether the outcome carries a quote.
func (o Outcome) Matched() bool { return o.Reason == ReasonMatched }

// EngineOption is a functional option for configuring an [Engine].
type EngineOption func(*Engine)

// WithLexicon replaces the default lexicon.
func WithLexicon(lx *Lexicon) EngineOption {
	return func(e *Engine) {
		if lx != nil {
			e.lexicon = lx
		}
	}
}

// WithMatchers replaces the default cascade. Matchers are tried in the
// order given.
func WithMatchers(ms ...Matcher) EngineOption {
	return func(e *Engine) {
		e.matchers = ms
	}
}

// Engine parses utterances into quotes. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	lexicon  *Lexicon
	matchers []Matcher
}

// NewEngine returns an [Engine] using [DefaultLexicon] and [DefaultCascade]
// unless overridden by opts.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if e.lexicon == nil {
		e.lexicon = DefaultLexicon()
	}
	if e.matchers == nil {
		e.matchers = DefaultCascade()
	}
	return e
}

// Lexicon returns the engine's lexicon.
func (e *Engine) Lexicon() *Lexicon { return e.lexicon }

// Parse normalises text and returns the first quote recognised by the
// cascade. The first matcher whose shape is found decides the outcome: if
// any of its instruments is invalid the result is [NoQuote] and later
// matchers are not consulted. Parse never fails.
func (e *Engine) Parse(text string) Outcome {
	text = e.lexicon.Normalize(text)
	for _, m := range e.matchers {
		rec, ok := m.Match(text, e.lexicon)
		if !ok {
			continue
		}
		for _, code := range rec.Instruments() {
			if !e.lexicon.IsValid(code) {
				return Outcome{Quote: NoQuote, Shape: m.ID(), Reason: ReasonInvalidInstrument}
			}
		}
		return Outcome{Quote: rec.Format(), Pattern: m.ID(), Shape: m.ID(), Reason: ReasonMatched}
	}
	return Outcome{Quote: NoQuote, Reason: ReasonNoShape}
}
